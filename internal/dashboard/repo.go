package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// Window is a half-open [From, To) time range; a zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) apply(db *gorm.DB, column string) *gorm.DB {
	if !w.From.IsZero() {
		db = db.Where(column+" >= ?", w.From)
	}
	if !w.To.IsZero() {
		db = db.Where(column+" < ?", w.To)
	}
	return db
}

// Repository runs the read-only aggregate queries behind the dashboard.
type Repository interface {
	CountAlumni(ctx context.Context, w Window) (int64, error)
	CountEvents(ctx context.Context, w Window) (int64, error)
	CountUpcomingEvents(ctx context.Context, now time.Time) (int64, error)
	// SumCompletedDonations totals settled donations in cents, windowed on
	// settlement time.
	SumCompletedDonations(ctx context.Context, w Window) (int64, error)
	CountActiveMentorships(ctx context.Context) (int64, error)
	CountMentorships(ctx context.Context, w Window) (int64, error)
	RecentProfiles(ctx context.Context, limit int) ([]Activity, error)
	RecentEvents(ctx context.Context, limit int) ([]Activity, error)
	RecentDonations(ctx context.Context, limit int) ([]Activity, error)
	RecentMentorships(ctx context.Context, limit int) ([]Activity, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the dashboard query repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountAlumni(ctx context.Context, w Window) (int64, error) {
	var n int64
	err := w.apply(r.db.WithContext(ctx).Model(&models.AlumniProfile{}), "created_at").Count(&n).Error
	return n, err
}

func (r *repository) CountEvents(ctx context.Context, w Window) (int64, error) {
	var n int64
	err := w.apply(r.db.WithContext(ctx).Model(&models.Event{}), "created_at").Count(&n).Error
	return n, err
}

func (r *repository) CountUpcomingEvents(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("status = ? AND starts_at > ?", enums.EventStatusPublished, now).
		Count(&n).Error
	return n, err
}

func (r *repository) SumCompletedDonations(ctx context.Context, w Window) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).
		Model(&models.Ledger{}).
		Select("COALESCE(SUM(weight), 0)").
		Where("kind = ? AND status = ?", enums.LedgerKindDonation, enums.LedgerStatusCompleted)
	err := w.apply(query, "updated_at").Scan(&total).Error
	return total, err
}

func (r *repository) CountActiveMentorships(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Ledger{}).
		Where("kind = ? AND status = ?", enums.LedgerKindMentorshipConnection, enums.LedgerStatusActive).
		Count(&n).Error
	return n, err
}

func (r *repository) CountMentorships(ctx context.Context, w Window) (int64, error) {
	var n int64
	query := r.db.WithContext(ctx).
		Model(&models.Ledger{}).
		Where("kind = ?", enums.LedgerKindMentorshipConnection)
	err := w.apply(query, "created_at").Count(&n).Error
	return n, err
}

func (r *repository) RecentProfiles(ctx context.Context, limit int) ([]Activity, error) {
	var rows []models.AlumniProfile
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, Activity{
			Type:      enums.ActivityTypeNewProfile,
			ID:        row.ID,
			Title:     row.FullName,
			Timestamp: row.CreatedAt,
		})
	}
	return out, nil
}

func (r *repository) RecentEvents(ctx context.Context, limit int) ([]Activity, error) {
	var rows []models.Event
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, Activity{
			Type:      enums.ActivityTypeNewEvent,
			ID:        row.ID,
			Title:     row.Title,
			Timestamp: row.CreatedAt,
		})
	}
	return out, nil
}

type donationRow struct {
	ID         uuid.UUID
	ResourceID uuid.UUID
	Weight     int64
	UpdatedAt  time.Time
	Title      string
}

func (r *repository) RecentDonations(ctx context.Context, limit int) ([]Activity, error) {
	var rows []donationRow
	err := r.db.WithContext(ctx).
		Table("status_ledgers AS l").
		Select("l.id, l.resource_id, l.weight, l.updated_at, c.title").
		Joins("JOIN campaigns c ON c.id = l.resource_id").
		Where("l.kind = ? AND l.status = ?", enums.LedgerKindDonation, enums.LedgerStatusCompleted).
		Order("l.updated_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(rows))
	for _, row := range rows {
		resourceID := row.ResourceID
		amount := centsToDecimal(row.Weight)
		out = append(out, Activity{
			Type:       enums.ActivityTypeDonation,
			ID:         row.ID,
			Title:      row.Title,
			ResourceID: &resourceID,
			Amount:     &amount,
			Timestamp:  row.UpdatedAt,
		})
	}
	return out, nil
}

func (r *repository) RecentMentorships(ctx context.Context, limit int) ([]Activity, error) {
	var rows []models.Ledger
	err := r.db.WithContext(ctx).
		Where("kind = ?", enums.LedgerKindMentorshipConnection).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(rows))
	for _, row := range rows {
		resourceID := row.ResourceID
		out = append(out, Activity{
			Type:       enums.ActivityTypeNewMentorship,
			ID:         row.ID,
			ResourceID: &resourceID,
			Timestamp:  row.CreatedAt,
		})
	}
	return out, nil
}
