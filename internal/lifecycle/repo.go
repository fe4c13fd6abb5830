package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// Repository persists status ledgers. Lookups return gorm.ErrRecordNotFound
// unchanged so callers can tell absence from failure.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Ledger, error)
	FindBySubject(ctx context.Context, kind enums.LedgerKind, resourceID uuid.UUID, subjectID string) (*models.Ledger, error)
	Create(ctx context.Context, ledger *models.Ledger) error
	// CompareAndSetStatus moves the ledger to `to` only while it is still in
	// `from`; it reports whether the row changed.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.LedgerStatus, at time.Time) (bool, error)
	ListByResource(ctx context.Context, kind enums.LedgerKind, resourceID uuid.UUID, statuses []enums.LedgerStatus) ([]models.Ledger, error)
	// SumWeights totals the weight of ledgers in the given statuses.
	SumWeights(ctx context.Context, kind enums.LedgerKind, resourceID uuid.UUID, statuses []enums.LedgerStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Ledger, error) {
	var ledger models.Ledger
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ledger).Error; err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (r *repository) FindBySubject(ctx context.Context, kind enums.LedgerKind, resourceID uuid.UUID, subjectID string) (*models.Ledger, error) {
	var ledger models.Ledger
	err := r.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ? AND subject_id = ?", kind, resourceID, subjectID).
		First(&ledger).Error
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (r *repository) Create(ctx context.Context, ledger *models.Ledger) error {
	return r.db.WithContext(ctx).Create(ledger).Error
}

func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.LedgerStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ledger{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByResource(ctx context.Context, kind enums.LedgerKind, resourceID uuid.UUID, statuses []enums.LedgerStatus) ([]models.Ledger, error) {
	query := r.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ?", kind, resourceID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var ledgers []models.Ledger
	if err := query.Order("created_at ASC, id ASC").Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (r *repository) SumWeights(ctx context.Context, kind enums.LedgerKind, resourceID uuid.UUID, statuses []enums.LedgerStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Ledger{}).
		Select("COALESCE(SUM(weight), 0)").
		Where("kind = ? AND resource_id = ? AND status IN ?", kind, resourceID, statuses).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
