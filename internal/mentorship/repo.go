package mentorship

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
)

// Repository persists mentor profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, profile *models.MentorProfile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MentorProfile, error)
	UpdateMaxMentees(ctx context.Context, id uuid.UUID, maxMentees int64, at time.Time) error
	SetAccepting(ctx context.Context, id uuid.UUID, accepting bool, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a mentor profile repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, profile *models.MentorProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MentorProfile, error) {
	var profile models.MentorProfile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) UpdateMaxMentees(ctx context.Context, id uuid.UUID, maxMentees int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.MentorProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{"max_mentees": maxMentees, "updated_at": at}).Error
}

func (r *repository) SetAccepting(ctx context.Context, id uuid.UUID, accepting bool, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.MentorProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{"accepting_mentees": accepting, "updated_at": at}).Error
}
