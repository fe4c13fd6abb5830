// Package counters persists capacity counters: the running tally of counted
// ledgers per resource, bounded by an optional ceiling. Every mutation is a
// single conditional UPDATE so the ceiling holds even when several processes
// write the same row.
package counters

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
)

// Key addresses one counter.
type Key struct {
	Kind       enums.CounterKind
	ResourceID uuid.UUID
}

func (k Key) String() string {
	return k.Kind.String() + ":" + k.ResourceID.String()
}

func (k Key) validate() error {
	if !k.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid counter kind").WithDetails(map[string]any{"kind": k.Kind})
	}
	if k.ResourceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "resource id required")
	}
	return nil
}

// Repository reads and mutates capacity counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Ensure creates the counter at zero when missing and returns the stored row.
	Ensure(ctx context.Context, key Key, ceiling *int64) (*models.CapacityCounter, error)
	Get(ctx context.Context, key Key) (*models.CapacityCounter, error)
	List(ctx context.Context, kind enums.CounterKind) ([]models.CapacityCounter, error)
	// Reserve adds amount only while current+amount stays within the ceiling.
	Reserve(ctx context.Context, key Key, amount int64) (*models.CapacityCounter, error)
	// Release subtracts amount, flooring the counter at zero.
	Release(ctx context.Context, key Key, amount int64) (*models.CapacityCounter, error)
	// Accumulate applies a signed delta to an uncapped counter, flooring at zero.
	Accumulate(ctx context.Context, key Key, delta int64) (*models.CapacityCounter, error)
	// Resize replaces the ceiling; a ceiling below current is rejected.
	Resize(ctx context.Context, key Key, ceiling *int64) (*models.CapacityCounter, error)
	// Overwrite sets current to value when the stored value still equals observed.
	Overwrite(ctx context.Context, key Key, observed, value int64) (bool, error)
	// Touch takes the row's write lock for the rest of the surrounding transaction.
	Touch(ctx context.Context, key Key) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a counters repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) scoped(ctx context.Context, key Key) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.CapacityCounter{}).
		Where("kind = ? AND resource_id = ?", key.Kind, key.ResourceID)
}

func (r *repository) Ensure(ctx context.Context, key Key, ceiling *int64) (*models.CapacityCounter, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if ceiling != nil && *ceiling < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ceiling must be non-negative")
	}
	row := models.CapacityCounter{
		Kind:       key.Kind,
		ResourceID: key.ResourceID,
		Ceiling:    ceiling,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure capacity counter")
	}
	return r.Get(ctx, key)
}

func (r *repository) Get(ctx context.Context, key Key) (*models.CapacityCounter, error) {
	var row models.CapacityCounter
	err := r.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ?", key.Kind, key.ResourceID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "capacity counter not found").WithDetails(map[string]any{"counter": key.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read capacity counter")
	}
	return &row, nil
}

func (r *repository) List(ctx context.Context, kind enums.CounterKind) ([]models.CapacityCounter, error) {
	var rows []models.CapacityCounter
	err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("resource_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list capacity counters")
	}
	return rows, nil
}

func (r *repository) Reserve(ctx context.Context, key Key, amount int64) (*models.CapacityCounter, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserve amount must be positive")
	}
	res := r.scoped(ctx, key).
		Where("(ceiling IS NULL OR current_value + ? <= ceiling)", amount).
		Updates(map[string]any{
			"current_value": gorm.Expr("current_value + ?", amount),
			"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve capacity")
	}
	if res.RowsAffected == 0 {
		current, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeCapacityExceeded, "capacity exhausted").WithDetails(map[string]any{
			"counter": key.String(),
			"current": current.Current,
			"ceiling": current.Ceiling,
		})
	}
	return r.Get(ctx, key)
}

func (r *repository) Release(ctx context.Context, key Key, amount int64) (*models.CapacityCounter, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release amount must be positive")
	}
	res := r.scoped(ctx, key).Updates(map[string]any{
		"current_value": gorm.Expr("CASE WHEN current_value < ? THEN 0 ELSE current_value - ? END", amount, amount),
		"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
	})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release capacity")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "capacity counter not found").WithDetails(map[string]any{"counter": key.String()})
	}
	return r.Get(ctx, key)
}

func (r *repository) Accumulate(ctx context.Context, key Key, delta int64) (*models.CapacityCounter, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if delta == 0 {
		return r.Get(ctx, key)
	}
	res := r.scoped(ctx, key).Updates(map[string]any{
		"current_value": gorm.Expr("CASE WHEN current_value + ? < 0 THEN 0 ELSE current_value + ? END", delta, delta),
		"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
	})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "accumulate counter")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "capacity counter not found").WithDetails(map[string]any{"counter": key.String()})
	}
	return r.Get(ctx, key)
}

func (r *repository) Resize(ctx context.Context, key Key, ceiling *int64) (*models.CapacityCounter, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	query := r.scoped(ctx, key)
	if ceiling != nil {
		if *ceiling < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ceiling must be non-negative")
		}
		query = query.Where("current_value <= ?", *ceiling)
	}
	res := query.Updates(map[string]any{
		"ceiling":    ceiling,
		"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
	})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "resize capacity")
	}
	if res.RowsAffected == 0 {
		current, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeCapacityExceeded, "ceiling below current usage").WithDetails(map[string]any{
			"counter": key.String(),
			"current": current.Current,
		})
	}
	return r.Get(ctx, key)
}

func (r *repository) Overwrite(ctx context.Context, key Key, observed, value int64) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	if value < 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "counter value must be non-negative")
	}
	res := r.scoped(ctx, key).
		Where("current_value = ?", observed).
		Updates(map[string]any{
			"current_value": value,
			"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "overwrite counter")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Touch(ctx context.Context, key Key) error {
	res := r.scoped(ctx, key).Update("updated_at", gorm.Expr("updated_at"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "lock capacity counter")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "capacity counter not found").WithDetails(map[string]any{"counter": key.String()})
	}
	return nil
}
