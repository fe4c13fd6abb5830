package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// CapacityCounter is the persisted tally of counted ledgers for a resource.
// Ceiling is nil for pure accumulators such as campaign totals (cents).
type CapacityCounter struct {
	Kind       enums.CounterKind `gorm:"column:kind;type:varchar(32);primaryKey"`
	ResourceID uuid.UUID         `gorm:"column:resource_id;type:uuid;primaryKey"`
	Current    int64             `gorm:"column:current_value;not null;default:0"`
	Ceiling    *int64            `gorm:"column:ceiling"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;not null"`
}

func (CapacityCounter) TableName() string {
	return "capacity_counters"
}

// Remaining returns the free slots, or -1 when the counter has no ceiling.
func (c CapacityCounter) Remaining() int64 {
	if c.Ceiling == nil {
		return -1
	}
	if left := *c.Ceiling - c.Current; left > 0 {
		return left
	}
	return 0
}
