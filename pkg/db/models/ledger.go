package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// Ledger is one subject's claim on a capacity-bounded resource: an event
// registration, a mentorship connection or a campaign donation. A row is never
// duplicated for the same (kind, resource, subject); cancelled rows are
// reactivated in place.
type Ledger struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Kind       enums.LedgerKind   `gorm:"column:kind;type:varchar(32);not null;uniqueIndex:ux_status_ledgers_subject,priority:1;index:ix_status_ledgers_kind_status,priority:1"`
	ResourceID uuid.UUID          `gorm:"column:resource_id;type:uuid;not null;uniqueIndex:ux_status_ledgers_subject,priority:2"`
	SubjectID  string             `gorm:"column:subject_id;type:varchar(128);not null;uniqueIndex:ux_status_ledgers_subject,priority:3"`
	Status     enums.LedgerStatus `gorm:"column:status;type:varchar(32);not null;index:ix_status_ledgers_kind_status,priority:2"`
	Weight     int64              `gorm:"column:weight;not null;default:1"`
	CreatedAt  time.Time          `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;not null"`
}

// TableName pins the table name shared by every ledger kind.
func (Ledger) TableName() string {
	return "status_ledgers"
}

// BeforeCreate assigns the immutable identifier when the caller did not.
func (l *Ledger) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
