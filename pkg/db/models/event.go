package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// Event is a capacity-bounded gathering alumni register for.
type Event struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Title                string            `gorm:"column:title;not null"`
	Status               enums.EventStatus `gorm:"column:status;type:varchar(32);not null"`
	Capacity             int64             `gorm:"column:capacity;not null"`
	StartsAt             time.Time         `gorm:"column:starts_at;not null;index"`
	RegistrationDeadline *time.Time        `gorm:"column:registration_deadline"`
	CreatedAt            time.Time         `gorm:"column:created_at;not null;index"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;not null"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
