package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Campaign is a fundraising drive; its raised total lives in the campaign
// capacity counter (in cents) and may exceed GoalAmount.
type Campaign struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Title      string          `gorm:"column:title;not null"`
	GoalAmount decimal.Decimal `gorm:"column:goal_amount;type:numeric(12,2);not null"`
	EndsAt     *time.Time      `gorm:"column:ends_at"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
