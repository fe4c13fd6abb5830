package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MentorProfile caps how many active mentees an alumnus takes on.
type MentorProfile struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AlumniID         uuid.UUID `gorm:"column:alumni_id;type:uuid;not null;uniqueIndex"`
	Expertise        string    `gorm:"column:expertise"`
	MaxMentees       int64     `gorm:"column:max_mentees;not null"`
	AcceptingMentees bool      `gorm:"column:accepting_mentees;not null;default:true"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (MentorProfile) TableName() string {
	return "mentor_profiles"
}

func (m *MentorProfile) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
