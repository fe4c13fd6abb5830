package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlumniProfile holds the fields the dashboard reads; the full profile schema
// lives with the profile service.
type AlumniProfile struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	FullName       string    `gorm:"column:full_name;not null"`
	GraduationYear int       `gorm:"column:graduation_year"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index"`
}

func (AlumniProfile) TableName() string {
	return "alumni_profiles"
}

func (p *AlumniProfile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
