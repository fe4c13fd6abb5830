package mentorship

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

type CreateMentorProfileInput struct {
	AlumniID   uuid.UUID
	Expertise  string
	MaxMentees int64
}

// RequestInput asks MentorID (a mentor profile) to take on MenteeID.
type RequestInput struct {
	MentorID uuid.UUID
	MenteeID uuid.UUID
	ActorID  string
}

type MentorDTO struct {
	ID               uuid.UUID `json:"id"`
	AlumniID         uuid.UUID `json:"alumni_id"`
	Expertise        string    `json:"expertise"`
	MaxMentees       int64     `json:"max_mentees"`
	ActiveMentees    int64     `json:"active_mentees"`
	AcceptingMentees bool      `json:"accepting_mentees"`
	CreatedAt        time.Time `json:"created_at"`
}

type ConnectionDTO struct {
	ID            uuid.UUID          `json:"id"`
	MentorID      uuid.UUID          `json:"mentor_id"`
	MenteeID      string             `json:"mentee_id"`
	Status        enums.LedgerStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	ActiveMentees *int64             `json:"active_mentees,omitempty"`
}

func toMentorDTO(profile models.MentorProfile, counter *models.CapacityCounter) MentorDTO {
	dto := MentorDTO{
		ID:               profile.ID,
		AlumniID:         profile.AlumniID,
		Expertise:        profile.Expertise,
		MaxMentees:       profile.MaxMentees,
		AcceptingMentees: profile.AcceptingMentees,
		CreatedAt:        profile.CreatedAt,
	}
	if counter != nil {
		dto.ActiveMentees = counter.Current
	}
	return dto
}

func toConnectionDTO(ledger models.Ledger, counter *models.CapacityCounter) ConnectionDTO {
	dto := ConnectionDTO{
		ID:        ledger.ID,
		MentorID:  ledger.ResourceID,
		MenteeID:  ledger.SubjectID,
		Status:    ledger.Status,
		CreatedAt: ledger.CreatedAt,
		UpdatedAt: ledger.UpdatedAt,
	}
	if counter != nil {
		active := counter.Current
		dto.ActiveMentees = &active
	}
	return dto
}
