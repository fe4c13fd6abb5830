package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// CreateEventInput describes a new event. Zero Capacity falls back to the
// configured default; Status defaults to published.
type CreateEventInput struct {
	Title                string
	Status               enums.EventStatus
	Capacity             int64
	StartsAt             time.Time
	RegistrationDeadline *time.Time
}

// RegisterInput asks for a seat for AlumniID at EventID.
type RegisterInput struct {
	EventID  uuid.UUID
	AlumniID uuid.UUID
	ActorID  string
}

// EventDTO is an event with its live seat usage.
type EventDTO struct {
	ID                   uuid.UUID         `json:"id"`
	Title                string            `json:"title"`
	Status               enums.EventStatus `json:"status"`
	Capacity             int64             `json:"capacity"`
	Registered           int64             `json:"registered"`
	Remaining            int64             `json:"remaining"`
	StartsAt             time.Time         `json:"starts_at"`
	RegistrationDeadline *time.Time        `json:"registration_deadline,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// RegistrationDTO is the API view of an event registration ledger.
type RegistrationDTO struct {
	ID        uuid.UUID          `json:"id"`
	EventID   uuid.UUID          `json:"event_id"`
	AlumniID  string             `json:"alumni_id"`
	Status    enums.LedgerStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	// Registered is the event's seat count after the operation, when known.
	Registered *int64 `json:"registered,omitempty"`
}

func toEventDTO(event models.Event, counter *models.CapacityCounter) EventDTO {
	dto := EventDTO{
		ID:                   event.ID,
		Title:                event.Title,
		Status:               event.Status,
		Capacity:             event.Capacity,
		Remaining:            event.Capacity,
		StartsAt:             event.StartsAt,
		RegistrationDeadline: event.RegistrationDeadline,
		CreatedAt:            event.CreatedAt,
	}
	if counter != nil {
		dto.Registered = counter.Current
		if counter.Ceiling != nil {
			dto.Capacity = *counter.Ceiling
		}
		dto.Remaining = counter.Remaining()
	}
	return dto
}

func toRegistrationDTO(ledger models.Ledger, counter *models.CapacityCounter) RegistrationDTO {
	dto := RegistrationDTO{
		ID:        ledger.ID,
		EventID:   ledger.ResourceID,
		AlumniID:  ledger.SubjectID,
		Status:    ledger.Status,
		CreatedAt: ledger.CreatedAt,
		UpdatedAt: ledger.UpdatedAt,
	}
	if counter != nil {
		registered := counter.Current
		dto.Registered = &registered
	}
	return dto
}
