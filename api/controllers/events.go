package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/alumnet-backend/api/middleware"
	"github.com/angelmondragon/alumnet-backend/api/responses"
	"github.com/angelmondragon/alumnet-backend/api/validators"
	"github.com/angelmondragon/alumnet-backend/internal/events"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

type createEventBody struct {
	Title                string     `json:"title" validate:"required,max=200"`
	Status               string     `json:"status" validate:"omitempty,oneof=draft published closed cancelled"`
	Capacity             int64      `json:"capacity" validate:"gte=0"`
	StartsAt             time.Time  `json:"starts_at" validate:"required"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
}

type eventCapacityBody struct {
	Capacity *int64 `json:"capacity" validate:"required,gte=0"`
}

type eventStatusBody struct {
	Status string `json:"status" validate:"required,oneof=draft published closed cancelled"`
}

type registerBody struct {
	AlumniID string `json:"alumni_id" validate:"required,uuid"`
}

func EventCreate(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createEventBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.CreateEvent(r.Context(), events.CreateEventInput{
			Title:                validators.SanitizeString(body.Title, 200),
			Status:               enums.EventStatus(body.Status),
			Capacity:             body.Capacity,
			StartsAt:             body.StartsAt.UTC(),
			RegistrationDeadline: utcPtr(body.RegistrationDeadline),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

func EventGet(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.GetEvent(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

func EventUpdateCapacity(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body eventCapacityBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.UpdateCapacity(r.Context(), id, *body.Capacity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

func EventUpdateStatus(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body eventStatusBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.UpdateStatus(r.Context(), id, enums.EventStatus(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

func EventRegister(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body registerBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		registration, err := svc.Register(r.Context(), events.RegisterInput{
			EventID:  eventID,
			AlumniID: uuid.MustParse(body.AlumniID),
			ActorID:  middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, registration)
	}
}

func EventRegistrations(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statuses, err := validators.ParseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		registrations, err := svc.ListRegistrations(r.Context(), eventID, statuses)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, registrations)
	}
}

func RegistrationGet(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "registrationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		registration, err := svc.Registration(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, registration)
	}
}

// RegistrationAction applies a registration verb (attend or cancel).
func RegistrationAction(svc events.Service, action string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "registrationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorIDFromContext(r.Context())
		var registration *events.RegistrationDTO
		switch action {
		case "attend":
			registration, err = svc.MarkAttended(r.Context(), id, actor)
		case "cancel":
			registration, err = svc.Cancel(r.Context(), id, actor)
		default:
			err = pkgerrors.New(pkgerrors.CodeNotFound, "unknown registration action")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, registration)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
