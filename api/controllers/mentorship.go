package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/alumnet-backend/api/middleware"
	"github.com/angelmondragon/alumnet-backend/api/responses"
	"github.com/angelmondragon/alumnet-backend/api/validators"
	"github.com/angelmondragon/alumnet-backend/internal/mentorship"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

type createMentorBody struct {
	AlumniID   string `json:"alumni_id" validate:"required,uuid"`
	Expertise  string `json:"expertise" validate:"max=500"`
	MaxMentees int64  `json:"max_mentees" validate:"gte=0"`
}

type updateMentorBody struct {
	MaxMentees       *int64 `json:"max_mentees" validate:"omitempty,gte=0"`
	AcceptingMentees *bool  `json:"accepting_mentees"`
}

type requestMentorBody struct {
	MenteeID string `json:"mentee_id" validate:"required,uuid"`
}

func MentorCreate(svc mentorship.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createMentorBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mentor, err := svc.CreateMentorProfile(r.Context(), mentorship.CreateMentorProfileInput{
			AlumniID:   uuid.MustParse(body.AlumniID),
			Expertise:  validators.SanitizeString(body.Expertise, 500),
			MaxMentees: body.MaxMentees,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mentor)
	}
}

func MentorGet(svc mentorship.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mentor, err := svc.GetMentor(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mentor)
	}
}

// MentorUpdate changes the mentee limit and/or the accepting flag.
func MentorUpdate(svc mentorship.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateMentorBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.MaxMentees == nil && body.AcceptingMentees == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update"))
			return
		}
		var mentor *mentorship.MentorDTO
		if body.MaxMentees != nil {
			if mentor, err = svc.UpdateMaxMentees(r.Context(), id, *body.MaxMentees); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if body.AcceptingMentees != nil {
			if mentor, err = svc.SetAccepting(r.Context(), id, *body.AcceptingMentees); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, mentor)
	}
}

func MentorRequest(svc mentorship.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mentorID, err := validators.ParseUUIDParam(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body requestMentorBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		connection, err := svc.Request(r.Context(), mentorship.RequestInput{
			MentorID: mentorID,
			MenteeID: uuid.MustParse(body.MenteeID),
			ActorID:  middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, connection)
	}
}

func MentorConnections(svc mentorship.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mentorID, err := validators.ParseUUIDParam(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statuses, err := validators.ParseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		connections, err := svc.ListConnections(r.Context(), mentorID, statuses)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, connections)
	}
}

func ConnectionGet(svc mentorship.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "connectionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		connection, err := svc.Connection(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, connection)
	}
}

// ConnectionAction applies accept, complete or cancel to a connection.
func ConnectionAction(svc mentorship.Service, action string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "connectionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorIDFromContext(r.Context())
		var connection *mentorship.ConnectionDTO
		switch action {
		case "accept":
			connection, err = svc.Accept(r.Context(), id, actor)
		case "complete":
			connection, err = svc.Complete(r.Context(), id, actor)
		case "cancel":
			connection, err = svc.Cancel(r.Context(), id, actor)
		default:
			err = pkgerrors.New(pkgerrors.CodeNotFound, "unknown connection action")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, connection)
	}
}
