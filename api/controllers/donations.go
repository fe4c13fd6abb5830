package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/alumnet-backend/api/middleware"
	"github.com/angelmondragon/alumnet-backend/api/responses"
	"github.com/angelmondragon/alumnet-backend/api/validators"
	"github.com/angelmondragon/alumnet-backend/internal/donations"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

type createCampaignBody struct {
	Title      string          `json:"title" validate:"required,max=200"`
	GoalAmount decimal.Decimal `json:"goal_amount"`
	EndsAt     *time.Time      `json:"ends_at"`
}

type pledgeBody struct {
	Reference string          `json:"reference" validate:"required,max=128"`
	Amount    decimal.Decimal `json:"amount"`
}

func CampaignCreate(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createCampaignBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.GoalAmount.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "goal_amount must not be negative"))
			return
		}
		campaign, err := svc.CreateCampaign(r.Context(), donations.CreateCampaignInput{
			Title:      validators.SanitizeString(body.Title, 200),
			GoalAmount: body.GoalAmount,
			EndsAt:     utcPtr(body.EndsAt),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, campaign)
	}
}

func CampaignGet(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaign, err := svc.GetCampaign(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, campaign)
	}
}

func CampaignTotal(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		total, err := svc.CampaignTotal(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, total)
	}
}

func CampaignPledge(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body pledgeBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !body.Amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}
		donation, err := svc.Pledge(r.Context(), donations.PledgeInput{
			CampaignID: campaignID,
			Reference:  validators.SanitizeString(body.Reference, 128),
			Amount:     body.Amount,
			ActorID:    middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, donation)
	}
}

func CampaignDonations(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statuses, err := validators.ParseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListDonations(r.Context(), campaignID, statuses)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func DonationGet(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		donation, err := svc.Donation(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}

// DonationAction settles a donation: complete, fail or refund.
func DonationAction(svc donations.Service, action string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorIDFromContext(r.Context())
		var donation *donations.DonationDTO
		switch action {
		case "complete":
			donation, err = svc.Complete(r.Context(), id, actor)
		case "fail":
			donation, err = svc.Fail(r.Context(), id, actor)
		case "refund":
			donation, err = svc.Refund(r.Context(), id, actor)
		default:
			err = pkgerrors.New(pkgerrors.CodeNotFound, "unknown donation action")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}
