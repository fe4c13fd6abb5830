// Package donations tracks campaign donations. Each donation is a ledger row
// keyed by its payment reference, so a settled amount is added to the campaign
// total exactly once and removed only by a refund.
package donations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	CreateCampaign(ctx context.Context, input CreateCampaignInput) (*CampaignDTO, error)
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (*CampaignDTO, error)
	Pledge(ctx context.Context, input PledgeInput) (*DonationDTO, error)
	Complete(ctx context.Context, donationID uuid.UUID, actorID string) (*DonationDTO, error)
	Fail(ctx context.Context, donationID uuid.UUID, actorID string) (*DonationDTO, error)
	Refund(ctx context.Context, donationID uuid.UUID, actorID string) (*DonationDTO, error)
	Donation(ctx context.Context, donationID uuid.UUID) (*DonationDTO, error)
	ListDonations(ctx context.Context, campaignID uuid.UUID, statuses []enums.LedgerStatus) ([]DonationDTO, error)
	CampaignTotal(ctx context.Context, campaignID uuid.UUID) (*CampaignTotal, error)
}

type ServiceParams struct {
	Repo        Repository
	DB          txRunner
	Lifecycle   lifecycle.Service
	Invalidator lifecycle.Invalidator
	Now         func() time.Time
}

type service struct {
	repo        Repository
	db          txRunner
	lifecycle   lifecycle.Service
	invalidator lifecycle.Invalidator
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("campaign repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.Lifecycle.Definition().Kind() != enums.LedgerKindDonation {
		return nil, fmt.Errorf("lifecycle service must govern donations")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		db:          params.DB,
		lifecycle:   params.Lifecycle,
		invalidator: params.Invalidator,
		now:         now,
	}, nil
}

func (s *service) CreateCampaign(ctx context.Context, input CreateCampaignInput) (*CampaignDTO, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if _, err := ToCents(input.GoalAmount); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "goal amount must be a positive amount with at most two decimal places")
	}

	now := s.now().UTC()
	campaign := &models.Campaign{
		Title:      title,
		GoalAmount: input.GoalAmount,
		EndsAt:     input.EndsAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var counter *models.CapacityCounter
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create campaign")
		}
		var err error
		counter, err = s.lifecycle.Provision(ctx, tx, campaign.ID, nil)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create campaign")
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	dto := toCampaignDTO(*campaign, counter)
	return &dto, nil
}

func (s *service) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*CampaignDTO, error) {
	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	counter, err := s.lifecycle.Counter(ctx, campaignID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	dto := toCampaignDTO(*campaign, counter)
	return &dto, nil
}

func (s *service) Pledge(ctx context.Context, input PledgeInput) (*DonationDTO, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "donation reference required")
	}
	cents, err := ToCents(input.Amount)
	if err != nil {
		return nil, err
	}
	campaign, err := s.loadCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.EndsAt != nil && !s.now().Before(*campaign.EndsAt) {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "campaign has ended")
	}

	result, err := s.lifecycle.Transition(ctx, lifecycle.TransitionInput{
		ResourceID: campaign.ID,
		SubjectID:  reference,
		Action:     lifecycle.ActionPledge,
		Weight:     cents,
		ActorID:    input.ActorID,
	})
	if err != nil {
		return nil, err
	}
	dto := toDonationDTO(result.Ledger)
	return &dto, nil
}

// Complete settles a pending donation into the campaign total. Replaying it
// fails with INVALID_TRANSITION and leaves the total unchanged.
func (s *service) Complete(ctx context.Context, donationID uuid.UUID, actorID string) (*DonationDTO, error) {
	return s.apply(ctx, donationID, lifecycle.ActionComplete, actorID)
}

func (s *service) Fail(ctx context.Context, donationID uuid.UUID, actorID string) (*DonationDTO, error) {
	return s.apply(ctx, donationID, lifecycle.ActionFail, actorID)
}

func (s *service) Refund(ctx context.Context, donationID uuid.UUID, actorID string) (*DonationDTO, error) {
	return s.apply(ctx, donationID, lifecycle.ActionRefund, actorID)
}

func (s *service) apply(ctx context.Context, donationID uuid.UUID, action lifecycle.Action, actorID string) (*DonationDTO, error) {
	if donationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "donation id required")
	}
	result, err := s.lifecycle.Transition(ctx, lifecycle.TransitionInput{
		LedgerID: donationID,
		Action:   action,
		ActorID:  actorID,
	})
	if err != nil {
		return nil, err
	}
	dto := toDonationDTO(result.Ledger)
	return &dto, nil
}

func (s *service) Donation(ctx context.Context, donationID uuid.UUID) (*DonationDTO, error) {
	ledger, err := s.lifecycle.Ledger(ctx, donationID)
	if err != nil {
		return nil, err
	}
	dto := toDonationDTO(*ledger)
	return &dto, nil
}

func (s *service) ListDonations(ctx context.Context, campaignID uuid.UUID, statuses []enums.LedgerStatus) ([]DonationDTO, error) {
	if _, err := s.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	ledgers, err := s.lifecycle.List(ctx, campaignID, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]DonationDTO, 0, len(ledgers))
	for _, ledger := range ledgers {
		out = append(out, toDonationDTO(ledger))
	}
	return out, nil
}

func (s *service) CampaignTotal(ctx context.Context, campaignID uuid.UUID) (*CampaignTotal, error) {
	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	counter, err := s.lifecycle.Counter(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	raised := FromCents(counter.Current)
	total := &CampaignTotal{
		CampaignID: campaign.ID,
		GoalAmount: campaign.GoalAmount,
		Raised:     raised,
	}
	if campaign.GoalAmount.IsPositive() {
		total.PercentOfGoal = raised.Div(campaign.GoalAmount).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return total, nil
}

func (s *service) loadCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	campaign, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	return campaign, nil
}
