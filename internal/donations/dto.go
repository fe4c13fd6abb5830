package donations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

type CreateCampaignInput struct {
	Title      string
	GoalAmount decimal.Decimal
	EndsAt     *time.Time
}

// PledgeInput records an incoming donation. Reference is the payment
// identifier and must be unique per campaign; replays are rejected.
type PledgeInput struct {
	CampaignID uuid.UUID
	Reference  string
	Amount     decimal.Decimal
	ActorID    string
}

type CampaignDTO struct {
	ID         uuid.UUID       `json:"id"`
	Title      string          `json:"title"`
	GoalAmount decimal.Decimal `json:"goal_amount"`
	Raised     decimal.Decimal `json:"raised"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CampaignTotal is the settled amount raised against a campaign's goal.
type CampaignTotal struct {
	CampaignID    uuid.UUID       `json:"campaign_id"`
	GoalAmount    decimal.Decimal `json:"goal_amount"`
	Raised        decimal.Decimal `json:"raised"`
	PercentOfGoal float64         `json:"percent_of_goal"`
}

type DonationDTO struct {
	ID         uuid.UUID          `json:"id"`
	CampaignID uuid.UUID          `json:"campaign_id"`
	Reference  string             `json:"reference"`
	Amount     decimal.Decimal    `json:"amount"`
	Status     enums.LedgerStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func toCampaignDTO(campaign models.Campaign, counter *models.CapacityCounter) CampaignDTO {
	dto := CampaignDTO{
		ID:         campaign.ID,
		Title:      campaign.Title,
		GoalAmount: campaign.GoalAmount,
		Raised:     decimal.Zero,
		EndsAt:     campaign.EndsAt,
		CreatedAt:  campaign.CreatedAt,
	}
	if counter != nil {
		dto.Raised = FromCents(counter.Current)
	}
	return dto
}

func toDonationDTO(ledger models.Ledger) DonationDTO {
	return DonationDTO{
		ID:         ledger.ID,
		CampaignID: ledger.ResourceID,
		Reference:  ledger.SubjectID,
		Amount:     FromCents(ledger.Weight),
		Status:     ledger.Status,
		CreatedAt:  ledger.CreatedAt,
		UpdatedAt:  ledger.UpdatedAt,
	}
}
