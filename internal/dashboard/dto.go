package dashboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// Summary is a count with its month-over-month movement.
type Summary struct {
	Total     int64   `json:"total"`
	ThisMonth int64   `json:"this_month"`
	LastMonth int64   `json:"last_month"`
	Growth    float64 `json:"growth"`
}

// MoneySummary is Summary for settled donation amounts.
type MoneySummary struct {
	Total     decimal.Decimal `json:"total"`
	ThisMonth decimal.Decimal `json:"this_month"`
	LastMonth decimal.Decimal `json:"last_month"`
	Growth    float64         `json:"growth"`
}

type MonthlyAmount struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Metrics is the dashboard aggregate. Mentorships.Total counts active
// connections; its monthly figures count new connections.
type Metrics struct {
	Alumni           Summary         `json:"alumni"`
	Events           Summary         `json:"events"`
	UpcomingEvents   int64           `json:"upcoming_events"`
	Donations        MoneySummary    `json:"donations"`
	Mentorships      Summary         `json:"mentorships"`
	MonthlyDonations []MonthlyAmount `json:"monthly_donations"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// Activity is one entry of the merged recent-activity feed.
type Activity struct {
	Type       enums.ActivityType `json:"type"`
	ID         uuid.UUID          `json:"id"`
	Title      string             `json:"title,omitempty"`
	ResourceID *uuid.UUID         `json:"resource_id,omitempty"`
	Amount     *decimal.Decimal   `json:"amount,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}
