package enums

import "fmt"

// LedgerKind identifies which lifecycle table a status ledger row follows.
type LedgerKind string

const (
	LedgerKindEventRegistration    LedgerKind = "event_registration"
	LedgerKindMentorshipConnection LedgerKind = "mentorship_connection"
	LedgerKindDonation             LedgerKind = "donation"
)

var validLedgerKinds = []LedgerKind{
	LedgerKindEventRegistration,
	LedgerKindMentorshipConnection,
	LedgerKindDonation,
}

// String implements fmt.Stringer.
func (k LedgerKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known LedgerKind.
func (k LedgerKind) IsValid() bool {
	for _, candidate := range validLedgerKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLedgerKind converts raw input into a LedgerKind.
func ParseLedgerKind(value string) (LedgerKind, error) {
	for _, candidate := range validLedgerKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger kind %q", value)
}

// CounterKind namespaces capacity counters by the resource that owns them.
type CounterKind string

const (
	CounterKindEvent    CounterKind = "event"
	CounterKindMentor   CounterKind = "mentor"
	CounterKindCampaign CounterKind = "campaign"
)

var validCounterKinds = []CounterKind{
	CounterKindEvent,
	CounterKindMentor,
	CounterKindCampaign,
}

// String implements fmt.Stringer.
func (k CounterKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CounterKind.
func (k CounterKind) IsValid() bool {
	for _, candidate := range validCounterKinds {
		if candidate == k {
			return true
		}
	}
	return false
}
