package enums

import "fmt"

// LedgerStatus is the union of every status a ledger row can hold. Which
// subset applies depends on the ledger kind's transition table.
type LedgerStatus string

const (
	// LedgerStatusNone is the pseudo-state of a ledger that does not exist yet.
	LedgerStatusNone LedgerStatus = ""

	LedgerStatusRegistered LedgerStatus = "registered"
	LedgerStatusAttended   LedgerStatus = "attended"
	LedgerStatusCancelled  LedgerStatus = "cancelled"

	LedgerStatusPending   LedgerStatus = "pending"
	LedgerStatusActive    LedgerStatus = "active"
	LedgerStatusCompleted LedgerStatus = "completed"

	LedgerStatusFailed   LedgerStatus = "failed"
	LedgerStatusRefunded LedgerStatus = "refunded"
)

var validLedgerStatuses = []LedgerStatus{
	LedgerStatusRegistered,
	LedgerStatusAttended,
	LedgerStatusCancelled,
	LedgerStatusPending,
	LedgerStatusActive,
	LedgerStatusCompleted,
	LedgerStatusFailed,
	LedgerStatusRefunded,
}

// String implements fmt.Stringer.
func (s LedgerStatus) String() string {
	if s == LedgerStatusNone {
		return "none"
	}
	return string(s)
}

// IsValid reports whether the value is a persisted LedgerStatus.
func (s LedgerStatus) IsValid() bool {
	for _, candidate := range validLedgerStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerStatus converts raw input into a LedgerStatus.
func ParseLedgerStatus(value string) (LedgerStatus, error) {
	for _, candidate := range validLedgerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger status %q", value)
}
