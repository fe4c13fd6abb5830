package enums

import "fmt"

// EventStatus tracks the publication state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusClosed    EventStatus = "closed"
	EventStatusCancelled EventStatus = "cancelled"
)

var validEventStatuses = []EventStatus{
	EventStatusDraft,
	EventStatusPublished,
	EventStatusClosed,
	EventStatusCancelled,
}

// String implements fmt.Stringer.
func (s EventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EventStatus.
func (s EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// OpenForRegistration reports whether new registrations are accepted.
func (s EventStatus) OpenForRegistration() bool {
	return s == EventStatusPublished
}

// ParseEventStatus converts raw input into an EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}
