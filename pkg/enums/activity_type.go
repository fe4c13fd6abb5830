package enums

// ActivityType tags entries of the merged recent-activity feed.
type ActivityType string

const (
	ActivityTypeNewProfile    ActivityType = "new_profile"
	ActivityTypeNewEvent      ActivityType = "new_event"
	ActivityTypeDonation      ActivityType = "donation"
	ActivityTypeNewMentorship ActivityType = "new_mentorship"
)

// String implements fmt.Stringer.
func (t ActivityType) String() string {
	return string(t)
}
