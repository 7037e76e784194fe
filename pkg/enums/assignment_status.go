package enums

import "fmt"

// AssignmentStatus tracks a staff or crew assignment against a booking.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusDeclined   AssignmentStatus = "declined"
	AssignmentStatusCancelled  AssignmentStatus = "cancelled"
	AssignmentStatusNoShow     AssignmentStatus = "no_show"
	AssignmentStatusInProgress AssignmentStatus = "in_progress"
	AssignmentStatusCompleted  AssignmentStatus = "completed"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusDeclined,
	AssignmentStatusCancelled,
	AssignmentStatusNoShow,
	AssignmentStatusInProgress,
	AssignmentStatusCompleted,
}

// String implements fmt.Stringer.
func (s AssignmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the assignment still counts toward readiness.
// Declined, cancelled, and no-show assignments drop out of aggregation.
func (s AssignmentStatus) IsActive() bool {
	switch s {
	case AssignmentStatusDeclined, AssignmentStatusCancelled, AssignmentStatusNoShow:
		return false
	default:
		return true
	}
}

// AllAssignmentStatuses returns every known assignment status.
func AllAssignmentStatuses() []AssignmentStatus {
	out := make([]AssignmentStatus, len(validAssignmentStatuses))
	copy(out, validAssignmentStatuses)
	return out
}

// ParseAssignmentStatus converts raw input into an AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
