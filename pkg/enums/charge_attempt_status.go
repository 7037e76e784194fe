package enums

import "fmt"

// ChargeAttemptStatus mirrors payment gateway attempt outcomes.
type ChargeAttemptStatus string

const (
	ChargeAttemptStatusProcessing     ChargeAttemptStatus = "processing"
	ChargeAttemptStatusRequiresAction ChargeAttemptStatus = "requires_action"
	ChargeAttemptStatusSucceeded      ChargeAttemptStatus = "succeeded"
	ChargeAttemptStatusFailed         ChargeAttemptStatus = "failed"
)

var validChargeAttemptStatuses = []ChargeAttemptStatus{
	ChargeAttemptStatusProcessing,
	ChargeAttemptStatusRequiresAction,
	ChargeAttemptStatusSucceeded,
	ChargeAttemptStatusFailed,
}

// String implements fmt.Stringer.
func (s ChargeAttemptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s ChargeAttemptStatus) IsValid() bool {
	for _, candidate := range validChargeAttemptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt can no longer change outcome.
func (s ChargeAttemptStatus) IsTerminal() bool {
	return s == ChargeAttemptStatusSucceeded || s == ChargeAttemptStatusFailed
}

// ParseChargeAttemptStatus converts raw input into a ChargeAttemptStatus.
func ParseChargeAttemptStatus(value string) (ChargeAttemptStatus, error) {
	for _, candidate := range validChargeAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge attempt status %q", value)
}
