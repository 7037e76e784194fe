package enums

import "fmt"

// BookingStatus is the operational lifecycle state of a booking. It is
// written exclusively by the lifecycle service.
type BookingStatus string

const (
	BookingStatusPendingCard   BookingStatus = "pending_card"
	BookingStatusCardSaved     BookingStatus = "card_saved"
	BookingStatusScheduled     BookingStatus = "scheduled"
	BookingStatusInProgress    BookingStatus = "in_progress"
	BookingStatusCompleted     BookingStatus = "completed"
	BookingStatusPaymentFailed BookingStatus = "payment_failed"
	BookingStatusCharged       BookingStatus = "charged"
	BookingStatusCancelled     BookingStatus = "cancelled"
)

// legacyFailedStatus predates the payment_failed rename. It is accepted on
// read and never written.
const legacyFailedStatus = "failed"

var validBookingStatuses = []BookingStatus{
	BookingStatusPendingCard,
	BookingStatusCardSaved,
	BookingStatusScheduled,
	BookingStatusInProgress,
	BookingStatusCompleted,
	BookingStatusPaymentFailed,
	BookingStatusCharged,
	BookingStatusCancelled,
}

// String implements fmt.Stringer.
func (s BookingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no non-override transition leaves the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCharged || s == BookingStatusCancelled
}

// ParseBookingStatus converts raw input into a BookingStatus, folding the
// legacy "failed" literal into payment_failed.
func ParseBookingStatus(value string) (BookingStatus, error) {
	if value == legacyFailedStatus {
		return BookingStatusPaymentFailed, nil
	}
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
