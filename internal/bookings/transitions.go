package bookings

import "github.com/tidyops/tidyops-backend/pkg/enums"

// transitionTable enumerates every legal non-override move. Terminal
// statuses have no outgoing edges; only Override leaves them.
var transitionTable = map[enums.BookingStatus][]enums.BookingStatus{
	enums.BookingStatusPendingCard: {
		enums.BookingStatusCardSaved,
		enums.BookingStatusCancelled,
	},
	enums.BookingStatusCardSaved: {
		enums.BookingStatusScheduled,
		enums.BookingStatusCancelled,
	},
	enums.BookingStatusScheduled: {
		enums.BookingStatusInProgress,
		enums.BookingStatusCancelled,
	},
	enums.BookingStatusInProgress: {
		enums.BookingStatusCompleted,
	},
	enums.BookingStatusCompleted: {
		enums.BookingStatusCharged,
		enums.BookingStatusPaymentFailed,
	},
	enums.BookingStatusPaymentFailed: {
		enums.BookingStatusCharged,
	},
}

// CanTransition reports whether the legality table permits from -> to.
func CanTransition(from, to enums.BookingStatus) bool {
	for _, target := range transitionTable[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given status.
func AllowedTargets(from enums.BookingStatus) []enums.BookingStatus {
	targets := transitionTable[from]
	out := make([]enums.BookingStatus, len(targets))
	copy(out, targets)
	return out
}
