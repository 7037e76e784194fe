package bookings

import (
	"testing"

	"github.com/tidyops/tidyops-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	legal := []struct {
		from, to enums.BookingStatus
	}{
		{enums.BookingStatusPendingCard, enums.BookingStatusCardSaved},
		{enums.BookingStatusPendingCard, enums.BookingStatusCancelled},
		{enums.BookingStatusCardSaved, enums.BookingStatusScheduled},
		{enums.BookingStatusCardSaved, enums.BookingStatusCancelled},
		{enums.BookingStatusScheduled, enums.BookingStatusInProgress},
		{enums.BookingStatusScheduled, enums.BookingStatusCancelled},
		{enums.BookingStatusInProgress, enums.BookingStatusCompleted},
		{enums.BookingStatusCompleted, enums.BookingStatusCharged},
		{enums.BookingStatusCompleted, enums.BookingStatusPaymentFailed},
		{enums.BookingStatusPaymentFailed, enums.BookingStatusCharged},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct {
		from, to enums.BookingStatus
	}{
		{enums.BookingStatusPendingCard, enums.BookingStatusScheduled},
		{enums.BookingStatusPendingCard, enums.BookingStatusCharged},
		{enums.BookingStatusCardSaved, enums.BookingStatusInProgress},
		{enums.BookingStatusScheduled, enums.BookingStatusCompleted},
		{enums.BookingStatusInProgress, enums.BookingStatusCancelled},
		{enums.BookingStatusCompleted, enums.BookingStatusCancelled},
		{enums.BookingStatusPaymentFailed, enums.BookingStatusCancelled},
		{enums.BookingStatusCharged, enums.BookingStatusPendingCard},
		{enums.BookingStatusCancelled, enums.BookingStatusPendingCard},
		{enums.BookingStatusCompleted, enums.BookingStatusInProgress},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoTargets(t *testing.T) {
	for _, status := range []enums.BookingStatus{enums.BookingStatusCharged, enums.BookingStatusCancelled} {
		if targets := AllowedTargets(status); len(targets) != 0 {
			t.Errorf("terminal status %s should have no targets, got %v", status, targets)
		}
	}
}

func TestAllowedTargetsCopies(t *testing.T) {
	targets := AllowedTargets(enums.BookingStatusPendingCard)
	if len(targets) != 2 {
		t.Fatalf("unexpected targets: %v", targets)
	}
	targets[0] = enums.BookingStatusCharged
	if CanTransition(enums.BookingStatusPendingCard, enums.BookingStatusCharged) {
		t.Fatal("mutating AllowedTargets result must not affect the table")
	}
}
