package bookings

import (
	"testing"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
)

func statusPtr(s enums.BookingStatus) *enums.BookingStatus {
	return &s
}

func TestStatusFromEvents_FullLifecycle(t *testing.T) {
	bookingID := uuid.New()
	events := []models.LifecycleEvent{
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventCreated, ToStatus: statusPtr(enums.BookingStatusPendingCard)},
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventTransition, FromStatus: statusPtr(enums.BookingStatusPendingCard), ToStatus: statusPtr(enums.BookingStatusCardSaved)},
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventRescheduled},
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventTransition, FromStatus: statusPtr(enums.BookingStatusCardSaved), ToStatus: statusPtr(enums.BookingStatusScheduled)},
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventTransition, FromStatus: statusPtr(enums.BookingStatusScheduled), ToStatus: statusPtr(enums.BookingStatusInProgress)},
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventTransition, FromStatus: statusPtr(enums.BookingStatusInProgress), ToStatus: statusPtr(enums.BookingStatusCompleted)},
		{ID: uuid.New(), BookingID: bookingID, EventType: enums.LifecycleEventTransition, FromStatus: statusPtr(enums.BookingStatusCompleted), ToStatus: statusPtr(enums.BookingStatusCharged)},
	}

	status, err := StatusFromEvents(events)
	if err != nil {
		t.Fatalf("StatusFromEvents error: %v", err)
	}
	if status != enums.BookingStatusCharged {
		t.Fatalf("expected charged, got %s", status)
	}
}

func TestStatusFromEvents_LegacyFailedFold(t *testing.T) {
	legacy := enums.BookingStatus("failed")
	events := []models.LifecycleEvent{
		{ID: uuid.New(), EventType: enums.LifecycleEventCreated, ToStatus: statusPtr(enums.BookingStatusPendingCard)},
		{ID: uuid.New(), EventType: enums.LifecycleEventLegacyTransition, ToStatus: &legacy},
	}

	status, err := StatusFromEvents(events)
	if err != nil {
		t.Fatalf("StatusFromEvents error: %v", err)
	}
	if status != enums.BookingStatusPaymentFailed {
		t.Fatalf("legacy failed should fold to payment_failed, got %s", status)
	}
}

func TestStatusFromEvents_BaselineResets(t *testing.T) {
	events := []models.LifecycleEvent{
		{ID: uuid.New(), EventType: enums.LifecycleEventCreated, ToStatus: statusPtr(enums.BookingStatusPendingCard)},
		{ID: uuid.New(), EventType: enums.LifecycleEventTransition, ToStatus: statusPtr(enums.BookingStatusCardSaved)},
		{ID: uuid.New(), EventType: enums.LifecycleEventBaseline, ToStatus: statusPtr(enums.BookingStatusCompleted)},
	}

	status, err := StatusFromEvents(events)
	if err != nil {
		t.Fatalf("StatusFromEvents error: %v", err)
	}
	if status != enums.BookingStatusCompleted {
		t.Fatalf("baseline should reset the fold, got %s", status)
	}
}

func TestStatusFromEvents_OverrideWins(t *testing.T) {
	events := []models.LifecycleEvent{
		{ID: uuid.New(), EventType: enums.LifecycleEventCreated, ToStatus: statusPtr(enums.BookingStatusPendingCard)},
		{ID: uuid.New(), EventType: enums.LifecycleEventTransition, ToStatus: statusPtr(enums.BookingStatusCardSaved)},
		{ID: uuid.New(), EventType: enums.LifecycleEventOverrideTransition, ToStatus: statusPtr(enums.BookingStatusCancelled)},
	}

	status, err := StatusFromEvents(events)
	if err != nil {
		t.Fatalf("StatusFromEvents error: %v", err)
	}
	if status != enums.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %s", status)
	}
}

func TestStatusFromEvents_Errors(t *testing.T) {
	if _, err := StatusFromEvents(nil); err == nil {
		t.Fatal("empty log should error")
	}

	missingTarget := []models.LifecycleEvent{
		{ID: uuid.New(), EventType: enums.LifecycleEventTransition},
	}
	if _, err := StatusFromEvents(missingTarget); err == nil {
		t.Fatal("transition without to_status should error")
	}

	unknown := []models.LifecycleEvent{
		{ID: uuid.New(), EventType: enums.LifecycleEventType("mystery"), ToStatus: statusPtr(enums.BookingStatusCharged)},
	}
	if _, err := StatusFromEvents(unknown); err == nil {
		t.Fatal("unknown event type should error")
	}
}
