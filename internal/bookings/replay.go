package bookings

import (
	"fmt"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// StatusFromEvents folds a booking's event log, in timeline order, into the
// status the log implies. Baseline events reset the fold, which is how
// backfilled bookings that predate the event log get a starting point.
// Legacy transition rows may still carry the pre-rename "failed" literal, so
// their target goes through the same parse fold as the API boundary.
func StatusFromEvents(events []models.LifecycleEvent) (enums.BookingStatus, error) {
	if len(events) == 0 {
		return "", fmt.Errorf("empty event log")
	}

	status := enums.BookingStatusPendingCard
	for _, event := range events {
		switch event.EventType {
		case enums.LifecycleEventCreated, enums.LifecycleEventBaseline,
			enums.LifecycleEventTransition, enums.LifecycleEventOverrideTransition:
			if event.ToStatus == nil {
				return "", fmt.Errorf("event %s (%s) missing to_status", event.ID, event.EventType)
			}
			status = *event.ToStatus
		case enums.LifecycleEventLegacyTransition:
			if event.ToStatus == nil {
				return "", fmt.Errorf("event %s (%s) missing to_status", event.ID, event.EventType)
			}
			parsed, err := enums.ParseBookingStatus(event.ToStatus.String())
			if err != nil {
				return "", fmt.Errorf("event %s: %w", event.ID, err)
			}
			status = parsed
		case enums.LifecycleEventRescheduled:
			// schedule changes never move the status
		default:
			return "", fmt.Errorf("event %s has unknown type %q", event.ID, event.EventType)
		}
	}
	return status, nil
}
