package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// BookingTransitionedEvent is emitted whenever a booking moves between
// operational statuses through the legality table.
type BookingTransitionedEvent struct {
	BookingID  uuid.UUID           `json:"booking_id"`
	CustomerID uuid.UUID           `json:"customer_id"`
	FromStatus enums.BookingStatus `json:"from_status"`
	ToStatus   enums.BookingStatus `json:"to_status"`
	Source     enums.EventSource   `json:"source"`
}

// BookingOverriddenEvent is emitted when an admin forces a status outside the
// legality table.
type BookingOverriddenEvent struct {
	BookingID  uuid.UUID           `json:"booking_id"`
	CustomerID uuid.UUID           `json:"customer_id"`
	FromStatus enums.BookingStatus `json:"from_status"`
	ToStatus   enums.BookingStatus `json:"to_status"`
	ActorID    uuid.UUID           `json:"actor_id"`
	Reason     string              `json:"reason"`
}

// BookingRescheduledEvent captures a service date or window change.
type BookingRescheduledEvent struct {
	BookingID      uuid.UUID  `json:"booking_id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	OldServiceDate *time.Time `json:"old_service_date,omitempty"`
	NewServiceDate *time.Time `json:"new_service_date,omitempty"`
	WindowStart    *string    `json:"window_start,omitempty"`
	WindowEnd      *string    `json:"window_end,omitempty"`
}

// BookingChargedEvent is emitted when a charge attempt settles successfully.
type BookingChargedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	ChargeAttemptID uuid.UUID `json:"charge_attempt_id"`
	SquarePaymentID string    `json:"square_payment_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
}

// ChargeDeclinedEvent is emitted when the gateway declines a charge attempt.
type ChargeDeclinedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	ChargeAttemptID uuid.UUID `json:"charge_attempt_id"`
	Ordinal         int       `json:"ordinal"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}
