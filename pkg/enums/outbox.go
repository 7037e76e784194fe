package enums

// OutboxEventType names the domain events emitted through the outbox.
type OutboxEventType string

const (
	EventBookingTransitioned OutboxEventType = "booking.transitioned"
	EventBookingOverridden   OutboxEventType = "booking.overridden"
	EventBookingRescheduled  OutboxEventType = "booking.rescheduled"
	EventBookingCharged      OutboxEventType = "booking.charged"
	EventChargeDeclined      OutboxEventType = "booking.charge_declined"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateBooking OutboxAggregateType = "booking"
)

// OutboxDLQErrorReason classifies why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	DLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	DLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
