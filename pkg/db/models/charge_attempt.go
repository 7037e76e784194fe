package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// ChargeAttempt records one gateway charge against a booking. The ordinal is
// per booking; at most one non-terminal attempt may exist per booking, which
// the conditional insert enforces.
type ChargeAttempt struct {
	ID              uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID       uuid.UUID                 `gorm:"column:booking_id;type:uuid;not null;index:idx_charge_attempts_booking"`
	Ordinal         int                       `gorm:"column:ordinal;not null"`
	Status          enums.ChargeAttemptStatus `gorm:"column:status;type:charge_attempt_status;not null;default:'processing'"`
	IdempotencyKey  string                    `gorm:"column:idempotency_key;not null;unique"`
	SquarePaymentID *string                   `gorm:"column:square_payment_id;unique"`
	AmountCents     int64                     `gorm:"column:amount_cents;not null"`
	Currency        string                    `gorm:"column:currency;not null;default:'USD'"`
	AuthLink        *string                   `gorm:"column:auth_link"`
	FailureReason   *string                   `gorm:"column:failure_reason"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
