package charges

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	"github.com/tidyops/tidyops-backend/pkg/square"
)

// Repository defines persistence operations for charge attempts and stored
// payment methods.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateAttempt inserts a new attempt. The partial unique index on open
	// attempts makes a second in-flight charge a unique violation.
	CreateAttempt(ctx context.Context, attempt *models.ChargeAttempt) (*models.ChargeAttempt, error)
	FindAttemptByID(ctx context.Context, id uuid.UUID) (*models.ChargeAttempt, error)
	FindOpenAttemptByBooking(ctx context.Context, bookingID uuid.UUID) (*models.ChargeAttempt, error)
	FindAttemptBySquarePaymentID(ctx context.Context, paymentID string) (*models.ChargeAttempt, error)
	ListAttemptsByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.ChargeAttempt, error)
	CountAttemptsByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error)
	UpdateAttempt(ctx context.Context, id uuid.UUID, updates map[string]any) error

	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) (*models.PaymentMethod, error)
	FindDefaultPaymentMethod(ctx context.Context, customerID uuid.UUID) (*models.PaymentMethod, error)
	ClearDefaultPaymentMethods(ctx context.Context, customerID uuid.UUID) error
}

// ChargeInput triggers a charge against a booking's card on file. The amount
// is passed explicitly rather than read off the booking so the caller decides
// what the final invoice is.
type ChargeInput struct {
	BookingID   uuid.UUID
	AmountCents int64
	Description string
	Source      enums.EventSource
	ActorID     *uuid.UUID
}

// SaveCardInput vaults a tokenized card for the booking's customer.
type SaveCardInput struct {
	BookingID         uuid.UUID
	SourceID          string
	CardholderName    string
	Email             string
	GivenName         string
	FamilyName        string
	VerificationToken string
	Source            enums.EventSource
	ActorID           *uuid.UUID
}

// ResolveInput applies a gateway-reported outcome to an attempt, typically
// from a webhook delivery.
type ResolveInput struct {
	SquarePaymentID string
	BookingID       *uuid.UUID
	Outcome         square.ChargeOutcome
	AuthLink        *string
	FailureReason   *string
	Source          enums.EventSource
}

// Service orchestrates charges against the payment gateway and keeps the
// attempt ledger consistent with the booking lifecycle.
type Service interface {
	ChargeBooking(ctx context.Context, input ChargeInput) (*models.ChargeAttempt, error)
	SaveCardOnFile(ctx context.Context, input SaveCardInput) (*models.PaymentMethod, error)
	ResolveAttempt(ctx context.Context, input ResolveInput) (*models.ChargeAttempt, error)
	ListAttempts(ctx context.Context, bookingID uuid.UUID) ([]models.ChargeAttempt, error)
}
