package charges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/pkg/config"
	dbpkg "github.com/tidyops/tidyops-backend/pkg/db"
	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
	"github.com/tidyops/tidyops-backend/pkg/metrics"
	"github.com/tidyops/tidyops-backend/pkg/outbox"
	"github.com/tidyops/tidyops-backend/pkg/outbox/payloads"
	"github.com/tidyops/tidyops-backend/pkg/square"

	sq "github.com/square/square-go-sdk"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// bookingService is the slice of the lifecycle service the orchestrator needs.
type bookingService interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Transition(ctx context.Context, input bookings.TransitionInput) (*models.Booking, error)
	MarkCardOnFile(ctx context.Context, input bookings.MarkCardOnFileInput) (*models.Booking, error)
}

// chargeGateway runs payments against stored cards.
type chargeGateway interface {
	ChargeCard(ctx context.Context, params square.PaymentCreateParams) (*square.ChargeResult, error)
}

// cardVault creates gateway customers and stores card tokens.
type cardVault interface {
	EnsureCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	CreateCard(ctx context.Context, params square.CardCreateParams) (*sq.Card, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	bookings bookingService
	gateway  chargeGateway
	vault    cardVault
	outbox   outboxPublisher
	metrics  *metrics.BookingMetrics
	logg     *logger.Logger

	locationID     string
	gatewayTimeout time.Duration
	currency       string
}

// NewService builds the charge orchestration service.
func NewService(
	repo Repository,
	tx txRunner,
	bookingSvc bookingService,
	gateway chargeGateway,
	vault cardVault,
	outboxSvc outboxPublisher,
	m *metrics.BookingMetrics,
	logg *logger.Logger,
	squareCfg config.SquareConfig,
	chargeCfg config.ChargesConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("charges repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if bookingSvc == nil {
		return nil, fmt.Errorf("booking service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("charge gateway required")
	}
	if vault == nil {
		return nil, fmt.Errorf("card vault required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	timeout := chargeCfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	currency := chargeCfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return &service{
		repo:           repo,
		tx:             tx,
		bookings:       bookingSvc,
		gateway:        gateway,
		vault:          vault,
		outbox:         outboxSvc,
		metrics:        m,
		logg:           logg,
		locationID:     squareCfg.LocationID,
		gatewayTimeout: timeout,
		currency:       currency,
	}, nil
}

// chargeIdempotencyKey is stable per (booking, ordinal) so a retried call
// can never double-charge at the gateway.
func chargeIdempotencyKey(bookingID uuid.UUID, ordinal int) string {
	return fmt.Sprintf("charge:%s:%d", bookingID, ordinal)
}

func (s *service) ChargeBooking(ctx context.Context, input ChargeInput) (*models.ChargeAttempt, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	source := input.Source
	if source == "" {
		source = enums.EventSourceSystem
	}
	if !source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid event source %q", source))
	}

	booking, err := s.bookings.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusCompleted && booking.Status != enums.BookingStatusPaymentFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot charge a %s booking", booking.Status))
	}
	if booking.SquareCustomerID == nil || *booking.SquareCustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment customer on file for this booking")
	}

	method, err := s.repo.FindDefaultPaymentMethod(ctx, booking.CustomerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no card on file for this customer")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}

	var attempt *models.ChargeAttempt
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountAttemptsByBooking(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count charge attempts")
		}
		ordinal := int(count) + 1
		attempt = &models.ChargeAttempt{
			BookingID:      booking.ID,
			Ordinal:        ordinal,
			Status:         enums.ChargeAttemptStatusProcessing,
			IdempotencyKey: chargeIdempotencyKey(booking.ID, ordinal),
			AmountCents:    input.AmountCents,
			Currency:       s.currency,
		}
		if _, err := repo.CreateAttempt(ctx, attempt); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a charge attempt is already open for this booking")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create charge attempt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	start := time.Now()
	result, gwErr := s.gateway.ChargeCard(gwCtx, square.PaymentCreateParams{
		AmountCents:    attempt.AmountCents,
		Currency:       attempt.Currency,
		LocationID:     s.locationID,
		CustomerID:     *booking.SquareCustomerID,
		SourceID:       method.SquareCardID,
		IdempotencyKey: attempt.IdempotencyKey,
		ReferenceID:    booking.ID.String(),
		Note:           paymentNote(input.Description, attempt.AmountCents, attempt.Currency),
	})
	cancel()
	s.metrics.ObserveGatewayDuration(time.Since(start))

	if gwErr != nil {
		// the attempt stays processing; the webhook reconciler settles it
		s.metrics.IncChargeOutcome(string(square.ChargeOutcomeUnknown))
		if s.logg != nil {
			s.logg.Error(s.logg.WithBookingID(ctx, booking.ID.String()), "charge gateway call failed", gwErr)
		}
		return attempt, pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, "charge gateway call failed")
	}

	settled, err := s.settle(ctx, booking, attempt, result, source, input.ActorID)
	if err != nil {
		return attempt, err
	}
	if settled.Status == enums.ChargeAttemptStatusFailed {
		reason := "payment declined"
		if settled.FailureReason != nil && *settled.FailureReason != "" {
			reason = *settled.FailureReason
		}
		return settled, pkgerrors.New(pkgerrors.CodeDeclined, reason)
	}
	return settled, nil
}

func (s *service) SaveCardOnFile(ctx context.Context, input SaveCardInput) (*models.PaymentMethod, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.SourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source id required")
	}

	booking, err := s.bookings.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPendingCard && booking.Status != enums.BookingStatusCardSaved {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("cannot save a card on a %s booking", booking.Status))
	}

	customer, err := s.vault.EnsureCustomer(ctx, square.CustomerCreateParams{
		ReferenceID: booking.CustomerID.String(),
		Email:       input.Email,
		GivenName:   input.GivenName,
		FamilyName:  input.FamilyName,
	})
	if err != nil {
		return nil, err
	}
	squareCustomerID := stringDeref(customer.GetID())
	if squareCustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned customer without id")
	}

	card, err := s.vault.CreateCard(ctx, square.CardCreateParams{
		CustomerID:        squareCustomerID,
		SourceID:          input.SourceID,
		CardholderName:    input.CardholderName,
		VerificationToken: input.VerificationToken,
		ReferenceID:       booking.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	squareCardID := stringDeref(card.GetID())
	if squareCardID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned card without id")
	}

	method := &models.PaymentMethod{
		CustomerID:       booking.CustomerID,
		SquareCustomerID: squareCustomerID,
		SquareCardID:     squareCardID,
		CardBrand:        cardBrand(card),
		CardLast4:        card.GetLast4(),
		CardExpMonth:     intPointer(card.GetExpMonth()),
		CardExpYear:      intPointer(card.GetExpYear()),
		IsDefault:        true,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ClearDefaultPaymentMethods(ctx, booking.CustomerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default payment methods")
		}
		if _, err := repo.CreatePaymentMethod(ctx, method); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "card already on file")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment method")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	source := input.Source
	if source == "" {
		source = enums.EventSourceSystem
	}
	if _, err := s.bookings.MarkCardOnFile(ctx, bookings.MarkCardOnFileInput{
		BookingID:        booking.ID,
		SquareCustomerID: squareCustomerID,
		Source:           source,
		ActorID:          input.ActorID,
	}); err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithBookingID(ctx, booking.ID.String()), "card saved on file")
	}
	return method, nil
}

func (s *service) ResolveAttempt(ctx context.Context, input ResolveInput) (*models.ChargeAttempt, error) {
	if input.SquarePaymentID == "" && input.BookingID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id or booking id required")
	}
	switch input.Outcome {
	case square.ChargeOutcomeSucceeded, square.ChargeOutcomeRequiresAction, square.ChargeOutcomeDeclined:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported outcome %q", input.Outcome))
	}
	source := input.Source
	if source == "" {
		source = enums.EventSourceWebhook
	}

	attempt, err := s.findAttempt(ctx, input)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		// redelivered outcome for a settled attempt
		return attempt, nil
	}

	booking, err := s.bookings.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return nil, err
	}

	result := &square.ChargeResult{
		Outcome:   input.Outcome,
		PaymentID: input.SquarePaymentID,
	}
	if input.AuthLink != nil {
		result.AuthLink = *input.AuthLink
	}
	if input.FailureReason != nil {
		result.ErrorText = *input.FailureReason
	}
	return s.settle(ctx, booking, attempt, result, source, nil)
}

func (s *service) ListAttempts(ctx context.Context, bookingID uuid.UUID) ([]models.ChargeAttempt, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	attempts, err := s.repo.ListAttemptsByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list charge attempts")
	}
	return attempts, nil
}

func (s *service) findAttempt(ctx context.Context, input ResolveInput) (*models.ChargeAttempt, error) {
	if input.SquarePaymentID != "" {
		attempt, err := s.repo.FindAttemptBySquarePaymentID(ctx, input.SquarePaymentID)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find charge attempt")
		}
	}
	if input.BookingID != nil {
		attempt, err := s.repo.FindOpenAttemptByBooking(ctx, *input.BookingID)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open charge attempt")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge attempt not found")
}

// settle applies a normalized gateway outcome: attempt row and outbox event
// in one transaction, then the booking transition through the lifecycle
// service. Declines only push the booking to payment_failed from completed.
func (s *service) settle(
	ctx context.Context,
	booking *models.Booking,
	attempt *models.ChargeAttempt,
	result *square.ChargeResult,
	source enums.EventSource,
	actorID *uuid.UUID,
) (*models.ChargeAttempt, error) {
	switch result.Outcome {
	case square.ChargeOutcomeSucceeded:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			updates := map[string]any{"status": enums.ChargeAttemptStatusSucceeded}
			if result.PaymentID != "" {
				updates["square_payment_id"] = result.PaymentID
			}
			if err := repo.UpdateAttempt(ctx, attempt.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update charge attempt")
			}
			payload := payloads.BookingChargedEvent{
				BookingID:       booking.ID,
				CustomerID:      booking.CustomerID,
				ChargeAttemptID: attempt.ID,
				SquarePaymentID: result.PaymentID,
				AmountCents:     attempt.AmountCents,
				Currency:        attempt.Currency,
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingCharged,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Data:          payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit charged event")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		attempt.Status = enums.ChargeAttemptStatusSucceeded
		if result.PaymentID != "" {
			paymentID := result.PaymentID
			attempt.SquarePaymentID = &paymentID
		}
		if _, err := s.bookings.Transition(ctx, bookings.TransitionInput{
			BookingID: booking.ID,
			Target:    enums.BookingStatusCharged,
			Source:    source,
			ActorID:   actorID,
		}); err != nil {
			return attempt, err
		}
		s.metrics.IncChargeOutcome(string(square.ChargeOutcomeSucceeded))
		return attempt, nil

	case square.ChargeOutcomeRequiresAction:
		updates := map[string]any{"status": enums.ChargeAttemptStatusRequiresAction}
		if result.PaymentID != "" {
			updates["square_payment_id"] = result.PaymentID
		}
		if result.AuthLink != "" {
			updates["auth_link"] = result.AuthLink
		}
		if err := s.repo.UpdateAttempt(ctx, attempt.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update charge attempt")
		}
		attempt.Status = enums.ChargeAttemptStatusRequiresAction
		if result.AuthLink != "" {
			link := result.AuthLink
			attempt.AuthLink = &link
		}
		s.metrics.IncChargeOutcome(string(square.ChargeOutcomeRequiresAction))
		return attempt, nil

	case square.ChargeOutcomeDeclined:
		reason := result.ErrorText
		if reason == "" {
			reason = "payment declined"
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			updates := map[string]any{
				"status":         enums.ChargeAttemptStatusFailed,
				"failure_reason": reason,
			}
			if result.PaymentID != "" {
				updates["square_payment_id"] = result.PaymentID
			}
			if err := repo.UpdateAttempt(ctx, attempt.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update charge attempt")
			}
			payload := payloads.ChargeDeclinedEvent{
				BookingID:       booking.ID,
				CustomerID:      booking.CustomerID,
				ChargeAttemptID: attempt.ID,
				Ordinal:         attempt.Ordinal,
				FailureReason:   reason,
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventChargeDeclined,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Data:          payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit declined event")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		attempt.Status = enums.ChargeAttemptStatusFailed
		attempt.FailureReason = &reason
		if booking.Status == enums.BookingStatusCompleted {
			if _, err := s.bookings.Transition(ctx, bookings.TransitionInput{
				BookingID: booking.ID,
				Target:    enums.BookingStatusPaymentFailed,
				Source:    source,
				ActorID:   actorID,
				Reason:    &reason,
			}); err != nil {
				return attempt, err
			}
		}
		s.metrics.IncChargeOutcome(string(square.ChargeOutcomeDeclined))
		return attempt, nil

	default:
		s.metrics.IncChargeOutcome(string(square.ChargeOutcomeUnknown))
		return attempt, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("gateway returned unresolvable payment state for attempt %s", attempt.ID))
	}
}

// paymentNote renders the statement note shown in the gateway dashboard,
// with the amount in major units.
func paymentNote(description string, amountCents int64, currency string) string {
	if description == "" {
		description = "cleaning service charge"
	}
	amount := decimal.NewFromInt(amountCents).Shift(-2)
	return fmt.Sprintf("%s (%s %s)", description, amount.StringFixed(2), currency)
}

func stringDeref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func intPointer(value *int64) *int {
	if value == nil {
		return nil
	}
	v := int(*value)
	return &v
}

func cardBrand(card *sq.Card) *string {
	if card == nil || card.GetCardBrand() == nil {
		return nil
	}
	brand := string(*card.GetCardBrand())
	return &brand
}
