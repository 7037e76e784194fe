package squarewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/internal/charges"
	dbpkg "github.com/tidyops/tidyops-backend/pkg/db"
	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
	"github.com/tidyops/tidyops-backend/pkg/metrics"
	"github.com/tidyops/tidyops-backend/pkg/square"
)

// webhook dispositions for metrics
const (
	dispositionProcessed = "processed"
	dispositionDuplicate = "duplicate"
	dispositionIgnored   = "ignored"
	dispositionFailed    = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// chargeResolver is the slice of the charges service the reconciler needs.
type chargeResolver interface {
	ResolveAttempt(ctx context.Context, input charges.ResolveInput) (*models.ChargeAttempt, error)
}

// bookingService is the slice of the lifecycle service the reconciler needs.
type bookingService interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	MarkCardOnFile(ctx context.Context, input bookings.MarkCardOnFileInput) (*models.Booking, error)
}

// paymentMethodStore persists cards reported by the gateway.
type paymentMethodStore interface {
	WithTx(tx *gorm.DB) charges.Repository
	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) (*models.PaymentMethod, error)
	ClearDefaultPaymentMethods(ctx context.Context, customerID uuid.UUID) error
}

type ServiceParams struct {
	Events            EventStore
	Charges           chargeResolver
	Bookings          bookingService
	PaymentMethods    paymentMethodStore
	TransactionRunner txRunner
	Metrics           *metrics.BookingMetrics
	Logger            *logger.Logger
}

// Service reconciles gateway webhook deliveries against bookings and charge
// attempts. Deliveries are at-least-once and unordered; everything here must
// tolerate replays.
type Service struct {
	events   EventStore
	charges  chargeResolver
	bookings bookingService
	methods  paymentMethodStore
	txRunner txRunner
	metrics  *metrics.BookingMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event store required")
	}
	if params.Charges == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "charges service required")
	}
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking service required")
	}
	if params.PaymentMethods == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method store required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		events:   params.Events,
		charges:  params.Charges,
		bookings: params.Bookings,
		methods:  params.PaymentMethods,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *PaymentObject `json:"payment,omitempty"`
	Card    *CardObject    `json:"card,omitempty"`
}

// PaymentObject is the payment slice of a charge event. ReferenceID carries
// the booking id set when the payment was created.
type PaymentObject struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ReferenceID   string `json:"reference_id"`
	AuthLink      string `json:"auth_link,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// CardObject is the card slice of a setup event.
type CardObject struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	ReferenceID string `json:"reference_id"`
	Brand       string `json:"card_brand,omitempty"`
	Last4       string `json:"last_4,omitempty"`
	ExpMonth    *int64 `json:"exp_month,omitempty"`
	ExpYear     *int64 `json:"exp_year,omitempty"`
}

// HandleEvent processes one Square delivery end to end: durable dedupe,
// domain reconciliation, then the processed marker.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(event.Data.ID)
	}
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event id missing")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal event payload")
	}

	record := &models.GatewayEvent{
		ProviderEventID: eventID,
		EventType:       event.Type,
		BookingID:       s.bookingIDFromEvent(event),
		Payload:         payload,
	}
	stored, fresh, err := s.events.Record(ctx, record)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway event")
	}
	if !fresh && stored.ProcessedAt != nil {
		s.metrics.IncWebhookEvent(dispositionDuplicate)
		return nil
	}

	disposition, err := s.dispatch(ctx, event)
	if err != nil {
		s.metrics.IncWebhookEvent(dispositionFailed)
		return err
	}

	if err := s.events.MarkProcessed(ctx, eventID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark gateway event processed")
	}
	s.metrics.IncWebhookEvent(disposition)
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *SquareWebhookEvent) (string, error) {
	switch strings.ToLower(event.Type) {
	case "setup.completed", "card.created":
		if event.Data.Object.Card == nil {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "card payload missing")
		}
		return dispositionProcessed, s.handleCardSaved(ctx, event.Data.Object.Card)
	case "charge.succeeded", "payment.completed":
		return s.resolveCharge(ctx, event, square.ChargeOutcomeSucceeded)
	case "charge.failed", "payment.failed":
		return s.resolveCharge(ctx, event, square.ChargeOutcomeDeclined)
	case "charge.requires_action":
		return s.resolveCharge(ctx, event, square.ChargeOutcomeRequiresAction)
	default:
		// unrecognized types are acknowledged so the provider stops resending
		return dispositionIgnored, nil
	}
}

func (s *Service) handleCardSaved(ctx context.Context, card *CardObject) error {
	if card.ID == "" || card.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "card id and customer id required")
	}
	bookingID, err := uuid.Parse(strings.TrimSpace(card.ReferenceID))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid booking reference %q", card.ReferenceID))
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	method := &models.PaymentMethod{
		CustomerID:       booking.CustomerID,
		SquareCustomerID: card.CustomerID,
		SquareCardID:     card.ID,
		IsDefault:        true,
	}
	if card.Brand != "" {
		brand := card.Brand
		method.CardBrand = &brand
	}
	if card.Last4 != "" {
		last4 := card.Last4
		method.CardLast4 = &last4
	}
	if card.ExpMonth != nil {
		month := int(*card.ExpMonth)
		method.CardExpMonth = &month
	}
	if card.ExpYear != nil {
		year := int(*card.ExpYear)
		method.CardExpYear = &year
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.methods.WithTx(tx)
		if err := repo.ClearDefaultPaymentMethods(ctx, booking.CustomerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default payment methods")
		}
		if _, err := repo.CreatePaymentMethod(ctx, method); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				// the same card was already recorded by an earlier delivery
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment method")
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch booking.Status {
	case enums.BookingStatusPendingCard, enums.BookingStatusCardSaved:
		if _, err := s.bookings.MarkCardOnFile(ctx, bookings.MarkCardOnFileInput{
			BookingID:        booking.ID,
			SquareCustomerID: card.CustomerID,
			Source:           enums.EventSourceWebhook,
		}); err != nil {
			return err
		}
	default:
		// a late card event must not fail the delivery
		if s.logg != nil {
			s.logg.Warn(s.logg.WithBookingID(ctx, booking.ID.String()),
				fmt.Sprintf("card saved while booking is %s, leaving status untouched", booking.Status))
		}
	}
	return nil
}

func (s *Service) resolveCharge(ctx context.Context, event *SquareWebhookEvent, outcome square.ChargeOutcome) (string, error) {
	payment := event.Data.Object.Payment
	if payment == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}

	input := charges.ResolveInput{
		SquarePaymentID: strings.TrimSpace(payment.ID),
		Outcome:         outcome,
		Source:          enums.EventSourceWebhook,
	}
	if bookingID := s.bookingIDFromEvent(event); bookingID != nil {
		input.BookingID = bookingID
	}
	if payment.AuthLink != "" {
		link := payment.AuthLink
		input.AuthLink = &link
	}
	if payment.FailureReason != "" {
		reason := payment.FailureReason
		input.FailureReason = &reason
	}

	if _, err := s.charges.ResolveAttempt(ctx, input); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			// no attempt on our side; acknowledging stops pointless retries
			if s.logg != nil {
				s.logg.Warn(ctx, fmt.Sprintf("square event %s references unknown payment %s", event.EventID, payment.ID))
			}
			return dispositionIgnored, nil
		}
		return "", err
	}
	return dispositionProcessed, nil
}

func (s *Service) bookingIDFromEvent(event *SquareWebhookEvent) *uuid.UUID {
	var reference string
	if event.Data.Object.Payment != nil {
		reference = event.Data.Object.Payment.ReferenceID
	} else if event.Data.Object.Card != nil {
		reference = event.Data.Object.Card.ReferenceID
	}
	id, err := uuid.Parse(strings.TrimSpace(reference))
	if err != nil {
		return nil
	}
	return &id
}
