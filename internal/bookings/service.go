package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
	"github.com/tidyops/tidyops-backend/pkg/metrics"
	"github.com/tidyops/tidyops-backend/pkg/outbox"
	"github.com/tidyops/tidyops-backend/pkg/outbox/payloads"
	"github.com/tidyops/tidyops-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// errVersionConflict aborts the transaction when the optimistic check loses,
// rolling back the event row appended in the same attempt.
var errVersionConflict = errors.New("booking version conflict")

// windowLayout is the wall-clock format for arrival windows.
const windowLayout = "15:04"

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.BookingMetrics
	logg    *logger.Logger
}

// NewService builds the booking lifecycle service. Metrics and logger are
// optional; everything else is required.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, m *metrics.BookingMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outboxSvc,
		metrics: m,
		logg:    logg,
	}, nil
}

func (s *service) CreateBooking(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if err := validateWindow(input.WindowStart, input.WindowEnd); err != nil {
		return nil, err
	}
	source, err := normalizeSource(input.Source)
	if err != nil {
		return nil, err
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	booking := &models.Booking{
		CustomerID:  input.CustomerID,
		Status:      enums.BookingStatusPendingCard,
		Version:     1,
		ServiceDate: input.ServiceDate,
		WindowStart: input.WindowStart,
		WindowEnd:   input.WindowEnd,
		AmountCents: input.AmountCents,
		Currency:    currency,
		AddressLine: input.AddressLine,
		Notes:       input.Notes,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.CreateBooking(ctx, booking)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}
		booking = created

		toStatus := booking.Status
		event := &models.LifecycleEvent{
			BookingID: booking.ID,
			EventType: enums.LifecycleEventCreated,
			Source:    source,
			ActorID:   input.ActorID,
			ToStatus:  &toStatus,
		}
		if _, err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append created event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithBookingID(ctx, booking.ID.String()), "booking created")
	}
	return booking, nil
}

func (s *service) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.repo.FindBookingByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

func (s *service) ListBookings(ctx context.Context, params pagination.Params, filter ListFilter) (*BookingList, error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status filter %q", status))
		}
	}
	list, err := s.repo.ListBookings(ctx, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	return list, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", input.Target))
	}
	if input.Target == enums.BookingStatusCancelled && derefTrimmed(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}
	source, err := normalizeSource(input.Source)
	if err != nil {
		return nil, err
	}

	var out *models.Booking
	var from enums.BookingStatus
	moved := false

	attempt := func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			booking, err := repo.FindBookingByID(ctx, input.BookingID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
			}
			if booking.Status == input.Target {
				// idempotent: the requested state already holds
				out = booking
				moved = false
				return nil
			}
			if !CanTransition(booking.Status, input.Target) {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cannot transition booking from %s to %s", booking.Status, input.Target))
			}

			from = booking.Status
			target := input.Target
			event := &models.LifecycleEvent{
				BookingID:  booking.ID,
				EventType:  enums.LifecycleEventTransition,
				Source:     source,
				ActorID:    input.ActorID,
				FromStatus: &from,
				ToStatus:   &target,
				Reason:     input.Reason,
				Metadata:   input.Metadata,
			}
			if _, err := repo.AppendEvent(ctx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transition event")
			}

			ok, err := repo.UpdateBookingVersioned(ctx, booking.ID, booking.Version, map[string]any{
				"status":  input.Target,
				"version": booking.Version + 1,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
			}
			if !ok {
				return errVersionConflict
			}
			booking.Status = input.Target
			booking.Version++

			payload := payloads.BookingTransitionedEvent{
				BookingID:  booking.ID,
				CustomerID: booking.CustomerID,
				FromStatus: from,
				ToStatus:   booking.Status,
				Source:     source,
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingTransitioned,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Actor:         actorRef(input.ActorID, source),
				Data:          payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit transition event")
			}
			out = booking
			moved = true
			return nil
		})
	}

	if err := s.runVersioned(attempt); err != nil {
		return nil, err
	}
	if moved {
		s.metrics.IncTransition(from.String(), out.Status.String(), source.String())
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, out.ID.String()), map[string]any{
				"from_status": from.String(),
				"to_status":   out.Status.String(),
				"source":      source.String(),
			})
			s.logg.Info(logCtx, "booking transitioned")
		}
	}
	return out, nil
}

func (s *service) Override(ctx context.Context, input OverrideInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", input.Target))
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.ActorRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "status override requires the admin role")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "override reason required")
	}

	var out *models.Booking
	var from enums.BookingStatus
	moved := false

	attempt := func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			booking, err := repo.FindBookingByID(ctx, input.BookingID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
			}
			if booking.Status == input.Target {
				out = booking
				moved = false
				return nil
			}

			from = booking.Status
			target := input.Target
			actorID := input.ActorID
			reason := input.Reason
			event := &models.LifecycleEvent{
				BookingID:  booking.ID,
				EventType:  enums.LifecycleEventOverrideTransition,
				Source:     enums.EventSourceDashboardAdmin,
				ActorID:    &actorID,
				FromStatus: &from,
				ToStatus:   &target,
				Reason:     &reason,
			}
			if _, err := repo.AppendEvent(ctx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append override event")
			}

			ok, err := repo.UpdateBookingVersioned(ctx, booking.ID, booking.Version, map[string]any{
				"status":  input.Target,
				"version": booking.Version + 1,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
			}
			if !ok {
				return errVersionConflict
			}
			booking.Status = input.Target
			booking.Version++

			payload := payloads.BookingOverriddenEvent{
				BookingID:  booking.ID,
				CustomerID: booking.CustomerID,
				FromStatus: from,
				ToStatus:   booking.Status,
				ActorID:    input.ActorID,
				Reason:     input.Reason,
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingOverridden,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: enums.EventSourceDashboardAdmin.String()},
				Data:          payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit override event")
			}
			out = booking
			moved = true
			return nil
		})
	}

	if err := s.runVersioned(attempt); err != nil {
		return nil, err
	}
	if moved {
		s.metrics.IncOverride(out.Status.String())
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, out.ID.String()), map[string]any{
				"from_status": from.String(),
				"to_status":   out.Status.String(),
				"actor_id":    input.ActorID.String(),
			})
			s.logg.Warn(logCtx, "booking status overridden")
		}
	}
	return out, nil
}

func (s *service) Reschedule(ctx context.Context, input RescheduleInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.ServiceDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service date required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reschedule reason required")
	}
	if err := validateWindow(input.WindowStart, input.WindowEnd); err != nil {
		return nil, err
	}
	source, err := normalizeSource(input.Source)
	if err != nil {
		return nil, err
	}

	var out *models.Booking

	attempt := func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			booking, err := repo.FindBookingByID(ctx, input.BookingID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
			}
			if !canReschedule(booking.Status) {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cannot reschedule a %s booking", booking.Status))
			}

			newDate := input.ServiceDate
			metadata, err := json.Marshal(map[string]any{
				"old_service_date": booking.ServiceDate,
				"new_service_date": newDate,
				"window_start":     input.WindowStart,
				"window_end":       input.WindowEnd,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal reschedule metadata")
			}

			reason := input.Reason
			event := &models.LifecycleEvent{
				BookingID:       booking.ID,
				EventType:       enums.LifecycleEventRescheduled,
				Source:          source,
				ActorID:         input.ActorID,
				FromServiceDate: booking.ServiceDate,
				ToServiceDate:   &newDate,
				Reason:          &reason,
				Metadata:        metadata,
			}
			if _, err := repo.AppendEvent(ctx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append reschedule event")
			}

			ok, err := repo.UpdateBookingVersioned(ctx, booking.ID, booking.Version, map[string]any{
				"service_date": newDate,
				"window_start": input.WindowStart,
				"window_end":   input.WindowEnd,
				"version":      booking.Version + 1,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking schedule")
			}
			if !ok {
				return errVersionConflict
			}
			oldDate := booking.ServiceDate
			booking.ServiceDate = &newDate
			booking.WindowStart = input.WindowStart
			booking.WindowEnd = input.WindowEnd
			booking.Version++

			payload := payloads.BookingRescheduledEvent{
				BookingID:      booking.ID,
				CustomerID:     booking.CustomerID,
				OldServiceDate: oldDate,
				NewServiceDate: &newDate,
				WindowStart:    input.WindowStart,
				WindowEnd:      input.WindowEnd,
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingRescheduled,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Actor:         actorRef(input.ActorID, source),
				Data:          payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit reschedule event")
			}
			out = booking
			return nil
		})
	}

	if err := s.runVersioned(attempt); err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithBookingID(ctx, out.ID.String()), "booking rescheduled")
	}
	return out, nil
}

// MarkCardOnFile records the gateway customer reference handed over by the
// intake collaborator and confirms pending_card into card_saved. Calling it
// again for a booking already in card_saved refreshes the reference only.
func (s *service) MarkCardOnFile(ctx context.Context, input MarkCardOnFileInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	customerRef := strings.TrimSpace(input.SquareCustomerID)
	if customerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway customer id required")
	}
	source, err := normalizeSource(input.Source)
	if err != nil {
		return nil, err
	}

	var out *models.Booking
	moved := false

	attempt := func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			booking, err := repo.FindBookingByID(ctx, input.BookingID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
			}

			if booking.Status == enums.BookingStatusCardSaved {
				ok, err := repo.UpdateBookingVersioned(ctx, booking.ID, booking.Version, map[string]any{
					"square_customer_id": customerRef,
					"version":            booking.Version + 1,
				})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update gateway customer")
				}
				if !ok {
					return errVersionConflict
				}
				booking.SquareCustomerID = &customerRef
				booking.Version++
				out = booking
				moved = false
				return nil
			}
			if booking.Status != enums.BookingStatusPendingCard {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cannot confirm card on file for a %s booking", booking.Status))
			}

			from := booking.Status
			target := enums.BookingStatusCardSaved
			event := &models.LifecycleEvent{
				BookingID:  booking.ID,
				EventType:  enums.LifecycleEventTransition,
				Source:     source,
				ActorID:    input.ActorID,
				FromStatus: &from,
				ToStatus:   &target,
			}
			if _, err := repo.AppendEvent(ctx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transition event")
			}

			ok, err := repo.UpdateBookingVersioned(ctx, booking.ID, booking.Version, map[string]any{
				"status":             target,
				"square_customer_id": customerRef,
				"version":            booking.Version + 1,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
			}
			if !ok {
				return errVersionConflict
			}
			booking.Status = target
			booking.SquareCustomerID = &customerRef
			booking.Version++

			payload := payloads.BookingTransitionedEvent{
				BookingID:  booking.ID,
				CustomerID: booking.CustomerID,
				FromStatus: from,
				ToStatus:   booking.Status,
				Source:     source,
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingTransitioned,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Actor:         actorRef(input.ActorID, source),
				Data:          payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit transition event")
			}
			out = booking
			moved = true
			return nil
		})
	}

	if err := s.runVersioned(attempt); err != nil {
		return nil, err
	}
	if moved {
		s.metrics.IncTransition(enums.BookingStatusPendingCard.String(), out.Status.String(), source.String())
		if s.logg != nil {
			s.logg.Info(s.logg.WithBookingID(ctx, out.ID.String()), "card on file confirmed")
		}
	}
	return out, nil
}

func (s *service) Timeline(ctx context.Context, bookingID uuid.UUID, params pagination.Params) (*TimelineView, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	events, next, err := s.repo.ListEventPage(ctx, bookingID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lifecycle events")
	}
	return &TimelineView{
		Booking:    booking,
		Stage:      booking.FunnelStage(),
		Events:     events,
		NextCursor: next,
	}, nil
}

func (s *service) ReplayStatus(ctx context.Context, bookingID uuid.UUID) (enums.BookingStatus, error) {
	if bookingID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	events, err := s.repo.ListEventsByBooking(ctx, bookingID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lifecycle events")
	}
	status, err := StatusFromEvents(events)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replay event log")
	}
	return status, nil
}

// runVersioned executes one transactional attempt, retrying exactly once
// when the optimistic version check loses to a concurrent writer.
func (s *service) runVersioned(attempt func() error) error {
	for i := 0; i < 2; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, errVersionConflict) {
			s.metrics.IncVersionConflict()
			if i == 0 {
				continue
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "booking was modified concurrently")
		}
		return err
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "booking was modified concurrently")
}

func normalizeSource(source enums.EventSource) (enums.EventSource, error) {
	if source == "" {
		return enums.EventSourceSystem, nil
	}
	if !source.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid event source %q", source))
	}
	return source, nil
}

func validateWindow(start, end *string) error {
	if (start == nil) != (end == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "window start and end must be set together")
	}
	if start == nil {
		return nil
	}
	startAt, err := time.Parse(windowLayout, *start)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid window start %q", *start))
	}
	endAt, err := time.Parse(windowLayout, *end)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid window end %q", *end))
	}
	if !startAt.Before(endAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "window start must be before window end")
	}
	return nil
}

// canReschedule limits date changes to bookings whose work has not started.
func canReschedule(status enums.BookingStatus) bool {
	switch status {
	case enums.BookingStatusPendingCard, enums.BookingStatusCardSaved, enums.BookingStatusScheduled:
		return true
	default:
		return false
	}
}

func derefTrimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func actorRef(actorID *uuid.UUID, source enums.EventSource) *outbox.ActorRef {
	if actorID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *actorID, Role: source.String()}
}
