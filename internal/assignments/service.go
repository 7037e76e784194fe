package assignments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// bookingService is the slice of the lifecycle service the gate needs.
type bookingService interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Transition(ctx context.Context, input bookings.TransitionInput) (*models.Booking, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	bookings bookingService
	logg     *logger.Logger
}

// NewService builds the assignment sync service.
func NewService(repo Repository, tx txRunner, bookingSvc bookingService, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if bookingSvc == nil {
		return nil, fmt.Errorf("booking service required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		bookings: bookingSvc,
		logg:     logg,
	}, nil
}

func (s *service) Sync(ctx context.Context, input SyncInput) (*SyncResult, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if len(input.Assignments) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one assignment required")
	}
	for i, entry := range input.Assignments {
		if !entry.AssigneeType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment %d: invalid assignee type %q", i, entry.AssigneeType))
		}
		if entry.AssigneeID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment %d: assignee id required", i))
		}
		if entry.Status != "" && !entry.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment %d: invalid status %q", i, entry.Status))
		}
		if entry.ChecklistTotal < 0 || entry.ChecklistCompleted < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment %d: checklist counts must not be negative", i))
		}
		if entry.ChecklistCompleted > entry.ChecklistTotal {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment %d: checklist completed exceeds total", i))
		}
	}

	booking, err := s.bookings.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot sync assignments on a %s booking", booking.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, entry := range input.Assignments {
			status := entry.Status
			if status == "" {
				status = enums.AssignmentStatusAssigned
			}
			assignment := &models.Assignment{
				BookingID:          input.BookingID,
				AssigneeType:       entry.AssigneeType,
				AssigneeID:         entry.AssigneeID,
				Role:               entry.Role,
				Status:             status,
				ChecklistTotal:     entry.ChecklistTotal,
				ChecklistCompleted: entry.ChecklistCompleted,
			}
			if _, err := repo.UpsertAssignment(ctx, assignment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert assignment")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	roster, err := s.repo.ListByBooking(ctx, input.BookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	readiness := Aggregate(roster)

	result := &SyncResult{
		Booking:     booking,
		Assignments: roster,
		Readiness:   readiness,
	}

	// eager gate: complete in the same call the last checklist item landed
	if readiness.ReadyToAutoComplete && booking.Status == enums.BookingStatusInProgress {
		updated, err := s.bookings.Transition(ctx, bookings.TransitionInput{
			BookingID: booking.ID,
			Target:    enums.BookingStatusCompleted,
			Source:    enums.EventSourceAutomation,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return nil, err
		}
		result.Booking = updated
		result.AutoCompleted = true
		if s.logg != nil {
			s.logg.Info(s.logg.WithBookingID(ctx, booking.ID.String()), "booking completed by readiness gate")
		}
	}

	return result, nil
}

// CompleteJob is the manual completion path. It refuses to advance while any
// active assignment still has open checklist items, naming the offenders.
func (s *service) CompleteJob(ctx context.Context, input CompleteInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.bookings.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusInProgress {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("cannot complete a %s booking", booking.Status))
	}

	roster, err := s.repo.ListByBooking(ctx, input.BookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	readiness := Aggregate(roster)
	if !readiness.ChecklistComplete {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("checklist incomplete for %d assignment(s)", len(readiness.Incomplete))).
			WithDetails(map[string]any{"incomplete_assignments": readiness.Incomplete})
	}

	return s.bookings.Transition(ctx, bookings.TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCompleted,
		Source:    input.Source,
		ActorID:   input.ActorID,
	})
}

func (s *service) Readiness(ctx context.Context, bookingID uuid.UUID) (*Readiness, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if _, err := s.bookings.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	roster, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	readiness := Aggregate(roster)
	return &readiness, nil
}

func (s *service) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Assignment, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	roster, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	return roster, nil
}
