package bookings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	"github.com/tidyops/tidyops-backend/pkg/pagination"
)

// Repository defines persistence operations for bookings and their
// append-only lifecycle events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, params pagination.Params, filter ListFilter) (*BookingList, error)
	// UpdateBookingVersioned applies updates only while the stored version
	// still equals expectedVersion. It reports whether a row was written.
	UpdateBookingVersioned(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error)
	AppendEvent(ctx context.Context, event *models.LifecycleEvent) (*models.LifecycleEvent, error)
	ListEventsByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.LifecycleEvent, error)
	// ListEventPage returns one descending (created_at, id) cursor page of a
	// booking's timeline plus the cursor for the next page, when one exists.
	ListEventPage(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.LifecycleEvent, *string, error)
}

// ListFilter narrows booking list queries.
type ListFilter struct {
	CustomerID *uuid.UUID
	Statuses   []enums.BookingStatus
}

// BookingList is one cursor page of bookings.
type BookingList struct {
	Items      []models.Booking
	NextCursor *string
}

// TimelineView bundles a booking with one descending page of its event
// history and the derived funnel stage.
type TimelineView struct {
	Booking    *models.Booking         `json:"booking"`
	Stage      enums.FunnelStage       `json:"funnel_stage"`
	Events     []models.LifecycleEvent `json:"events"`
	NextCursor *string                 `json:"next_cursor,omitempty"`
}

// CreateBookingInput captures the fields needed to open a booking in intake.
type CreateBookingInput struct {
	CustomerID  uuid.UUID
	AmountCents int64
	Currency    string
	ServiceDate *time.Time
	WindowStart *string
	WindowEnd   *string
	AddressLine *string
	Notes       *string
	Source      enums.EventSource
	ActorID     *uuid.UUID
}

// TransitionInput moves a booking along the legality table.
type TransitionInput struct {
	BookingID uuid.UUID
	Target    enums.BookingStatus
	Source    enums.EventSource
	ActorID   *uuid.UUID
	Reason    *string
	Metadata  json.RawMessage
}

// OverrideInput forces a status outside the legality table. The actor must
// carry the admin role, and a reason is mandatory because the move is
// unaudited otherwise.
type OverrideInput struct {
	BookingID uuid.UUID
	Target    enums.BookingStatus
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	Reason    string
}

// RescheduleInput changes the service date and arrival window without
// touching the operational status. Legal only before work starts.
type RescheduleInput struct {
	BookingID   uuid.UUID
	ServiceDate time.Time
	WindowStart *string
	WindowEnd   *string
	Reason      string
	Source      enums.EventSource
	ActorID     *uuid.UUID
}

// MarkCardOnFileInput records the gateway customer reference supplied by the
// intake collaborator and confirms the card-saved transition.
type MarkCardOnFileInput struct {
	BookingID        uuid.UUID
	SquareCustomerID string
	Source           enums.EventSource
	ActorID          *uuid.UUID
}

// Service is the single writer for booking status. Every mutation appends a
// lifecycle event before the status row changes, inside one transaction.
type Service interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, params pagination.Params, filter ListFilter) (*BookingList, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Booking, error)
	Override(ctx context.Context, input OverrideInput) (*models.Booking, error)
	Reschedule(ctx context.Context, input RescheduleInput) (*models.Booking, error)
	MarkCardOnFile(ctx context.Context, input MarkCardOnFileInput) (*models.Booking, error)
	Timeline(ctx context.Context, bookingID uuid.UUID, params pagination.Params) (*TimelineView, error)
	ReplayStatus(ctx context.Context, bookingID uuid.UUID) (enums.BookingStatus, error)
}
