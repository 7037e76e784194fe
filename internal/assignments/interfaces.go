package assignments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// Repository defines persistence operations for booking assignments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// UpsertAssignment inserts or updates on (booking_id, assignee_type,
	// assignee_id), so re-sending the same roster is harmless.
	UpsertAssignment(ctx context.Context, assignment *models.Assignment) (*models.Assignment, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Assignment, error)
}

// AssignmentInput is one roster entry pushed by the staffing collaborator.
type AssignmentInput struct {
	AssigneeType       enums.AssigneeType
	AssigneeID         uuid.UUID
	Role               *string
	Status             enums.AssignmentStatus
	ChecklistTotal     int
	ChecklistCompleted int
}

// SyncInput replaces the known roster state for a booking.
type SyncInput struct {
	BookingID   uuid.UUID
	Assignments []AssignmentInput
	Source      enums.EventSource
	ActorID     *uuid.UUID
}

// CompleteInput is a manual job-completion request from the dashboard.
type CompleteInput struct {
	BookingID uuid.UUID
	Source    enums.EventSource
	ActorID   *uuid.UUID
}

// IncompleteAssignment identifies an active assignment with open checklist
// items, for validation messages.
type IncompleteAssignment struct {
	AssigneeType       enums.AssigneeType `json:"assignee_type"`
	AssigneeID         uuid.UUID          `json:"assignee_id"`
	Role               *string            `json:"role,omitempty"`
	ChecklistCompleted int                `json:"checklist_completed"`
	ChecklistTotal     int                `json:"checklist_total"`
}

// Readiness aggregates checklist state over a booking's active assignments.
// Declined, cancelled, and no-show assignments do not count.
type Readiness struct {
	ActiveAssignments int `json:"active_assignments"`
	// ChecklistComplete is vacuously true when no active assignment carries
	// checklist items.
	ChecklistComplete bool `json:"checklist_complete"`
	// ReadyToAutoComplete holds when at least one active assignment exists
	// and every one of them has individually finished.
	ReadyToAutoComplete bool                   `json:"ready_to_auto_complete"`
	Incomplete          []IncompleteAssignment `json:"incomplete,omitempty"`
}

// SyncResult carries the roster after a sync plus the gate outcome.
type SyncResult struct {
	Booking       *models.Booking     `json:"booking"`
	Assignments   []models.Assignment `json:"assignments"`
	Readiness     Readiness           `json:"readiness"`
	AutoCompleted bool                `json:"auto_completed"`
}

// Service ingests roster updates and drives the completion gate. Syncs that
// leave every active assignment finished complete an in_progress booking in
// the same call rather than waiting for a poller.
type Service interface {
	Sync(ctx context.Context, input SyncInput) (*SyncResult, error)
	Readiness(ctx context.Context, bookingID uuid.UUID) (*Readiness, error)
	CompleteJob(ctx context.Context, input CompleteInput) (*models.Booking, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Assignment, error)
}
