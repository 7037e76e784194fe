package bookings

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/api/responses"
	"github.com/tidyops/tidyops-backend/api/validators"
	internalassignments "github.com/tidyops/tidyops-backend/internal/assignments"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
)

type assignmentEntry struct {
	AssigneeType       string  `json:"assignee_type" validate:"required"`
	AssigneeID         string  `json:"assignee_id" validate:"required,uuid4"`
	Role               *string `json:"role,omitempty"`
	Status             string  `json:"status,omitempty"`
	ChecklistTotal     int     `json:"checklist_total" validate:"gte=0"`
	ChecklistCompleted int     `json:"checklist_completed" validate:"gte=0"`
}

type syncAssignmentsRequest struct {
	Assignments []assignmentEntry `json:"assignments" validate:"required,min=1,dive"`
}

// SyncAssignments ingests a roster snapshot from the staffing system and
// evaluates the completion gate.
func SyncAssignments(svc internalassignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignments service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload syncAssignmentsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]internalassignments.AssignmentInput, 0, len(payload.Assignments))
		for i, entry := range payload.Assignments {
			assigneeID, err := uuid.Parse(strings.TrimSpace(entry.AssigneeID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("assignment %d: invalid assignee id", i)))
				return
			}
			input := internalassignments.AssignmentInput{
				AssigneeType:       enums.AssigneeType(strings.ToLower(strings.TrimSpace(entry.AssigneeType))),
				AssigneeID:         assigneeID,
				Role:               entry.Role,
				ChecklistTotal:     entry.ChecklistTotal,
				ChecklistCompleted: entry.ChecklistCompleted,
			}
			if raw := strings.TrimSpace(entry.Status); raw != "" {
				status, err := enums.ParseAssignmentStatus(raw)
				if err != nil {
					responses.WriteError(r.Context(), logg, w,
						pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("assignment %d: invalid status", i)))
					return
				}
				input.Status = status
			}
			entries = append(entries, input)
		}

		result, err := svc.Sync(r.Context(), internalassignments.SyncInput{
			BookingID:   bookingID,
			Assignments: entries,
			Source:      enums.EventSourceDashboardAdmin,
			ActorID:     &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Readiness reports the completion gate for a booking without mutating it.
func Readiness(svc internalassignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignments service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		readiness, err := svc.Readiness(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, readiness)
	}
}

// ListAssignments returns the roster for a booking.
func ListAssignments(svc internalassignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignments service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		roster, err := svc.ListByBooking(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, roster)
	}
}

// Complete is the manual job-completion path. It fails with the list of
// blocking assignments while any active checklist is open.
func Complete(svc internalassignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignments service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.CompleteJob(r.Context(), internalassignments.CompleteInput{
			BookingID: bookingID,
			Source:    enums.EventSourceDashboardAdmin,
			ActorID:   &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}
