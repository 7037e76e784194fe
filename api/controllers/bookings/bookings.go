package bookings

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/api/middleware"
	"github.com/tidyops/tidyops-backend/api/responses"
	"github.com/tidyops/tidyops-backend/api/validators"
	internalbookings "github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
	"github.com/tidyops/tidyops-backend/pkg/pagination"
)

type createBookingRequest struct {
	CustomerID  string  `json:"customer_id" validate:"required,uuid4"`
	AmountCents int64   `json:"amount_cents" validate:"required,gt=0"`
	Currency    string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	ServiceDate *string `json:"service_date,omitempty"`
	WindowStart *string `json:"window_start,omitempty"`
	WindowEnd   *string `json:"window_end,omitempty"`
	AddressLine *string `json:"address_line,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Create opens a new booking in the intake state.
func Create(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID, err := uuid.Parse(strings.TrimSpace(payload.CustomerID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
			return
		}

		serviceDate, err := parseServiceDate(payload.ServiceDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.CreateBooking(r.Context(), internalbookings.CreateBookingInput{
			CustomerID:  customerID,
			AmountCents: payload.AmountCents,
			Currency:    strings.ToUpper(strings.TrimSpace(payload.Currency)),
			ServiceDate: serviceDate,
			WindowStart: payload.WindowStart,
			WindowEnd:   payload.WindowEnd,
			AddressLine: payload.AddressLine,
			Notes:       payload.Notes,
			Source:      enums.EventSourceDashboardAdmin,
			ActorID:     &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// Detail returns a single booking by id.
func Detail(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.GetBooking(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// List returns a cursor page of bookings, optionally filtered by customer
// and status.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		params, err := parsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter internalbookings.ListFilter
		if raw := strings.TrimSpace(r.URL.Query().Get("customer_id")); raw != "" {
			customerID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer_id"))
				return
			}
			filter.CustomerID = &customerID
		}
		statuses, err := parseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Statuses = statuses

		list, err := svc.ListBookings(r.Context(), params, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Timeline returns the booking with one descending page of its lifecycle
// events.
func Timeline(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Timeline(r.Context(), bookingID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"required,min=1"`
}

// Cancel moves a booking to cancelled with a mandatory reason.
func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
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

		var payload cancelBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := strings.TrimSpace(payload.Reason)

		booking, err := svc.Transition(r.Context(), internalbookings.TransitionInput{
			BookingID: bookingID,
			Target:    enums.BookingStatusCancelled,
			Source:    enums.EventSourceDashboardAdmin,
			ActorID:   &actorID,
			Reason:    &reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

type rescheduleBookingRequest struct {
	ServiceDate string  `json:"service_date" validate:"required"`
	WindowStart *string `json:"window_start,omitempty"`
	WindowEnd   *string `json:"window_end,omitempty"`
	Reason      string  `json:"reason" validate:"required,min=1"`
}

// Reschedule changes the service date and arrival window before work starts.
func Reschedule(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
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

		var payload rescheduleBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := payload.ServiceDate
		serviceDate, err := parseServiceDate(&raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Reschedule(r.Context(), internalbookings.RescheduleInput{
			BookingID:   bookingID,
			ServiceDate: *serviceDate,
			WindowStart: payload.WindowStart,
			WindowEnd:   payload.WindowEnd,
			Reason:      strings.TrimSpace(payload.Reason),
			Source:      enums.EventSourceDashboardAdmin,
			ActorID:     &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

func parseBookingID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	bookingID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return bookingID, nil
}

func actorFromContext(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return actorID, nil
}

func parsePageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func parseStatusFilter(r *http.Request) ([]enums.BookingStatus, error) {
	var statuses []enums.BookingStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, token := range strings.Split(raw, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			status, err := enums.ParseBookingStatus(token)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid status %q", token))
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// parseServiceDate accepts a calendar date or a full timestamp.
func parseServiceDate(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service_date")
	}
	return &t, nil
}
