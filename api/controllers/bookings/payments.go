package bookings

import (
	"net/http"
	"strings"

	"github.com/tidyops/tidyops-backend/api/responses"
	"github.com/tidyops/tidyops-backend/api/validators"
	internalcharges "github.com/tidyops/tidyops-backend/internal/charges"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
)

type chargeBookingRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// Charge runs a card-on-file payment for a completed booking.
func Charge(svc internalcharges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charges service unavailable"))
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

		var payload chargeBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempt, err := svc.ChargeBooking(r.Context(), internalcharges.ChargeInput{
			BookingID:   bookingID,
			AmountCents: payload.AmountCents,
			Description: strings.TrimSpace(payload.Description),
			Source:      enums.EventSourceDashboardAdmin,
			ActorID:     &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, attempt)
	}
}

// ListAttempts returns the charge attempt history for a booking.
func ListAttempts(svc internalcharges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charges service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempts, err := svc.ListAttempts(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attempts)
	}
}

type saveCardRequest struct {
	SourceID          string `json:"source_id" validate:"required"`
	CardholderName    string `json:"cardholder_name,omitempty"`
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// SaveCard vaults a tokenized card for the booking's customer and confirms
// the card-on-file state.
func SaveCard(svc internalcharges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charges service unavailable"))
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

		var payload saveCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := svc.SaveCardOnFile(r.Context(), internalcharges.SaveCardInput{
			BookingID:         bookingID,
			SourceID:          strings.TrimSpace(payload.SourceID),
			CardholderName:    strings.TrimSpace(payload.CardholderName),
			Email:             strings.TrimSpace(payload.Email),
			GivenName:         strings.TrimSpace(payload.GivenName),
			FamilyName:        strings.TrimSpace(payload.FamilyName),
			VerificationToken: strings.TrimSpace(payload.VerificationToken),
			Source:            enums.EventSourceDashboardAdmin,
			ActorID:           &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, method)
	}
}
