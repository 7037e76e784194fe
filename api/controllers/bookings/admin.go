package bookings

import (
	"net/http"
	"strings"

	"github.com/tidyops/tidyops-backend/api/middleware"
	"github.com/tidyops/tidyops-backend/api/responses"
	"github.com/tidyops/tidyops-backend/api/validators"
	internalbookings "github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/pkg/enums"
	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
	"github.com/tidyops/tidyops-backend/pkg/logger"
)

type overrideStatusRequest struct {
	ToStatus string `json:"to_status" validate:"required"`
	Reason   string `json:"reason" validate:"required,min=1"`
}

// OverrideStatus forces a booking status outside the legality table. The
// route sits behind the admin role check; the service enforces it again.
func OverrideStatus(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
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

		role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "actor role missing"))
			return
		}

		var payload overrideStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseBookingStatus(strings.TrimSpace(payload.ToStatus))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to_status"))
			return
		}

		booking, err := svc.Override(r.Context(), internalbookings.OverrideInput{
			BookingID: bookingID,
			Target:    target,
			ActorID:   actorID,
			ActorRole: role,
			Reason:    strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

type replayStatusResponse struct {
	BookingID      string `json:"booking_id"`
	CurrentStatus  string `json:"current_status"`
	ReplayedStatus string `json:"replayed_status"`
	Consistent     bool   `json:"consistent"`
}

// ReplayStatus folds the lifecycle event log back into a status and
// reports whether it matches the stored row. Audit surface for drift.
func ReplayStatus(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
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
		replayed, err := svc.ReplayStatus(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, replayStatusResponse{
			BookingID:      bookingID.String(),
			CurrentStatus:  string(booking.Status),
			ReplayedStatus: string(replayed),
			Consistent:     booking.Status == replayed,
		})
	}
}
