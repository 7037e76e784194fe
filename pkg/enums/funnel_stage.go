package enums

import "time"

// FunnelStage is the dashboard-facing projection of a booking's phase. It is
// never persisted; it is always derived from the operational status so the
// two can never drift.
type FunnelStage string

const (
	FunnelStageIntake          FunnelStage = "intake"
	FunnelStageReadyToSchedule FunnelStage = "ready_to_schedule"
	FunnelStageUpcoming        FunnelStage = "upcoming"
	FunnelStageInService       FunnelStage = "in_service"
	FunnelStageAwaitingPayment FunnelStage = "awaiting_payment"
	FunnelStageClosed          FunnelStage = "closed"
	FunnelStageCancelled       FunnelStage = "cancelled"
)

// String implements fmt.Stringer.
func (f FunnelStage) String() string {
	return string(f)
}

// ComputeFunnelStage projects the operational status (plus the service date
// for the scheduled phase) onto the funnel.
func ComputeFunnelStage(status BookingStatus, serviceDate *time.Time) FunnelStage {
	switch status {
	case BookingStatusPendingCard:
		return FunnelStageIntake
	case BookingStatusCardSaved:
		if serviceDate != nil {
			return FunnelStageUpcoming
		}
		return FunnelStageReadyToSchedule
	case BookingStatusScheduled:
		return FunnelStageUpcoming
	case BookingStatusInProgress:
		return FunnelStageInService
	case BookingStatusCompleted, BookingStatusPaymentFailed:
		return FunnelStageAwaitingPayment
	case BookingStatusCharged:
		return FunnelStageClosed
	case BookingStatusCancelled:
		return FunnelStageCancelled
	default:
		return FunnelStageIntake
	}
}
