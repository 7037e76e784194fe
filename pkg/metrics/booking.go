package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics tracks lifecycle, charge, and webhook activity.
type BookingMetrics struct {
	transitions     *prometheus.CounterVec
	overrides       *prometheus.CounterVec
	conflicts       prometheus.Counter
	chargeOutcomes  *prometheus.CounterVec
	gatewayDuration prometheus.Histogram
	webhookEvents   *prometheus.CounterVec
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Booking status transitions by edge and source.",
	}, []string{"from", "to", "source"})
	overrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_overrides_total",
		Help: "Admin status overrides by target status.",
	}, []string{"to"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_version_conflicts_total",
		Help: "Optimistic concurrency conflicts on status writes.",
	})
	chargeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charge_attempts_total",
		Help: "Charge attempts by normalized gateway outcome.",
	}, []string{"outcome"})
	gatewayDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charge_gateway_duration_seconds",
		Help:    "Duration of gateway charge calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook deliveries by disposition.",
	}, []string{"disposition"})
	reg.MustRegister(transitions, overrides, conflicts, chargeOutcomes, gatewayDuration, webhookEvents)
	return &BookingMetrics{
		transitions:     transitions,
		overrides:       overrides,
		conflicts:       conflicts,
		chargeOutcomes:  chargeOutcomes,
		gatewayDuration: gatewayDuration,
		webhookEvents:   webhookEvents,
	}
}

// IncTransition records a completed status transition.
func (m *BookingMetrics) IncTransition(from, to, source string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(source)).Inc()
}

// IncOverride records an admin override to the target status.
func (m *BookingMetrics) IncOverride(to string) {
	if m == nil || m.overrides == nil {
		return
	}
	m.overrides.WithLabelValues(normalizeLabel(to)).Inc()
}

// IncVersionConflict records a lost optimistic concurrency race.
func (m *BookingMetrics) IncVersionConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// IncChargeOutcome records a normalized charge attempt outcome.
func (m *BookingMetrics) IncChargeOutcome(outcome string) {
	if m == nil || m.chargeOutcomes == nil {
		return
	}
	m.chargeOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGatewayDuration records the wall time of one gateway call.
func (m *BookingMetrics) ObserveGatewayDuration(duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.Observe(duration.Seconds())
}

// IncWebhookEvent records a webhook delivery disposition
// (processed, duplicate, invalid_signature, unsupported).
func (m *BookingMetrics) IncWebhookEvent(disposition string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(disposition)).Inc()
}

// normalizeLabel keeps label cardinality bounded and never empty.
func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
