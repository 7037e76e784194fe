package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestBookingMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewBookingMetrics(reg)

	metrics.IncTransition("completed", "charged", "webhook")
	metrics.IncOverride("cancelled")
	metrics.IncVersionConflict()
	metrics.IncChargeOutcome("declined")
	metrics.ObserveGatewayDuration(120 * time.Millisecond)
	metrics.IncWebhookEvent("duplicate")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "booking_transitions_total", "to", "charged"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected transitions=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "charge_attempts_total", "outcome", "declined"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected outcome counter 1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "webhook_events_total", "disposition", "duplicate"); err != nil {
		t.Fatalf("fetch webhook events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook counter 1, got %f", got)
	}

	if findMetricFamily(mfs, "booking_version_conflicts_total") == nil {
		t.Fatal("expected conflict counter registered")
	}
	if findMetricFamily(mfs, "charge_gateway_duration_seconds") == nil {
		t.Fatal("expected gateway histogram registered")
	}
}

func TestBookingMetricsNormalizesLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewBookingMetrics(reg)

	metrics.IncChargeOutcome("  Declined ")
	metrics.IncWebhookEvent("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "charge_attempts_total", "outcome", "declined"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected lowercased outcome counter 1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "webhook_events_total", "disposition", "unknown"); err != nil {
		t.Fatalf("fetch webhook events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown disposition counter 1, got %f", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var metrics *BookingMetrics
	metrics.IncTransition("a", "b", "system")
	metrics.IncVersionConflict()
	metrics.IncWebhookEvent("processed")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
