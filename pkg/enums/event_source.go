package enums

import "fmt"

// EventSource records which entry point produced a lifecycle mutation.
type EventSource string

const (
	EventSourceSystem         EventSource = "system"
	EventSourceDashboardAdmin EventSource = "dashboard_admin"
	EventSourceWebhook        EventSource = "webhook"
	EventSourceAutomation     EventSource = "automation"
)

var validEventSources = []EventSource{
	EventSourceSystem,
	EventSourceDashboardAdmin,
	EventSourceWebhook,
	EventSourceAutomation,
}

// String implements fmt.Stringer.
func (s EventSource) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s EventSource) IsValid() bool {
	for _, candidate := range validEventSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEventSource converts raw input into an EventSource.
func ParseEventSource(value string) (EventSource, error) {
	for _, candidate := range validEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event source %q", value)
}
