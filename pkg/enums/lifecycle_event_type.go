package enums

import "fmt"

// LifecycleEventType tags entries in the append-only booking timeline.
type LifecycleEventType string

const (
	LifecycleEventCreated            LifecycleEventType = "created"
	LifecycleEventTransition         LifecycleEventType = "transition"
	LifecycleEventRescheduled        LifecycleEventType = "rescheduled"
	LifecycleEventOverrideTransition LifecycleEventType = "override_transition"
	LifecycleEventLegacyTransition   LifecycleEventType = "legacy_transition"
	LifecycleEventBaseline           LifecycleEventType = "baseline"
)

var validLifecycleEventTypes = []LifecycleEventType{
	LifecycleEventCreated,
	LifecycleEventTransition,
	LifecycleEventRescheduled,
	LifecycleEventOverrideTransition,
	LifecycleEventLegacyTransition,
	LifecycleEventBaseline,
}

// String implements fmt.Stringer.
func (t LifecycleEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t LifecycleEventType) IsValid() bool {
	for _, candidate := range validLifecycleEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLifecycleEventType converts raw input into a LifecycleEventType.
func ParseLifecycleEventType(value string) (LifecycleEventType, error) {
	for _, candidate := range validLifecycleEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lifecycle event type %q", value)
}
