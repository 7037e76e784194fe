package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// LifecycleEvent is an append-only record of a booking mutation. Rows are
// never updated or deleted; the timeline orders by (created_at, id).
type LifecycleEvent struct {
	ID         uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID  uuid.UUID                `gorm:"column:booking_id;type:uuid;not null;index:idx_lifecycle_events_booking"`
	EventType  enums.LifecycleEventType `gorm:"column:event_type;type:lifecycle_event_type;not null"`
	Source     enums.EventSource        `gorm:"column:source;type:event_source;not null"`
	ActorID    *uuid.UUID               `gorm:"column:actor_id;type:uuid"`
	FromStatus *enums.BookingStatus     `gorm:"column:from_status;type:booking_status"`
	ToStatus   *enums.BookingStatus     `gorm:"column:to_status;type:booking_status"`
	// FromServiceDate/ToServiceDate are set on rescheduled events only.
	FromServiceDate *time.Time      `gorm:"column:from_service_date;type:date"`
	ToServiceDate   *time.Time      `gorm:"column:to_service_date;type:date"`
	Reason          *string         `gorm:"column:reason"`
	Metadata        json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
