package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GatewayEvent is the durable dedupe record for inbound webhook deliveries.
// The unique provider event id makes ON CONFLICT DO NOTHING the arbiter when
// the same delivery races itself.
type GatewayEvent struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderEventID string          `gorm:"column:provider_event_id;not null;unique"`
	EventType       string          `gorm:"column:event_type;not null"`
	BookingID       *uuid.UUID      `gorm:"column:booking_id;type:uuid;index"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt      time.Time       `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at"`
}
