package squarewebhook

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
)

// EventStore is the durable side of webhook dedupe. The redis guard absorbs
// fast redeliveries; the unique provider_event_id row is the arbiter when
// the guard expires or two instances race.
type EventStore interface {
	// Record inserts the delivery, or returns the existing row when this
	// provider event id was seen before.
	Record(ctx context.Context, event *models.GatewayEvent) (*models.GatewayEvent, bool, error)
	MarkProcessed(ctx context.Context, providerEventID string) error
}

type eventStore struct {
	db *gorm.DB
}

// NewEventStore builds a gateway event store bound to the provided DB.
func NewEventStore(db *gorm.DB) EventStore {
	return &eventStore{db: db}
}

func (s *eventStore) Record(ctx context.Context, event *models.GatewayEvent) (*models.GatewayEvent, bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return event, true, nil
	}

	var existing models.GatewayEvent
	err := s.db.WithContext(ctx).
		Where("provider_event_id = ?", event.ProviderEventID).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *eventStore) MarkProcessed(ctx context.Context, providerEventID string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&models.GatewayEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Update("processed_at", now).Error
}
