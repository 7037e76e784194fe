package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// Booking is the aggregate root for a cleaning job. Status is written only by
// the lifecycle service; Version backs the optimistic concurrency check on
// every status write.
type Booking struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	Status           enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending_card'"`
	Version          int                 `gorm:"column:version;not null;default:1"`
	ServiceDate      *time.Time          `gorm:"column:service_date;type:date"`
	WindowStart      *string             `gorm:"column:window_start"`
	WindowEnd        *string             `gorm:"column:window_end"`
	AmountCents      int64               `gorm:"column:amount_cents;not null"`
	Currency         string              `gorm:"column:currency;not null;default:'USD'"`
	SquareCustomerID *string             `gorm:"column:square_customer_id"`
	AddressLine      *string             `gorm:"column:address_line"`
	Notes            *string             `gorm:"column:notes"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// FunnelStage projects the dashboard stage from the operational status.
func (b Booking) FunnelStage() enums.FunnelStage {
	return enums.ComputeFunnelStage(b.Status, b.ServiceDate)
}
