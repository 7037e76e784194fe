package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod mirrors a Square card on file for a customer.
type PaymentMethod struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	SquareCustomerID string     `gorm:"column:square_customer_id;not null"`
	SquareCardID     string     `gorm:"column:square_card_id;not null;unique"`
	CardBrand        *string    `gorm:"column:card_brand"`
	CardLast4        *string    `gorm:"column:card_last4"`
	CardExpMonth     *int       `gorm:"column:card_exp_month"`
	CardExpYear      *int       `gorm:"column:card_exp_year"`
	IsDefault        bool       `gorm:"column:is_default;not null;default:false"`
	DisabledAt       *time.Time `gorm:"column:disabled_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
