package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/caldercommerce/storefront/pkg/enums"
)

// Payment records one provider attempt for an order. Retries append rows
// rather than mutating earlier attempts.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Status                enums.PaymentStatus `gorm:"column:status;not null;default:'initiated'"`
	StripePaymentIntentID string              `gorm:"column:stripe_payment_intent_id;not null;index"`
	StripeChargeID        *string             `gorm:"column:stripe_charge_id"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency              string              `gorm:"column:currency;type:char(3);not null"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
