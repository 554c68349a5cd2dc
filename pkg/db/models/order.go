package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/caldercommerce/storefront/pkg/enums"
)

// Order is created exactly once per converted cart. Items are an immutable
// snapshot; customer and shipping fields are enriched after creation.
type Order struct {
	ID     uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID uuid.UUID         `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_orders_cart_id"`
	Status enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`

	StripeCheckoutSessionID *string `gorm:"column:stripe_checkout_session_id;index"`
	StripePaymentIntentID   *string `gorm:"column:stripe_payment_intent_id;index"`

	Email        *string `gorm:"column:email"`
	CustomerName *string `gorm:"column:customer_name"`

	ShippingName         *string `gorm:"column:shipping_name"`
	ShippingAddressLine1 *string `gorm:"column:shipping_address_line1"`
	ShippingAddressLine2 *string `gorm:"column:shipping_address_line2"`
	ShippingCity         *string `gorm:"column:shipping_city"`
	ShippingState        *string `gorm:"column:shipping_state"`
	ShippingPostalCode   *string `gorm:"column:shipping_postal_code"`
	ShippingCountry      *string `gorm:"column:shipping_country"`

	Subtotal     *decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2)"`
	Tax          *decimal.Decimal `gorm:"column:tax;type:numeric(12,2)"`
	ShippingCost *decimal.Decimal `gorm:"column:shipping_cost;type:numeric(12,2)"`
	Total        decimal.Decimal  `gorm:"column:total;type:numeric(12,2);not null"`
	Currency     string           `gorm:"column:currency;type:char(3);not null"`

	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
