package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreatedEvent signals that a cart was converted into an order.
type OrderCreatedEvent struct {
	OrderID   uuid.UUID       `json:"order_id"`
	CartID    uuid.UUID       `json:"cart_id"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	ItemCount int             `json:"item_count"`
}

// OrderPaidEvent is emitted when payment succeeds and stock is committed.
type OrderPaidEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	PaidAt          time.Time `json:"paid_at"`
}

// OrderFailedEvent is emitted when payment fails and holds are re-reserved.
type OrderFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// OrderCancelledEvent is emitted whenever a pending order is cancelled.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// ReservationExpiredEvent reports a hold released by the sweeper.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	CartID        uuid.UUID `json:"cart_id"`
	VariantID     uuid.UUID `json:"variant_id"`
	Quantity      int       `json:"quantity"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// CartAbandonedEvent reports a cart closed by the TTL sweep.
type CartAbandonedEvent struct {
	CartID      uuid.UUID `json:"cart_id"`
	AbandonedAt time.Time `json:"abandoned_at"`
}

// InventoryAdjustedEvent records a manual stock change.
type InventoryAdjustedEvent struct {
	VariantID uuid.UUID `json:"variant_id"`
	Previous  int       `json:"previous"`
	Current   int       `json:"current"`
	Reason    string    `json:"reason,omitempty"`
}
