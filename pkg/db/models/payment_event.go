package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/caldercommerce/storefront/pkg/enums"
)

// PaymentEvent marks a processed provider webhook event. The unique event id
// rejects replays before any side effect runs.
type PaymentEvent struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID         string              `gorm:"column:event_id;not null;uniqueIndex:ux_payment_events_event_id"`
	PaymentIntentID string              `gorm:"column:payment_intent_id;not null;index"`
	Status          enums.PaymentStatus `gorm:"column:status;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}
