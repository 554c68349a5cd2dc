package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/caldercommerce/storefront/pkg/enums"
)

// Reservation is a time-boxed stock hold tied to a cart. Once checkout binds
// it to an order the hold is committed and no longer subject to expiry.
type Reservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID    uuid.UUID               `gorm:"column:cart_id;type:uuid;not null;index"`
	VariantID uuid.UUID               `gorm:"column:variant_id;type:uuid;not null;index"`
	OrderID   *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	Quantity  int                     `gorm:"column:quantity;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;not null;default:'active'"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
