package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/caldercommerce/storefront/pkg/enums"
)

// Cart is a working set of items that can be converted into an order once.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status    enums.CartStatus `gorm:"column:status;not null;default:'active'"`
	Currency  string           `gorm:"column:currency;type:char(3);not null;default:'USD'"`
	ExpiresAt time.Time        `gorm:"column:expires_at;not null;index"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
