package models

import (
	"time"

	"github.com/google/uuid"
)

// Inventory tracks committed and reserved stock per variant.
// StockQuantity is the sellable count; ReservedQuantity mirrors the sum of
// active and committed reservation quantities for the variant and is only
// mutated in the same transaction as the reservation rows themselves.
type Inventory struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID        uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex"`
	StockQuantity    int       `gorm:"column:stock_quantity;not null;default:0"`
	ReservedQuantity int       `gorm:"column:reserved_quantity;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the quantity open to new reservations.
func (i Inventory) Available() int {
	return i.StockQuantity - i.ReservedQuantity
}
