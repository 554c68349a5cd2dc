package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant is the sellable unit referenced by cart items, order items,
// inventory, and reservations.
type Variant struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Title       string          `gorm:"column:title;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	SKU         string          `gorm:"column:sku;not null"`
	Option      string          `gorm:"column:option;not null"`
	Barcode     string          `gorm:"column:barcode;not null"`
	Weight      *int            `gorm:"column:weight"`
	WeightUnit  *string         `gorm:"column:weight_unit"`
	Currency    *string         `gorm:"column:currency;type:char(3)"`
	MinQuantity int             `gorm:"column:min_quantity;not null;default:1"`
	MaxQuantity *int            `gorm:"column:max_quantity"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
