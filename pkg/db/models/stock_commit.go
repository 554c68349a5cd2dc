package models

import (
	"time"

	"github.com/google/uuid"
)

// StockCommit is the permanent-decrement ledger. The unique (order, variant)
// pair makes replayed commit calls no-ops.
type StockCommit struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_stock_commits_order_variant"`
	VariantID uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_stock_commits_order_variant"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
