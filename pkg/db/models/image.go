package models

import (
	"time"

	"github.com/google/uuid"
)

// Image is an ordered product image.
type Image struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Position  int       `gorm:"column:position;not null;default:0"`
	Alt       string    `gorm:"column:alt;not null"`
	Width     *string   `gorm:"column:width"`
	Height    *string   `gorm:"column:height"`
	Src       string    `gorm:"column:src;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
