package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry owning its variants and images.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title       string    `gorm:"column:title;not null"`
	Slug        string    `gorm:"column:slug;not null;uniqueIndex"`
	Vendor      string    `gorm:"column:vendor;not null"`
	ProductType string    `gorm:"column:product_type;not null"`
	Variants    []Variant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Images      []Image   `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
