package models

import (
	"time"

	"github.com/google/uuid"
)

// ShopProduct is the storefront catalog entry. IsArtKeyProduct marks the
// products whose purchase mints a personalized page.
type ShopProduct struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU             string    `gorm:"column:sku;not null;uniqueIndex"`
	Title           string    `gorm:"column:title;not null"`
	PriceCents      int       `gorm:"column:price_cents;not null"`
	IsArtKeyProduct bool      `gorm:"column:is_art_key_product;not null;default:false"`
	RequiresPrint   bool      `gorm:"column:requires_print;not null;default:false"`
	IsActive        bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
