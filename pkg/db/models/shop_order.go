package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/pkg/enums"
)

// ShopOrder mirrors the storefront order as the attach pipeline sees it.
type ShopOrder struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalRef   string            `gorm:"column:external_ref;not null;uniqueIndex"`
	CustomerEmail string            `gorm:"column:customer_email;not null"`
	CustomerName  string            `gorm:"column:customer_name;not null"`
	UserID        *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	FirstArtKeyID *uuid.UUID        `gorm:"column:first_art_key_id;type:uuid"`
	Notes         []ShopOrderNote   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Items         []ShopOrderItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt      time.Time         `gorm:"column:placed_at;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// ShopOrderNote is an operator-visible annotation on an order.
type ShopOrderNote struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
