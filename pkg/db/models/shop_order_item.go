package models

import (
	"time"

	"github.com/google/uuid"
)

// ShopOrderItem is one purchased line of an order. SessionID carries the
// shopper's editor session forward from the cart so attach can resolve the
// provisional Art Key; ArtKeyID is written exactly once when the line consumes
// an entity.
type ShopOrderItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int        `gorm:"column:quantity;not null;default:1"`
	SessionID *string    `gorm:"column:session_id"`
	ArtKeyID  *uuid.UUID `gorm:"column:art_key_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
