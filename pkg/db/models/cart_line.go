package models

import (
	"time"

	"github.com/google/uuid"
)

// CartLine mirrors one line of the host shop's cart for a shopping session.
// Lines exist between the line-added hook and order ingestion; ArtKeyID holds
// the provisional entity stashed on the line at bind time.
type CartLine struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID string     `gorm:"column:session_id;not null;index"`
	LineKey   string     `gorm:"column:line_key;not null"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int        `gorm:"column:quantity;not null;default:1"`
	ArtKeyID  *uuid.UUID `gorm:"column:art_key_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
