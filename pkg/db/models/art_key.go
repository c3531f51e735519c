package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/pkg/types"
)

// ArtKey is the canonical row behind one personalized landing page. A row is
// provisional (IsTemporary) from the moment a shopper opens the editor until
// its session is consumed by a completed order.
type ArtKey struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Slug             string             `gorm:"column:slug;not null;uniqueIndex"`
	Title            string             `gorm:"column:title;not null"`
	OwnerUserID      *uuid.UUID         `gorm:"column:owner_user_id;type:uuid"`
	EditToken        string             `gorm:"column:edit_token;not null"`
	IsTemporary      bool               `gorm:"column:is_temporary;not null;default:true"`
	IsAdminProtected bool               `gorm:"column:is_admin_protected;not null;default:false"`
	Published        bool               `gorm:"column:published;not null;default:false"`
	Fields           types.ArtKeyFields `gorm:"column:fields;type:jsonb;serializer:json"`
	CompositeMediaID *uuid.UUID         `gorm:"column:composite_media_id;type:uuid"`
	OrderID          *uuid.UUID         `gorm:"column:order_id;type:uuid"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAttached reports whether the key has been consumed by an order.
func (a *ArtKey) IsAttached() bool {
	return a.OrderID != nil
}
