package payloads

import (
	"time"

	"github.com/google/uuid"
)

// ArtKeyCreatedEvent signals a provisional Art Key minted for a session.
type ArtKeyCreatedEvent struct {
	ArtKeyID  uuid.UUID `json:"art_key_id"`
	Slug      string    `json:"slug"`
	SessionID string    `json:"session_id,omitempty"`
}

// ArtKeyAttachedEvent is emitted when an order line consumes an Art Key.
type ArtKeyAttachedEvent struct {
	ArtKeyID    uuid.UUID `json:"art_key_id"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderItemID uuid.UUID `json:"order_item_id"`
	Slug        string    `json:"slug"`
	Permalink   string    `json:"permalink"`
}

// ArtKeyReleasedEvent reports a key detached after a terminal order status.
type ArtKeyReleasedEvent struct {
	ArtKeyID   uuid.UUID `json:"art_key_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Reverted   bool      `json:"reverted"`
	Protected  bool      `json:"protected"`
	ReleasedAt time.Time `json:"released_at"`
}

// ArtKeyPublishedEvent marks a page going live.
type ArtKeyPublishedEvent struct {
	ArtKeyID uuid.UUID `json:"art_key_id"`
	Slug     string    `json:"slug"`
}

// MediaUploadedEvent is emitted for every stored asset.
type MediaUploadedEvent struct {
	MediaID  uuid.UUID `json:"media_id"`
	ArtKeyID uuid.UUID `json:"art_key_id"`
	Kind     string    `json:"kind"`
	Origin   string    `json:"origin"`
	Approved bool      `json:"approved"`
}

// MediaApprovedEvent reports a moderation decision.
type MediaApprovedEvent struct {
	MediaID  uuid.UUID `json:"media_id"`
	ArtKeyID uuid.UUID `json:"art_key_id"`
}

// PrintCompositeGeneratedEvent is emitted after a print image is rendered.
type PrintCompositeGeneratedEvent struct {
	ArtKeyID     uuid.UUID  `json:"art_key_id"`
	CompositeID  uuid.UUID  `json:"composite_id"`
	Template     string     `json:"template"`
	WidthPx      int        `json:"width_px"`
	HeightPx     int        `json:"height_px"`
	SupersededID *uuid.UUID `json:"superseded_id,omitempty"`
	GeneratedAt  time.Time  `json:"generated_at"`
}
