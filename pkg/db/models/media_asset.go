package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/pkg/enums"
)

// MediaAsset captures metadata for every uploaded object tied to an Art Key.
type MediaAsset struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ArtKeyID   uuid.UUID          `gorm:"column:art_key_id;type:uuid;not null;index"`
	Kind       enums.MediaKind    `gorm:"column:kind;type:media_kind;not null"`
	Role       enums.MediaRole    `gorm:"column:role;type:media_role;not null;default:''"`
	Origin     enums.UploadOrigin `gorm:"column:origin;type:upload_origin;not null"`
	Approved   bool               `gorm:"column:approved;not null;default:false"`
	ObjectKey  string             `gorm:"column:object_key;not null;unique"`
	URL        *string            `gorm:"column:url"`
	FileName   string             `gorm:"column:file_name;not null"`
	MimeType   string             `gorm:"column:mime_type;not null"`
	SizeBytes  int64              `gorm:"column:size_bytes;not null"`
	AuthorName *string            `gorm:"column:author_name"`
	Caption    *string            `gorm:"column:caption"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
