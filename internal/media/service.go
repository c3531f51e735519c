package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/internal/tokens"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
	"github.com/blakebenson/artkey-backend/pkg/outbox/payloads"
)

const signedURLTTL = 15 * time.Minute

var allowedMimeTypes = map[enums.MediaKind][]string{
	enums.MediaKindImage: {
		"image/jpeg", "image/png", "image/gif", "image/webp",
	},
	enums.MediaKindVideo: {
		"video/mp4", "video/quicktime", "video/webm",
	},
	enums.MediaKindMessage: {
		"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf",
	},
	enums.MediaKindComposite: {
		"image/png",
	},
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type repository interface {
	InsertWithTx(tx *gorm.DB, asset *models.MediaAsset) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MediaAsset, error)
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.MediaAsset, error)
	SaveWithTx(tx *gorm.DB, asset *models.MediaAsset) error
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) error
	List(ctx context.Context, artKeyID uuid.UUID, filter ListFilter) ([]models.MediaAsset, error)
	ListByArtKeyWithTx(tx *gorm.DB, artKeyID uuid.UUID) ([]models.MediaAsset, error)
	DeleteByArtKeyWithTx(tx *gorm.DB, artKeyID uuid.UUID) error
}

type artKeyLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error)
}

type blobStore interface {
	Upload(ctx context.Context, bucket, object, contentType string, data []byte) error
	Download(ctx context.Context, bucket, object string) ([]byte, error)
	Delete(ctx context.Context, bucket, object string) error
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
}

// UploadInput describes one incoming asset.
type UploadInput struct {
	ArtKeyID   uuid.UUID
	Kind       enums.MediaKind
	Origin     enums.UploadOrigin
	Role       enums.MediaRole
	FileName   string
	MimeType   string
	Data       []byte
	AuthorName *string
	Caption    *string
}

// Service is the moderation ledger over uploaded assets.
type Service interface {
	Upload(ctx context.Context, caps tokens.Capabilities, token string, input UploadInput) (*models.MediaAsset, error)
	Approve(ctx context.Context, artKeyID, assetID uuid.UUID, caps tokens.Capabilities, token string) (*models.MediaAsset, error)
	Delete(ctx context.Context, artKeyID, assetID uuid.UUID, caps tokens.Capabilities, token string) error
	List(ctx context.Context, artKeyID uuid.UUID, filter ListFilter) ([]models.MediaAsset, error)
	Get(ctx context.Context, assetID uuid.UUID) (*models.MediaAsset, error)
	Download(ctx context.Context, asset *models.MediaAsset) ([]byte, error)
	ResolveURL(asset *models.MediaAsset) (string, error)
	DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error
}

type service struct {
	repo     repository
	keys     artKeyLoader
	tx       txRunner
	outbox   outboxPublisher
	blobs    blobStore
	logg     *logger.Logger
	bucket   string
	maxBytes int64
}

// ServiceParams configure the media service.
type ServiceParams struct {
	Repo     repository
	Keys     artKeyLoader
	Tx       txRunner
	Outbox   outboxPublisher
	Blobs    blobStore
	Logger   *logger.Logger
	Bucket   string
	MaxBytes int64
}

// NewService builds the media service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Keys == nil {
		return nil, fmt.Errorf("art key loader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	if params.MaxBytes <= 0 {
		params.MaxBytes = 30 * 1024 * 1024
	}
	return &service{
		repo:     params.Repo,
		keys:     params.Keys,
		tx:       params.Tx,
		outbox:   params.Outbox,
		blobs:    params.Blobs,
		logg:     params.Logger,
		bucket:   params.Bucket,
		maxBytes: params.MaxBytes,
	}, nil
}

func (s *service) Upload(ctx context.Context, caps tokens.Capabilities, token string, input UploadInput) (*models.MediaAsset, error) {
	key, err := s.loadKey(ctx, input.ArtKeyID)
	if err != nil {
		return nil, err
	}
	if input.Origin != enums.UploadOriginVisitor && !tokens.CanEdit(caps, key, token) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage this art key's media")
	}
	if err := validateUpload(input, s.maxBytes); err != nil {
		return nil, err
	}

	asset := &models.MediaAsset{
		ID:         uuid.New(),
		ArtKeyID:   key.ID,
		Kind:       input.Kind,
		Role:       input.Role,
		Origin:     input.Origin,
		Approved:   input.Origin != enums.UploadOriginVisitor,
		ObjectKey:  objectKeyFor(key.ID, input),
		FileName:   strings.TrimSpace(input.FileName),
		MimeType:   input.MimeType,
		SizeBytes:  int64(len(input.Data)),
		AuthorName: input.AuthorName,
		Caption:    input.Caption,
	}

	if err := s.blobs.Upload(ctx, s.bucket, asset.ObjectKey, asset.MimeType, input.Data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "uploading media object")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.InsertWithTx(tx, asset); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording media asset")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMediaUploaded,
			AggregateType: enums.AggregateMedia,
			AggregateID:   asset.ID,
			Version:       1,
			Data: payloads.MediaUploadedEvent{
				MediaID:  asset.ID,
				ArtKeyID: asset.ArtKeyID,
				Kind:     asset.Kind.String(),
				Origin:   string(asset.Origin),
				Approved: asset.Approved,
			},
		})
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, s.bucket, asset.ObjectKey); delErr != nil {
			s.logg.Error(ctx, "orphaned media object after failed insert", delErr)
		}
		return nil, err
	}
	return asset, nil
}

func (s *service) Approve(ctx context.Context, artKeyID, assetID uuid.UUID, caps tokens.Capabilities, token string) (*models.MediaAsset, error) {
	key, err := s.loadKey(ctx, artKeyID)
	if err != nil {
		return nil, err
	}
	if !tokens.CanEdit(caps, key, token) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to moderate this art key's media")
	}

	var approved *models.MediaAsset
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		asset, err := s.repo.FindByIDWithTx(tx, assetID)
		if err != nil {
			return mapNotFound(err, "media asset not found")
		}
		if asset.ArtKeyID != key.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "media asset not found")
		}
		if asset.Approved {
			approved = asset
			return nil
		}
		asset.Approved = true
		if err := s.repo.SaveWithTx(tx, asset); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approving media asset")
		}
		approved = asset
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMediaApproved,
			AggregateType: enums.AggregateMedia,
			AggregateID:   asset.ID,
			Version:       1,
			Data: payloads.MediaApprovedEvent{
				MediaID:  asset.ID,
				ArtKeyID: asset.ArtKeyID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Delete removes one asset. An asset that belongs to a different Art Key is
// treated as already gone rather than leaked through an error.
func (s *service) Delete(ctx context.Context, artKeyID, assetID uuid.UUID, caps tokens.Capabilities, token string) error {
	key, err := s.loadKey(ctx, artKeyID)
	if err != nil {
		return err
	}
	if !tokens.CanEdit(caps, key, token) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage this art key's media")
	}

	var objectKey string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		asset, err := s.repo.FindByIDWithTx(tx, assetID)
		if err != nil {
			if isRecordNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading media asset")
		}
		if asset.ArtKeyID != key.ID {
			return nil
		}
		objectKey = asset.ObjectKey
		if err := s.repo.DeleteWithTx(tx, asset.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting media asset")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if objectKey != "" {
		if delErr := s.blobs.Delete(ctx, s.bucket, objectKey); delErr != nil {
			s.logg.Error(ctx, "deleting media object", delErr)
		}
	}
	return nil
}

func (s *service) List(ctx context.Context, artKeyID uuid.UUID, filter ListFilter) ([]models.MediaAsset, error) {
	assets, err := s.repo.List(ctx, artKeyID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing media assets")
	}
	return assets, nil
}

func (s *service) Get(ctx context.Context, assetID uuid.UUID) (*models.MediaAsset, error) {
	asset, err := s.repo.FindByID(ctx, assetID)
	if err != nil {
		return nil, mapNotFound(err, "media asset not found")
	}
	return asset, nil
}

func (s *service) Download(ctx context.Context, asset *models.MediaAsset) ([]byte, error) {
	data, err := s.blobs.Download(ctx, s.bucket, asset.ObjectKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "downloading media object")
	}
	return data, nil
}

func (s *service) ResolveURL(asset *models.MediaAsset) (string, error) {
	if asset.URL != nil && *asset.URL != "" {
		return *asset.URL, nil
	}
	url, err := s.blobs.SignedURL(s.bucket, asset.ObjectKey, "", signedURLTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "signing media url")
	}
	return url, nil
}

// DeleteForArtKey cascades the asset rows of a key inside the caller's
// transaction. Blob removal is best effort and never fails the cascade.
func (s *service) DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error {
	assets, err := s.repo.ListByArtKeyWithTx(tx, artKeyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing media for cascade")
	}
	if err := s.repo.DeleteByArtKeyWithTx(tx, artKeyID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cascading media rows")
	}
	for _, asset := range assets {
		if delErr := s.blobs.Delete(ctx, s.bucket, asset.ObjectKey); delErr != nil {
			s.logg.Error(ctx, "deleting cascaded media object", delErr)
		}
	}
	return nil
}

func (s *service) loadKey(ctx context.Context, id uuid.UUID) (*models.ArtKey, error) {
	key, err := s.keys.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "art key not found")
	}
	return key, nil
}

func validateUpload(input UploadInput, maxBytes int64) error {
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid media kind %q", input.Kind))
	}
	if !input.Origin.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid upload origin %q", input.Origin))
	}
	if !input.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid media role")
	}
	if len(input.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "empty upload")
	}
	if int64(len(input.Data)) > maxBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
	}
	for _, mime := range allowedMimeTypes[input.Kind] {
		if mime == input.MimeType {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("mime type %q not allowed for kind %q", input.MimeType, input.Kind))
}

func objectKeyFor(artKeyID uuid.UUID, input UploadInput) string {
	ext := strings.ToLower(path.Ext(input.FileName))
	return fmt.Sprintf("artkeys/%s/%s/%s%s", artKeyID, input.Kind, uuid.NewString(), ext)
}

func mapNotFound(err error, message string) error {
	if isRecordNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading record")
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
