package printcomp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
	"github.com/blakebenson/artkey-backend/pkg/outbox/payloads"
)

const compositeURLTTL = 15 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type keyStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error)
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error)
	SaveWithTx(tx *gorm.DB, key *models.ArtKey) error
}

type mediaRows interface {
	InsertWithTx(tx *gorm.DB, asset *models.MediaAsset) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MediaAsset, error)
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) error
}

type blobStore interface {
	Upload(ctx context.Context, bucket, object, contentType string, data []byte) error
	Download(ctx context.Context, bucket, object string) ([]byte, error)
	Delete(ctx context.Context, bucket, object string) error
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
}

// PrintImage is the composite the storefront serves for printing.
type PrintImage struct {
	ArtKeyID uuid.UUID
	AssetID  uuid.UUID
	URL      string
}

// Service renders print-ready composites: design raster plus QR overlay.
type Service struct {
	keys       keyStore
	media      mediaRows
	blobs      blobStore
	tx         txRunner
	outbox     outboxPublisher
	registry   *Registry
	permalinks artkeys.Permalinker
	logg       *logger.Logger
	bucket     string
	qrSizePx   int
	now        func() time.Time
}

// ServiceParams configure the print composition service.
type ServiceParams struct {
	Keys       keyStore
	Media      mediaRows
	Blobs      blobStore
	Tx         txRunner
	Outbox     outboxPublisher
	Registry   *Registry
	Permalinks artkeys.Permalinker
	Logger     *logger.Logger
	Bucket     string
	QRSizePx   int
}

// NewService builds the print composition service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Keys == nil {
		return nil, fmt.Errorf("key store required")
	}
	if params.Media == nil {
		return nil, fmt.Errorf("media rows required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("template registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	if params.QRSizePx < 600 {
		params.QRSizePx = 600
	}
	return &Service{
		keys:       params.Keys,
		media:      params.Media,
		blobs:      params.Blobs,
		tx:         params.Tx,
		outbox:     params.Outbox,
		registry:   params.Registry,
		permalinks: params.Permalinks,
		logg:       params.Logger,
		bucket:     params.Bucket,
		qrSizePx:   params.QRSizePx,
		now:        time.Now,
	}, nil
}

// Templates exposes the registry for the public listing endpoint.
func (s *Service) Templates() *Registry {
	return s.registry
}

// Compose builds a fresh composite for the key and swaps it in as the current
// print asset. The previous composite, if any, is deleted. Callers are
// responsible for authorization.
func (s *Service) Compose(ctx context.Context, artKeyID uuid.UUID) (*models.MediaAsset, error) {
	key, err := s.keys.FindByID(ctx, artKeyID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "art key not found")
	}
	if !key.Fields.HasPrintSelections() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "print template and design image must be selected first")
	}
	tpl, ok := s.registry.Get(key.Fields.PrintTemplate)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown print template %q", key.Fields.PrintTemplate))
	}

	designAsset, err := s.media.FindByID(ctx, key.Fields.DesignMediaID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "design image no longer exists")
	}
	designBytes, err := s.blobs.Download(ctx, s.bucket, designAsset.ObjectKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "downloading design image")
	}

	// the permalink is baked into the QR, so the page must be live first
	if !key.Published {
		if err := s.forcePublish(ctx, key); err != nil {
			return nil, err
		}
	}

	qr, err := GenerateQR(s.permalinks.For(key.Slug), s.qrSizePx)
	if err != nil {
		return nil, err
	}
	design, err := DecodeDesign(designBytes)
	if err != nil {
		return nil, err
	}

	canvas, _ := Compose(design, qr, tpl)
	encoded, err := EncodePNG(canvas)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("artkeys/%s/composite/%s.png", key.ID, uuid.NewString())
	if err := s.blobs.Upload(ctx, s.bucket, objectKey, "image/png", encoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "uploading composite")
	}

	asset := &models.MediaAsset{
		ID:        uuid.New(),
		ArtKeyID:  key.ID,
		Kind:      enums.MediaKindComposite,
		Role:      enums.MediaRolePrintComposite,
		Origin:    enums.UploadOriginSystem,
		Approved:  true,
		ObjectKey: objectKey,
		FileName:  fmt.Sprintf("%s-print.png", key.Slug),
		MimeType:  "image/png",
		SizeBytes: int64(len(encoded)),
	}

	var supersededID *uuid.UUID
	var supersededObjectKey string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.keys.FindByIDWithTx(tx, key.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading art key")
		}
		if current.CompositeMediaID != nil {
			superseded := *current.CompositeMediaID
			supersededID = &superseded
			if old, err := s.media.FindByID(ctx, superseded); err == nil {
				supersededObjectKey = old.ObjectKey
			}
			if err := s.media.DeleteWithTx(tx, superseded); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "removing superseded composite")
			}
		}

		if err := s.media.InsertWithTx(tx, asset); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording composite asset")
		}
		current.CompositeMediaID = &asset.ID
		if err := s.keys.SaveWithTx(tx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording composite pointer")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrintCompositeGenerated,
			AggregateType: enums.AggregateArtKey,
			AggregateID:   key.ID,
			Version:       1,
			Data: payloads.PrintCompositeGeneratedEvent{
				ArtKeyID:     key.ID,
				CompositeID:  asset.ID,
				Template:     tpl.Key,
				WidthPx:      canvas.Bounds().Dx(),
				HeightPx:     canvas.Bounds().Dy(),
				SupersededID: supersededID,
				GeneratedAt:  s.now().UTC(),
			},
		})
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, s.bucket, objectKey); delErr != nil {
			s.logg.Error(ctx, "orphaned composite after failed swap", delErr)
		}
		return nil, err
	}

	if supersededObjectKey != "" {
		if delErr := s.blobs.Delete(ctx, s.bucket, supersededObjectKey); delErr != nil {
			s.logg.Error(ctx, "deleting superseded composite object", delErr)
		}
	}
	return asset, nil
}

// GetOrGenerate serves the current composite, building it first when absent.
func (s *Service) GetOrGenerate(ctx context.Context, artKeyID uuid.UUID) (*PrintImage, error) {
	key, err := s.keys.FindByID(ctx, artKeyID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "art key not found")
	}

	if key.CompositeMediaID != nil {
		if asset, err := s.media.FindByID(ctx, *key.CompositeMediaID); err == nil {
			return s.printImage(key.ID, asset)
		}
	}

	asset, err := s.Compose(ctx, artKeyID)
	if err != nil {
		return nil, err
	}
	return s.printImage(key.ID, asset)
}

// ComposeAfterOrder is the order-completion trigger. Failures are logged and
// swallowed so order processing never stalls on a print asset.
func (s *Service) ComposeAfterOrder(ctx context.Context, artKeyID uuid.UUID, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	composeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.Compose(composeCtx, artKeyID); err != nil {
		s.logg.Warn(s.logg.WithArtKeyID(ctx, artKeyID.String()), "composite generation failed, retry available")
	}
}

func (s *Service) printImage(artKeyID uuid.UUID, asset *models.MediaAsset) (*PrintImage, error) {
	url, err := s.blobs.SignedURL(s.bucket, asset.ObjectKey, "", compositeURLTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "signing composite url")
	}
	return &PrintImage{ArtKeyID: artKeyID, AssetID: asset.ID, URL: url}, nil
}

func (s *Service) forcePublish(ctx context.Context, key *models.ArtKey) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.keys.FindByIDWithTx(tx, key.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading art key")
		}
		if current.Published {
			key.Published = true
			return nil
		}
		current.Published = true
		if err := s.keys.SaveWithTx(tx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing art key")
		}
		key.Published = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventArtKeyPublished,
			AggregateType: enums.AggregateArtKey,
			AggregateID:   key.ID,
			Version:       1,
			Data: payloads.ArtKeyPublishedEvent{
				ArtKeyID: key.ID,
				Slug:     key.Slug,
			},
		})
	})
}
