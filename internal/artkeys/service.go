package artkeys

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/internal/tokens"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
	"github.com/blakebenson/artkey-backend/pkg/outbox/payloads"
	"github.com/blakebenson/artkey-backend/pkg/types"
)

const slugLength = 10

var slugCharset = []byte("abcdefghjkmnpqrstuvwxyz23456789")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type mediaLibrary interface {
	Get(ctx context.Context, assetID uuid.UUID) (*models.MediaAsset, error)
	DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error
}

type repository interface {
	CreateWithTx(tx *gorm.DB, key *models.ArtKey) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error)
	FindBySlug(ctx context.Context, slug string) (*models.ArtKey, error)
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error)
	SaveWithTx(tx *gorm.DB, key *models.ArtKey) error
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]models.ArtKey, error)
}

// Service owns the Art Key lifecycle outside of order binding.
type Service interface {
	CreateProvisional(ctx context.Context, input CreateInput) (*models.ArtKey, error)
	GetBySlug(ctx context.Context, slug string) (*models.ArtKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error)
	GetForEdit(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string) (*models.ArtKey, error)
	UpdateFields(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string, fields types.ArtKeyFields) (*models.ArtKey, error)
	Publish(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string) (*models.ArtKey, error)
	SetPrintSelections(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string, template string, designMediaID uuid.UUID) (*models.ArtKey, error)
	SetAdminProtected(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, protected bool) (*models.ArtKey, error)
	AssignOwner(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, ownerID uuid.UUID) (*models.ArtKey, error)
	Delete(ctx context.Context, id uuid.UUID, caps tokens.Capabilities) error
	List(ctx context.Context, caps tokens.Capabilities, limit, offset int) ([]models.ArtKey, error)
}

// CreateInput configures a freshly minted provisional key.
type CreateInput struct {
	SessionID string
	OwnerID   *uuid.UUID
	Title     string
}

type service struct {
	repo           repository
	tx             txRunner
	outbox         outboxPublisher
	media          mediaLibrary
	printTemplates map[string]struct{}
	now            func() time.Time
}

// ServiceParams configure the Art Key service.
type ServiceParams struct {
	Repo           repository
	Tx             txRunner
	Outbox         outboxPublisher
	Media          mediaLibrary
	PrintTemplates []string
}

// NewService builds the Art Key service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Media == nil {
		return nil, fmt.Errorf("media library required")
	}
	templates := make(map[string]struct{}, len(params.PrintTemplates))
	for _, name := range params.PrintTemplates {
		templates[name] = struct{}{}
	}
	return &service{
		repo:           params.Repo,
		tx:             params.Tx,
		outbox:         params.Outbox,
		media:          params.Media,
		printTemplates: templates,
		now:            time.Now,
	}, nil
}

func (s *service) CreateProvisional(ctx context.Context, input CreateInput) (*models.ArtKey, error) {
	key, err := NewProvisional(input.OwnerID, input.Title)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating art key")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventArtKeyCreated,
			AggregateType: enums.AggregateArtKey,
			AggregateID:   key.ID,
			Actor:         actorRef(tokens.Capabilities{UserID: input.OwnerID}, input.SessionID),
			Version:       1,
			Data: payloads.ArtKeyCreatedEvent{
				ArtKeyID:  key.ID,
				Slug:      key.Slug,
				SessionID: input.SessionID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*models.ArtKey, error) {
	key, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "art key not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading art key")
	}
	return key, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "art key not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading art key")
	}
	return key, nil
}

func (s *service) GetForEdit(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string) (*models.ArtKey, error) {
	key, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tokens.CanEdit(caps, key, token) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to edit this art key")
	}
	return key, nil
}

func (s *service) UpdateFields(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string, fields types.ArtKeyFields) (*models.ArtKey, error) {
	var updated *models.ArtKey
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		key, err := s.loadForEditTx(tx, id, caps, token)
		if err != nil {
			return err
		}

		normalized := fields.Normalize()
		// preserve server-managed selections unless explicitly resubmitted
		if normalized.PrintTemplate == "" {
			normalized.PrintTemplate = key.Fields.PrintTemplate
		}
		if normalized.DesignMediaID == uuid.Nil {
			normalized.DesignMediaID = key.Fields.DesignMediaID
		}

		key.Fields = normalized
		key.Title = normalized.Title
		if err := s.repo.SaveWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving art key fields")
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Publish(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string) (*models.ArtKey, error) {
	var published *models.ArtKey
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		key, err := s.loadForEditTx(tx, id, caps, token)
		if err != nil {
			return err
		}
		if key.Published {
			published = key
			return nil
		}
		key.Published = true
		if err := s.repo.SaveWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing art key")
		}
		published = key
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventArtKeyPublished,
			AggregateType: enums.AggregateArtKey,
			AggregateID:   key.ID,
			Actor:         actorRef(caps, ""),
			Version:       1,
			Data: payloads.ArtKeyPublishedEvent{
				ArtKeyID: key.ID,
				Slug:     key.Slug,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}

func (s *service) SetPrintSelections(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, token string, template string, designMediaID uuid.UUID) (*models.ArtKey, error) {
	template = strings.TrimSpace(template)
	if template != "" {
		if _, ok := s.printTemplates[template]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown print template %q", template))
		}
	}

	var updated *models.ArtKey
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		key, err := s.loadForEditTx(tx, id, caps, token)
		if err != nil {
			return err
		}
		if template != "" {
			key.Fields.PrintTemplate = template
		}
		if designMediaID != uuid.Nil {
			asset, err := s.media.Get(ctx, designMediaID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					return pkgerrors.New(pkgerrors.CodeValidation, "design image is not an uploaded asset")
				}
				return err
			}
			if asset.ArtKeyID != key.ID {
				return pkgerrors.New(pkgerrors.CodeValidation, "design image belongs to a different art key")
			}
			key.Fields.DesignMediaID = designMediaID
		}
		if err := s.repo.SaveWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving print selections")
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) SetAdminProtected(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, protected bool) (*models.ArtKey, error) {
	if !caps.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	var updated *models.ArtKey
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		key, err := s.loadTx(tx, id)
		if err != nil {
			return err
		}
		key.IsAdminProtected = protected
		if err := s.repo.SaveWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating admin protection")
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) AssignOwner(ctx context.Context, id uuid.UUID, caps tokens.Capabilities, ownerID uuid.UUID) (*models.ArtKey, error) {
	if !caps.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	var updated *models.ArtKey
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		key, err := s.loadTx(tx, id)
		if err != nil {
			return err
		}
		key.OwnerUserID = &ownerID
		if err := s.repo.SaveWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assigning owner")
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, caps tokens.Capabilities) error {
	if !caps.IsAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.loadTx(tx, id); err != nil {
			return err
		}
		if err := s.media.DeleteForArtKey(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.DeleteWithTx(tx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting art key")
		}
		return nil
	})
}

func (s *service) List(ctx context.Context, caps tokens.Capabilities, limit, offset int) ([]models.ArtKey, error) {
	if !caps.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing art keys")
	}
	return rows, nil
}

func (s *service) loadTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error) {
	key, err := s.repo.FindByIDWithTx(tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "art key not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading art key")
	}
	return key, nil
}

func (s *service) loadForEditTx(tx *gorm.DB, id uuid.UUID, caps tokens.Capabilities, token string) (*models.ArtKey, error) {
	key, err := s.loadTx(tx, id)
	if err != nil {
		return nil, err
	}
	if !tokens.CanEdit(caps, key, token) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to edit this art key")
	}
	return key, nil
}

func actorRef(caps tokens.Capabilities, sessionID string) *outbox.ActorRef {
	role := "visitor"
	if caps.IsAdmin {
		role = "admin"
	} else if caps.UserID != nil {
		role = "customer"
	}
	return &outbox.ActorRef{
		UserID:    caps.UserID,
		SessionID: sessionID,
		Role:      role,
	}
}

func generateSlug() (string, error) {
	buf := make([]byte, slugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, slugLength)
	for i, b := range buf {
		out[i] = slugCharset[int(b)%len(slugCharset)]
	}
	return "ak-" + string(out), nil
}
