package sessionbinding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
	"github.com/blakebenson/artkey-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sessionStore interface {
	StoreSessionEntity(ctx context.Context, sessionID, artKeyID string, ttl time.Duration) error
	GetSessionEntity(ctx context.Context, sessionID string) (string, error)
	ClearSession(ctx context.Context, sessionID string) error
	ClearSessionComplete(ctx context.Context, sessionID string) error
	MarkSessionComplete(ctx context.Context, sessionID string, ttl time.Duration) error
	IsSessionComplete(ctx context.Context, sessionID string) (bool, error)
}

type commerceStore interface {
	IsArtKeyProduct(ctx context.Context, productID uuid.UUID) (bool, error)
	UpsertCartLine(ctx context.Context, sessionID, lineKey string, productID uuid.UUID, quantity int) (*models.CartLine, error)
	SetCartLineArtKey(ctx context.Context, sessionID, lineKey string, artKeyID uuid.UUID) error
	HasFlaggedCartLine(ctx context.Context, sessionID string) (bool, error)
	ClearCartLines(ctx context.Context, sessionID string) error
	FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.ShopOrder, error)
	SetItemArtKeyWithTx(tx *gorm.DB, itemID, artKeyID uuid.UUID) error
	ClearItemArtKeyWithTx(tx *gorm.DB, itemID uuid.UUID) error
	SetOrderFirstArtKeyWithTx(tx *gorm.DB, orderID, artKeyID uuid.UUID) (bool, error)
	ClearOrderFirstArtKeyWithTx(tx *gorm.DB, orderID uuid.UUID) error
	AddOrderNoteWithTx(tx *gorm.DB, orderID uuid.UUID, body string) error
}

type keyRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error)
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error)
	CreateWithTx(tx *gorm.DB, key *models.ArtKey) error
	SaveWithTx(tx *gorm.DB, key *models.ArtKey) error
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) error
}

type mediaCascader interface {
	DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error
}

// EditorEntry is what a shopper needs to open the editor for their entity.
type EditorEntry struct {
	ArtKeyID  uuid.UUID
	Slug      string
	EditToken string
}

// Manager owns the session-to-entity binding lifecycle: bind at add-to-cart,
// resolve at the checkout gate, consume at order attach, release on terminal
// order statuses.
type Manager struct {
	repo       keyRepo
	commerce   commerceStore
	sessions   sessionStore
	media      mediaCascader
	tx         txRunner
	outbox     outboxPublisher
	logg       *logger.Logger
	permalinks artkeys.Permalinker
	sessionTTL time.Duration
	now        func() time.Time
}

// ManagerParams configure the session binding manager.
type ManagerParams struct {
	Repo       keyRepo
	Commerce   commerceStore
	Sessions   sessionStore
	Media      mediaCascader
	Tx         txRunner
	Outbox     outboxPublisher
	Logger     *logger.Logger
	Permalinks artkeys.Permalinker
	SessionTTL time.Duration
}

// NewManager builds the session binding manager.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("key repo required")
	}
	if params.Commerce == nil {
		return nil, fmt.Errorf("commerce store required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Media == nil {
		return nil, fmt.Errorf("media cascader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.SessionTTL <= 0 {
		params.SessionTTL = 7 * 24 * time.Hour
	}
	return &Manager{
		repo:       params.Repo,
		commerce:   params.Commerce,
		sessions:   params.Sessions,
		media:      params.Media,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
		permalinks: params.Permalinks,
		sessionTTL: params.SessionTTL,
		now:        time.Now,
	}, nil
}

// BindToCartLine handles the host shop's line-added hook. Unflagged products
// only refresh the cart mirror. Flagged products always mint a fresh
// provisional entity, stash it on the line, and point the session at it.
func (m *Manager) BindToCartLine(ctx context.Context, sessionID, lineKey string, productID uuid.UUID, quantity int) (*EditorEntry, error) {
	if _, err := m.commerce.UpsertCartLine(ctx, sessionID, lineKey, productID, quantity); err != nil {
		return nil, err
	}

	flagged, err := m.commerce.IsArtKeyProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !flagged {
		return nil, nil
	}

	key, err := m.createProvisional(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	if err := m.commerce.SetCartLineArtKey(ctx, sessionID, lineKey, key.ID); err != nil {
		return nil, err
	}
	if err := m.sessions.StoreSessionEntity(ctx, sessionID, key.ID.String(), m.sessionTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing session entity")
	}
	if err := m.sessions.ClearSessionComplete(ctx, sessionID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing completion flag")
	}

	return &EditorEntry{ArtKeyID: key.ID, Slug: key.Slug, EditToken: key.EditToken}, nil
}

// ResolveForCheckoutGate decides whether the shopper must pass through the
// editor before checkout. Nil entry means no gate. Repeated calls return the
// same entity.
func (m *Manager) ResolveForCheckoutGate(ctx context.Context, sessionID string) (*EditorEntry, error) {
	flagged, err := m.commerce.HasFlaggedCartLine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !flagged {
		return nil, nil
	}

	complete, err := m.sessions.IsSessionComplete(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading completion flag")
	}
	if complete {
		return nil, nil
	}

	if key := m.resolveSessionEntity(ctx, sessionID); key != nil {
		return &EditorEntry{ArtKeyID: key.ID, Slug: key.Slug, EditToken: key.EditToken}, nil
	}

	key, err := m.createProvisional(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.StoreSessionEntity(ctx, sessionID, key.ID.String(), m.sessionTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing session entity")
	}
	return &EditorEntry{ArtKeyID: key.ID, Slug: key.Slug, EditToken: key.EditToken}, nil
}

// MarkComplete records that the shopper finished editing for this session.
func (m *Manager) MarkComplete(ctx context.Context, sessionID string) error {
	if err := m.sessions.MarkSessionComplete(ctx, sessionID, m.sessionTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking session complete")
	}
	return nil
}

// AttachToOrder consumes session bindings into durable order bindings. The
// hook fires at confirmation and again at completion; items that already hold
// a live binding are left untouched, so re-invocation is a no-op.
func (m *Manager) AttachToOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := m.commerce.FindOrderWithItems(ctx, orderID)
	if err != nil {
		return err
	}

	consumedSessions := map[string]bool{}
	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessionConsumed := false
		for i := range order.Items {
			item := &order.Items[i]

			eligible, err := m.commerce.IsArtKeyProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if !eligible {
				continue
			}
			live, err := m.itemBindingLive(tx, item)
			if err != nil {
				return err
			}
			if live {
				continue
			}

			var key *models.ArtKey
			minted := false
			if !sessionConsumed && item.SessionID != nil {
				key = m.consumeSessionEntity(ctx, tx, *item.SessionID)
				if key != nil {
					sessionConsumed = true
					consumedSessions[*item.SessionID] = true
				}
			}
			if key == nil {
				key, err = artkeys.NewProvisional(order.UserID, "")
				if err != nil {
					return err
				}
				if err := m.repo.CreateWithTx(tx, key); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating replacement art key")
				}
				minted = true
			}

			if err := m.commerce.SetItemArtKeyWithTx(tx, item.ID, key.ID); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
					// A concurrent writer bound the item after the liveness
					// check. Discard the replacement so nothing attached leaks;
					// a consumed session key stays temporary for the reaper.
					if minted {
						if delErr := m.repo.DeleteWithTx(tx, key.ID); delErr != nil {
							return pkgerrors.Wrap(pkgerrors.CodeDependency, delErr, "discarding unbound replacement")
						}
					}
					continue
				}
				return err
			}
			item.ArtKeyID = &key.ID

			if order.UserID != nil && key.OwnerUserID == nil {
				key.OwnerUserID = order.UserID
			}
			key.IsTemporary = false
			key.OrderID = &order.ID
			if err := m.repo.SaveWithTx(tx, key); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attaching art key")
			}

			recorded, err := m.commerce.SetOrderFirstArtKeyWithTx(tx, order.ID, key.ID)
			if err != nil {
				return err
			}
			if recorded {
				note := fmt.Sprintf("Art Key page: %s (edit token %s)", m.permalinks.For(key.Slug), key.EditToken)
				if err := m.commerce.AddOrderNoteWithTx(tx, order.ID, note); err != nil {
					return err
				}
			}

			err = m.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventArtKeyAttached,
				AggregateType: enums.AggregateArtKey,
				AggregateID:   key.ID,
				Version:       1,
				Data: payloads.ArtKeyAttachedEvent{
					ArtKeyID:    key.ID,
					OrderID:     order.ID,
					OrderItemID: item.ID,
					Slug:        key.Slug,
					Permalink:   m.permalinks.For(key.Slug),
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for sessionID := range consumedSessions {
		if clearErr := m.sessions.ClearSession(ctx, sessionID); clearErr != nil {
			m.logg.Error(ctx, "clearing consumed session", clearErr)
		}
		if clearErr := m.commerce.ClearCartLines(ctx, sessionID); clearErr != nil {
			m.logg.Error(ctx, "clearing cart mirror", clearErr)
		}
	}
	return nil
}

// ReleaseForOrder detaches every entity bound to a terminally failed order.
// Unprotected entities are deleted with their media; admin-protected ones
// survive but lose their order references either way.
func (m *Manager) ReleaseForOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := m.commerce.FindOrderWithItems(ctx, orderID)
	if err != nil {
		return err
	}

	var errs error
	for i := range order.Items {
		item := &order.Items[i]
		if item.ArtKeyID == nil {
			continue
		}
		releaseErr := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := m.releaseEntity(ctx, tx, *item.ArtKeyID, order.ID); err != nil {
				return err
			}
			return m.commerce.ClearItemArtKeyWithTx(tx, item.ID)
		})
		errs = multierr.Append(errs, releaseErr)
	}

	if order.FirstArtKeyID != nil {
		releaseErr := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			// the legacy order-level entity may already be gone via an item
			alreadyHandled := false
			for _, item := range order.Items {
				if item.ArtKeyID != nil && *item.ArtKeyID == *order.FirstArtKeyID {
					alreadyHandled = true
					break
				}
			}
			if !alreadyHandled {
				if err := m.releaseEntity(ctx, tx, *order.FirstArtKeyID, order.ID); err != nil {
					return err
				}
			}
			return m.commerce.ClearOrderFirstArtKeyWithTx(tx, order.ID)
		})
		errs = multierr.Append(errs, releaseErr)
	}

	return errs
}

func (m *Manager) releaseEntity(ctx context.Context, tx *gorm.DB, keyID, orderID uuid.UUID) error {
	key, err := m.repo.FindByIDWithTx(tx, keyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading art key for release")
	}

	reverted := false
	if key.IsAdminProtected {
		key.OrderID = nil
		if err := m.repo.SaveWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detaching protected art key")
		}
	} else {
		if err := m.media.DeleteForArtKey(ctx, tx, key.ID); err != nil {
			return err
		}
		if err := m.repo.DeleteWithTx(tx, key.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting released art key")
		}
		reverted = true
	}

	return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventArtKeyReleased,
		AggregateType: enums.AggregateArtKey,
		AggregateID:   key.ID,
		Version:       1,
		Data: payloads.ArtKeyReleasedEvent{
			ArtKeyID:   key.ID,
			OrderID:    orderID,
			Reverted:   reverted,
			Protected:  key.IsAdminProtected,
			ReleasedAt: m.now().UTC(),
		},
	})
}

// itemBindingLive reports whether the item already points at an existing key.
// A dangling reference (key deleted out-of-band between hooks) is repaired in
// place: the stale id is cleared inside the tx so the guarded rebind can land.
func (m *Manager) itemBindingLive(tx *gorm.DB, item *models.ShopOrderItem) (bool, error) {
	if item.ArtKeyID == nil {
		return false, nil
	}
	_, err := m.repo.FindByIDWithTx(tx, *item.ArtKeyID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking item binding")
	}
	if err := m.commerce.ClearItemArtKeyWithTx(tx, item.ID); err != nil {
		return false, err
	}
	item.ArtKeyID = nil
	return false, nil
}

// consumeSessionEntity performs the check-and-clear of the session mapping.
// Returns nil when the session holds nothing usable.
func (m *Manager) consumeSessionEntity(ctx context.Context, tx *gorm.DB, sessionID string) *models.ArtKey {
	raw, err := m.sessions.GetSessionEntity(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.logg.Error(ctx, "reading session entity", err)
		}
		return nil
	}
	keyID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	if err := m.sessions.ClearSession(ctx, sessionID); err != nil {
		m.logg.Error(ctx, "clearing session entity", err)
	}

	key, err := m.repo.FindByIDWithTx(tx, keyID)
	if err != nil {
		return nil
	}
	if key.IsAttached() {
		return nil
	}
	return key
}

func (m *Manager) resolveSessionEntity(ctx context.Context, sessionID string) *models.ArtKey {
	raw, err := m.sessions.GetSessionEntity(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.logg.Error(ctx, "reading session entity", err)
		}
		return nil
	}
	keyID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	key, err := m.repo.FindByID(ctx, keyID)
	if err != nil {
		return nil
	}
	if key.IsAttached() {
		return nil
	}
	return key
}

func (m *Manager) createProvisional(ctx context.Context, sessionID string, ownerID *uuid.UUID) (*models.ArtKey, error) {
	key, err := artkeys.NewProvisional(ownerID, "")
	if err != nil {
		return nil, err
	}
	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := m.repo.CreateWithTx(tx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating provisional art key")
		}
		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventArtKeyCreated,
			AggregateType: enums.AggregateArtKey,
			AggregateID:   key.ID,
			Version:       1,
			Data: payloads.ArtKeyCreatedEvent{
				ArtKeyID:  key.ID,
				Slug:      key.Slug,
				SessionID: sessionID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}
