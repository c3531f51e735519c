package commerce

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
)

// Store is the gorm adapter over the commerce collaborator contract: product
// flags, the cart mirror, orders with their items, and binding metadata.
type Store struct {
	db *gorm.DB
}

// NewStore builds the commerce store over the shared gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// IsArtKeyProduct reports whether the product mints a personalized page.
// Unknown products are treated as unflagged.
func (s *Store) IsArtKeyProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	var product models.ShopProduct
	err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	return product.IsArtKeyProduct && product.IsActive, nil
}

func (s *Store) FindProductByID(ctx context.Context, productID uuid.UUID) (*models.ShopProduct, error) {
	var product models.ShopProduct
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	return &product, nil
}

func (s *Store) FindProductBySKU(ctx context.Context, sku string) (*models.ShopProduct, error) {
	var product models.ShopProduct
	if err := s.db.WithContext(ctx).First(&product, "sku = ?", sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	return &product, nil
}

// UpsertCartLine mirrors one host-shop cart line, keyed by session and line.
func (s *Store) UpsertCartLine(ctx context.Context, sessionID, lineKey string, productID uuid.UUID, quantity int) (*models.CartLine, error) {
	if quantity <= 0 {
		quantity = 1
	}
	line := models.CartLine{
		ID:        uuid.New(),
		SessionID: sessionID,
		LineKey:   lineKey,
		ProductID: productID,
		Quantity:  quantity,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "line_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "quantity", "updated_at"}),
	}).Create(&line).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upserting cart line")
	}

	// the conflict path keeps the stored row's id
	var stored models.CartLine
	if err := s.db.WithContext(ctx).First(&stored, "session_id = ? AND line_key = ?", sessionID, lineKey).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading cart line")
	}
	return &stored, nil
}

// SetCartLineArtKey stashes the provisional entity on the mirrored line.
func (s *Store) SetCartLineArtKey(ctx context.Context, sessionID, lineKey string, artKeyID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("session_id = ? AND line_key = ?", sessionID, lineKey).
		Update("art_key_id", artKeyID).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stashing art key on cart line")
	}
	return nil
}

func (s *Store) ListCartLines(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing cart lines")
	}
	return lines, nil
}

// HasFlaggedCartLine reports whether any mirrored line references an Art Key
// product.
func (s *Store) HasFlaggedCartLine(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Joins("JOIN shop_products ON shop_products.id = cart_lines.product_id").
		Where("cart_lines.session_id = ?", sessionID).
		Where("shop_products.is_art_key_product = true AND shop_products.is_active = true").
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking cart for flagged lines")
	}
	return count > 0, nil
}

func (s *Store) ClearCartLines(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).
		Delete(&models.CartLine{}, "session_id = ?", sessionID).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart lines")
	}
	return nil
}

// OrderItemInput is one purchased line as the order-placed hook reports it.
type OrderItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	SessionID *string
	ArtKeyID  *uuid.UUID
}

// OrderInput is the order-placed hook payload after validation.
type OrderInput struct {
	ExternalRef   string
	CustomerEmail string
	CustomerName  string
	UserID        *uuid.UUID
	Status        enums.OrderStatus
	PlacedAt      time.Time
	Items         []OrderItemInput
}

// IngestOrder records a host-shop order. Re-delivery of the same external ref
// returns the already-stored order untouched.
func (s *Store) IngestOrder(ctx context.Context, input OrderInput) (*models.ShopOrder, error) {
	existing, err := s.FindOrderByExternalRef(ctx, input.ExternalRef)
	if err == nil {
		return existing, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	order := models.ShopOrder{
		ID:            uuid.New(),
		ExternalRef:   input.ExternalRef,
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		UserID:        input.UserID,
		Status:        input.Status,
		PlacedAt:      input.PlacedAt,
	}
	for _, item := range input.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		order.Items = append(order.Items, models.ShopOrderItem{
			ID:        uuid.New(),
			ProductID: item.ProductID,
			Quantity:  quantity,
			SessionID: item.SessionID,
			ArtKeyID:  item.ArtKeyID,
		})
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ingesting order")
	}
	return &order, nil
}

func (s *Store) FindOrderByExternalRef(ctx context.Context, externalRef string) (*models.ShopOrder, error) {
	var order models.ShopOrder
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&order, "external_ref = ?", externalRef).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	return &order, nil
}

func (s *Store) FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.ShopOrder, error) {
	var order models.ShopOrder
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	return &order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	err := s.db.WithContext(ctx).
		Model(&models.ShopOrder{}).
		Where("id = ?", orderID).
		Update("status", status).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating order status")
	}
	return nil
}

// SetItemArtKeyWithTx binds an entity to an order item. A line that already
// holds a binding is never reassigned.
func (s *Store) SetItemArtKeyWithTx(tx *gorm.DB, itemID, artKeyID uuid.UUID) error {
	result := tx.Model(&models.ShopOrderItem{}).
		Where("id = ? AND art_key_id IS NULL", itemID).
		Update("art_key_id", artKeyID)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "binding art key to order item")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order item already bound")
	}
	return nil
}

func (s *Store) ClearItemArtKeyWithTx(tx *gorm.DB, itemID uuid.UUID) error {
	err := tx.Model(&models.ShopOrderItem{}).
		Where("id = ?", itemID).
		Update("art_key_id", nil).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing order item binding")
	}
	return nil
}

// SetOrderFirstArtKeyWithTx records the order-level entity reference once.
// Returns false when the order already carries one.
func (s *Store) SetOrderFirstArtKeyWithTx(tx *gorm.DB, orderID, artKeyID uuid.UUID) (bool, error) {
	result := tx.Model(&models.ShopOrder{}).
		Where("id = ? AND first_art_key_id IS NULL", orderID).
		Update("first_art_key_id", artKeyID)
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "recording first art key")
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) ClearOrderFirstArtKeyWithTx(tx *gorm.DB, orderID uuid.UUID) error {
	err := tx.Model(&models.ShopOrder{}).
		Where("id = ?", orderID).
		Update("first_art_key_id", nil).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing first art key")
	}
	return nil
}

func (s *Store) AddOrderNoteWithTx(tx *gorm.DB, orderID uuid.UUID, body string) error {
	note := models.ShopOrderNote{ID: uuid.New(), OrderID: orderID, Body: body}
	if err := tx.Create(&note).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adding order note")
	}
	return nil
}
