package commerce

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
)

func TestIsArtKeyProduct(t *testing.T) {
	t.Parallel()

	store, db := newStoreTest(t)
	ctx := context.Background()

	flagged := seedProduct(t, db, true, true)
	plain := seedProduct(t, db, false, true)
	inactive := seedProduct(t, db, true, false)

	for _, tc := range []struct {
		name      string
		productID uuid.UUID
		want      bool
	}{
		{"flagged active", flagged.ID, true},
		{"unflagged", plain.ID, false},
		{"flagged inactive", inactive.ID, false},
		{"unknown", uuid.New(), false},
	} {
		got, err := store.IsArtKeyProduct(ctx, tc.productID)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestCartLineMirror(t *testing.T) {
	t.Parallel()

	store, db := newStoreTest(t)
	ctx := context.Background()
	product := seedProduct(t, db, true, true)

	line, err := store.UpsertCartLine(ctx, "sess-1", "line-a", product.ID, 1)
	if err != nil {
		t.Fatalf("UpsertCartLine: %v", err)
	}

	// re-delivery of the same line keeps the stored row
	again, err := store.UpsertCartLine(ctx, "sess-1", "line-a", product.ID, 2)
	if err != nil {
		t.Fatalf("UpsertCartLine again: %v", err)
	}
	if again.ID != line.ID {
		t.Fatalf("upsert minted a new row: %s vs %s", again.ID, line.ID)
	}
	if again.Quantity != 2 {
		t.Fatalf("quantity not updated: %d", again.Quantity)
	}

	artKeyID := uuid.New()
	if err := store.SetCartLineArtKey(ctx, "sess-1", "line-a", artKeyID); err != nil {
		t.Fatalf("SetCartLineArtKey: %v", err)
	}

	lines, err := store.ListCartLines(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListCartLines: %v", err)
	}
	if len(lines) != 1 || lines[0].ArtKeyID == nil || *lines[0].ArtKeyID != artKeyID {
		t.Fatalf("stashed art key missing: %+v", lines)
	}

	flagged, err := store.HasFlaggedCartLine(ctx, "sess-1")
	if err != nil {
		t.Fatalf("HasFlaggedCartLine: %v", err)
	}
	if !flagged {
		t.Fatal("expected flagged cart line")
	}

	if err := store.ClearCartLines(ctx, "sess-1"); err != nil {
		t.Fatalf("ClearCartLines: %v", err)
	}
	flagged, err = store.HasFlaggedCartLine(ctx, "sess-1")
	if err != nil {
		t.Fatalf("HasFlaggedCartLine after clear: %v", err)
	}
	if flagged {
		t.Fatal("cart should be empty after clear")
	}
}

func TestIngestOrderIdempotent(t *testing.T) {
	t.Parallel()

	store, db := newStoreTest(t)
	ctx := context.Background()
	product := seedProduct(t, db, true, true)
	sessionID := "sess-ingest"

	input := OrderInput{
		ExternalRef:   "shop-1001",
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
		Status:        enums.OrderStatusConfirmed,
		PlacedAt:      time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Items: []OrderItemInput{
			{ProductID: product.ID, Quantity: 1, SessionID: &sessionID},
		},
	}

	first, err := store.IngestOrder(ctx, input)
	if err != nil {
		t.Fatalf("IngestOrder: %v", err)
	}
	if len(first.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(first.Items))
	}

	second, err := store.IngestOrder(ctx, input)
	if err != nil {
		t.Fatalf("IngestOrder redelivery: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("redelivery must return the stored order")
	}

	var count int64
	if err := db.Model(&models.ShopOrder{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 order row, got %d", count)
	}
}

func TestItemBindingNeverReassigned(t *testing.T) {
	t.Parallel()

	store, db := newStoreTest(t)
	ctx := context.Background()
	product := seedProduct(t, db, true, true)

	order, err := store.IngestOrder(ctx, OrderInput{
		ExternalRef:   "shop-1002",
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
		Status:        enums.OrderStatusConfirmed,
		PlacedAt:      time.Now().UTC(),
		Items:         []OrderItemInput{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("IngestOrder: %v", err)
	}
	item := order.Items[0]

	firstKey := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		return store.SetItemArtKeyWithTx(tx, item.ID, firstKey)
	})
	if err != nil {
		t.Fatalf("SetItemArtKeyWithTx: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return store.SetItemArtKeyWithTx(tx, item.ID, uuid.New())
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on rebind, got %v", err)
	}

	reloaded, err := store.FindOrderWithItems(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindOrderWithItems: %v", err)
	}
	if reloaded.Items[0].ArtKeyID == nil || *reloaded.Items[0].ArtKeyID != firstKey {
		t.Fatalf("binding changed: %+v", reloaded.Items[0].ArtKeyID)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return store.ClearItemArtKeyWithTx(tx, item.ID)
	})
	if err != nil {
		t.Fatalf("ClearItemArtKeyWithTx: %v", err)
	}
	reloaded, err = store.FindOrderWithItems(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload after clear: %v", err)
	}
	if reloaded.Items[0].ArtKeyID != nil {
		t.Fatal("binding should be cleared")
	}
}

func TestOrderFirstArtKeyRecordedOnce(t *testing.T) {
	t.Parallel()

	store, db := newStoreTest(t)
	ctx := context.Background()
	product := seedProduct(t, db, true, true)

	order, err := store.IngestOrder(ctx, OrderInput{
		ExternalRef:   "shop-1003",
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
		Status:        enums.OrderStatusConfirmed,
		PlacedAt:      time.Now().UTC(),
		Items:         []OrderItemInput{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("IngestOrder: %v", err)
	}

	firstKey := uuid.New()
	var recorded bool
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		recorded, terr = store.SetOrderFirstArtKeyWithTx(tx, order.ID, firstKey)
		return terr
	})
	if err != nil {
		t.Fatalf("SetOrderFirstArtKeyWithTx: %v", err)
	}
	if !recorded {
		t.Fatal("first record should land")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		recorded, terr = store.SetOrderFirstArtKeyWithTx(tx, order.ID, uuid.New())
		return terr
	})
	if err != nil {
		t.Fatalf("second SetOrderFirstArtKeyWithTx: %v", err)
	}
	if recorded {
		t.Fatal("second record must be refused")
	}

	reloaded, err := store.FindOrderWithItems(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindOrderWithItems: %v", err)
	}
	if reloaded.FirstArtKeyID == nil || *reloaded.FirstArtKeyID != firstKey {
		t.Fatalf("order-level reference changed: %+v", reloaded.FirstArtKeyID)
	}
}

func newStoreTest(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := "file:commerce_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE shop_products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  is_art_key_product INTEGER NOT NULL DEFAULT 0,
  requires_print INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
)`,
		`CREATE TABLE shop_orders (
  id TEXT PRIMARY KEY,
  external_ref TEXT NOT NULL UNIQUE,
  customer_email TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  user_id TEXT,
  status TEXT NOT NULL,
  first_art_key_id TEXT,
  placed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
		`CREATE TABLE shop_order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  session_id TEXT,
  art_key_id TEXT,
  created_at DATETIME
)`,
		`CREATE TABLE shop_order_notes (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  body TEXT NOT NULL,
  created_at DATETIME
)`,
		`CREATE TABLE cart_lines (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  line_key TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  art_key_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (session_id, line_key)
)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	return NewStore(db), db
}

func seedProduct(t *testing.T, db *gorm.DB, flagged, active bool) *models.ShopProduct {
	t.Helper()
	product := models.ShopProduct{
		ID:              uuid.New(),
		SKU:             "sku-" + uuid.NewString()[:8],
		Title:           "Art Key Print",
		PriceCents:      4900,
		IsArtKeyProduct: flagged,
		IsActive:        active,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	// gorm substitutes the tag default for zero-value bools on Create, so
	// persist is_active explicitly when seeding inactive products.
	if err := db.Model(&product).Update("is_active", active).Error; err != nil {
		t.Fatalf("seed product active flag: %v", err)
	}
	return &product
}
