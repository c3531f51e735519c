package sessionbinding

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
)

var errConflict = pkgerrors.New(pkgerrors.CodeConflict, "order item already bound")

func TestBindToCartLineUnflaggedProduct(t *testing.T) {
	helper := newManagerTest(t)
	product := helper.commerce.seedProduct(false)

	entry, err := helper.mgr.BindToCartLine(context.Background(), "sess-1", "line-a", product, 1)
	if err != nil {
		t.Fatalf("BindToCartLine: %v", err)
	}
	if entry != nil {
		t.Fatal("unflagged product must not mint an entity")
	}
	if len(helper.commerce.cartLines) != 1 {
		t.Fatal("cart mirror should still record the line")
	}
	if len(helper.repo.rows) != 0 {
		t.Fatal("no entity should exist")
	}
}

func TestBindToCartLineMintsFreshEntityEveryTime(t *testing.T) {
	helper := newManagerTest(t)
	product := helper.commerce.seedProduct(true)

	first, err := helper.mgr.BindToCartLine(context.Background(), "sess-1", "line-a", product, 1)
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}
	second, err := helper.mgr.BindToCartLine(context.Background(), "sess-1", "line-a", product, 1)
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("flagged product must return an editor entry")
	}
	if first.ArtKeyID == second.ArtKeyID {
		t.Fatal("each bind must mint a fresh entity")
	}
	if got := helper.sessions.entity["sess-1"]; got != second.ArtKeyID.String() {
		t.Fatalf("session should point at the latest entity, got %s", got)
	}
	if helper.sessions.complete["sess-1"] {
		t.Fatal("bind must clear the completion flag")
	}
}

func TestResolveForCheckoutGate(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()

	// empty cart: no gate
	entry, err := helper.mgr.ResolveForCheckoutGate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("resolve empty cart: %v", err)
	}
	if entry != nil {
		t.Fatal("no flagged line means no gate")
	}

	product := helper.commerce.seedProduct(true)
	if _, err := helper.mgr.BindToCartLine(ctx, "sess-1", "line-a", product, 1); err != nil {
		t.Fatalf("bind: %v", err)
	}

	first, err := helper.mgr.ResolveForCheckoutGate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first == nil {
		t.Fatal("expected a gate entry")
	}
	second, err := helper.mgr.ResolveForCheckoutGate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if second == nil || second.ArtKeyID != first.ArtKeyID {
		t.Fatal("gate resolution must be idempotent")
	}

	if err := helper.mgr.MarkComplete(ctx, "sess-1"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	entry, err = helper.mgr.ResolveForCheckoutGate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("resolve after complete: %v", err)
	}
	if entry != nil {
		t.Fatal("completed session must not be gated")
	}
}

func TestResolveForCheckoutGateRecoversStaleSession(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)
	if _, err := helper.mgr.BindToCartLine(ctx, "sess-1", "line-a", product, 1); err != nil {
		t.Fatalf("bind: %v", err)
	}

	// simulate the reaper removing the session-held entity
	staleID := uuid.MustParse(helper.sessions.entity["sess-1"])
	delete(helper.repo.rows, staleID)

	entry, err := helper.mgr.ResolveForCheckoutGate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entry == nil {
		t.Fatal("gate should mint a replacement entity")
	}
	if entry.ArtKeyID == staleID {
		t.Fatal("stale id must not be returned")
	}
	if helper.sessions.entity["sess-1"] != entry.ArtKeyID.String() {
		t.Fatal("session should be repointed at the replacement")
	}
}

func TestAttachToOrderConsumesSessionExactlyOnce(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)

	entry, err := helper.mgr.BindToCartLine(ctx, "sess-1", "line-a", product, 1)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	order := helper.commerce.seedOrder(nil, []seedItem{
		{productID: product, sessionID: "sess-1"},
		{productID: product, sessionID: "sess-1"},
	})

	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("AttachToOrder: %v", err)
	}

	items := helper.commerce.orderItems(order)
	if items[0].ArtKeyID == nil || *items[0].ArtKeyID != entry.ArtKeyID {
		t.Fatal("first eligible item must consume the session entity")
	}
	if items[1].ArtKeyID == nil {
		t.Fatal("second item must get a fresh entity")
	}
	if *items[1].ArtKeyID == entry.ArtKeyID {
		t.Fatal("session entity must be consumed exactly once")
	}

	for _, item := range items {
		key := helper.repo.rows[*item.ArtKeyID]
		if key.IsTemporary {
			t.Fatal("attached keys must not stay temporary")
		}
		if key.OrderID == nil || *key.OrderID != order {
			t.Fatal("attached keys must reference the order")
		}
	}

	if first := helper.commerce.orders[order].FirstArtKeyID; first == nil || *first != entry.ArtKeyID {
		t.Fatal("order-level reference must record the first bound entity")
	}
	if len(helper.commerce.notes[order]) != 1 {
		t.Fatalf("expected exactly one order note, got %d", len(helper.commerce.notes[order]))
	}
	if _, ok := helper.sessions.entity["sess-1"]; ok {
		t.Fatal("consumed session must be cleared")
	}

	attached := helper.outbox.countByType(enums.EventArtKeyAttached)
	if attached != 2 {
		t.Fatalf("expected 2 attach events, got %d", attached)
	}
}

func TestAttachToOrderIsIdempotent(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)

	if _, err := helper.mgr.BindToCartLine(ctx, "sess-1", "line-a", product, 1); err != nil {
		t.Fatalf("bind: %v", err)
	}
	order := helper.commerce.seedOrder(nil, []seedItem{
		{productID: product, sessionID: "sess-1"},
	})

	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	boundID := *helper.commerce.orderItems(order)[0].ArtKeyID
	keyCount := len(helper.repo.rows)
	noteCount := len(helper.commerce.notes[order])
	events := helper.outbox.countByType(enums.EventArtKeyAttached)

	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if got := *helper.commerce.orderItems(order)[0].ArtKeyID; got != boundID {
		t.Fatal("re-invocation must not rebind the item")
	}
	if len(helper.repo.rows) != keyCount {
		t.Fatal("re-invocation must not mint entities")
	}
	if len(helper.commerce.notes[order]) != noteCount {
		t.Fatal("re-invocation must not add notes")
	}
	if helper.outbox.countByType(enums.EventArtKeyAttached) != events {
		t.Fatal("re-invocation must not emit events")
	}
}

func TestAttachToOrderRepairsDanglingItemBinding(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)

	deadID := uuid.New()
	order := helper.commerce.seedOrder(nil, []seedItem{
		{productID: product, artKeyID: &deadID},
	})

	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("first attach: %v", err)
	}

	item := helper.commerce.orderItems(order)[0]
	if item.ArtKeyID == nil {
		t.Fatal("item must be rebound after the stale reference is cleared")
	}
	if *item.ArtKeyID == deadID {
		t.Fatal("item must not keep referencing the deleted key")
	}
	if _, ok := helper.repo.rows[*item.ArtKeyID]; !ok {
		t.Fatal("item must point at a live replacement key")
	}
	if len(helper.repo.rows) != 1 {
		t.Fatalf("expected exactly one replacement key, got %d", len(helper.repo.rows))
	}

	boundID := *item.ArtKeyID
	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if got := *helper.commerce.orderItems(order)[0].ArtKeyID; got != boundID {
		t.Fatal("re-invocation must keep the repaired binding")
	}
	if len(helper.repo.rows) != 1 {
		t.Fatalf("re-invocation must not mint entities, got %d rows", len(helper.repo.rows))
	}
	for id, key := range helper.repo.rows {
		if id != boundID {
			t.Fatalf("unexpected orphan key %s", id)
		}
		if key.IsTemporary {
			t.Fatal("bound replacement must not stay temporary")
		}
	}
}

func TestAttachToOrderDiscardsMintOnBindConflict(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)

	order := helper.commerce.seedOrder(nil, []seedItem{
		{productID: product},
	})
	itemID := helper.commerce.orderItems(order)[0].ID
	helper.commerce.bindConflicts[itemID] = true

	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("AttachToOrder: %v", err)
	}
	if len(helper.repo.rows) != 0 {
		t.Fatalf("conflicted bind must not leave attached rows, got %d", len(helper.repo.rows))
	}
	if helper.outbox.countByType(enums.EventArtKeyAttached) != 0 {
		t.Fatal("conflicted bind must not emit attach events")
	}
}

func TestAttachToOrderAdoptsOrderUser(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)

	if _, err := helper.mgr.BindToCartLine(ctx, "sess-1", "line-a", product, 1); err != nil {
		t.Fatalf("bind: %v", err)
	}
	userID := uuid.New()
	order := helper.commerce.seedOrder(&userID, []seedItem{
		{productID: product, sessionID: "sess-1"},
	})

	if err := helper.mgr.AttachToOrder(ctx, order); err != nil {
		t.Fatalf("AttachToOrder: %v", err)
	}
	item := helper.commerce.orderItems(order)[0]
	key := helper.repo.rows[*item.ArtKeyID]
	if key.OwnerUserID == nil || *key.OwnerUserID != userID {
		t.Fatal("attached key should adopt the order's user as owner")
	}
}

func TestReleaseForOrderSparesProtectedEntities(t *testing.T) {
	helper := newManagerTest(t)
	ctx := context.Background()
	product := helper.commerce.seedProduct(true)

	boundA := helper.seedAttachedKey(t, false)
	boundB := helper.seedAttachedKey(t, false)
	legacy := helper.seedAttachedKey(t, true)

	order := helper.commerce.seedOrder(nil, []seedItem{
		{productID: product, artKeyID: &boundA},
		{productID: product, artKeyID: &boundB},
	})
	helper.commerce.orders[order].FirstArtKeyID = &legacy

	if err := helper.mgr.ReleaseForOrder(ctx, order); err != nil {
		t.Fatalf("ReleaseForOrder: %v", err)
	}

	if _, ok := helper.repo.rows[boundA]; ok {
		t.Fatal("unprotected entity A should be deleted")
	}
	if _, ok := helper.repo.rows[boundB]; ok {
		t.Fatal("unprotected entity B should be deleted")
	}
	if _, ok := helper.repo.rows[legacy]; !ok {
		t.Fatal("admin-protected entity must survive release")
	}
	if helper.repo.rows[legacy].OrderID != nil {
		t.Fatal("protected entity must lose its order reference")
	}

	items := helper.commerce.orderItems(order)
	if items[0].ArtKeyID != nil || items[1].ArtKeyID != nil {
		t.Fatal("item bindings must be cleared")
	}
	if helper.commerce.orders[order].FirstArtKeyID != nil {
		t.Fatal("order-level reference must be cleared")
	}

	if len(helper.media.cascaded) != 2 {
		t.Fatalf("expected media cascade for both deleted entities, got %v", helper.media.cascaded)
	}
	released := helper.outbox.countByType(enums.EventArtKeyReleased)
	if released != 3 {
		t.Fatalf("expected 3 release events, got %d", released)
	}
}

type managerTest struct {
	mgr      *Manager
	repo     *fakeKeyRepo
	commerce *fakeCommerce
	sessions *fakeSessions
	media    *fakeCascader
	outbox   *fakeOutbox
}

func newManagerTest(t *testing.T) *managerTest {
	t.Helper()
	repo := newFakeKeyRepo()
	commerce := newFakeCommerce()
	sessions := newFakeSessions()
	media := &fakeCascader{}
	ob := &fakeOutbox{}
	mgr, err := NewManager(ManagerParams{
		Repo:       repo,
		Commerce:   commerce,
		Sessions:   sessions,
		Media:      media,
		Tx:         fakeTxRunner{},
		Outbox:     ob,
		Logger:     logger.New(logger.Options{ServiceName: "binding-test", Level: zerolog.ErrorLevel, Output: io.Discard}),
		Permalinks: artkeys.NewPermalinker("https://artkeys.example.com"),
		SessionTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &managerTest{mgr: mgr, repo: repo, commerce: commerce, sessions: sessions, media: media, outbox: ob}
}

func (h *managerTest) seedAttachedKey(t *testing.T, protected bool) uuid.UUID {
	t.Helper()
	key, err := artkeys.NewProvisional(nil, "")
	if err != nil {
		t.Fatalf("mint key: %v", err)
	}
	key.IsTemporary = false
	key.IsAdminProtected = protected
	orderRef := uuid.New()
	key.OrderID = &orderRef
	h.repo.rows[key.ID] = *key
	return key.ID
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) countByType(eventType enums.OutboxEventType) int {
	n := 0
	for _, event := range f.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeSessions struct {
	entity   map[string]string
	complete map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{entity: map[string]string{}, complete: map[string]bool{}}
}

func (f *fakeSessions) StoreSessionEntity(ctx context.Context, sessionID, artKeyID string, ttl time.Duration) error {
	f.entity[sessionID] = artKeyID
	return nil
}

func (f *fakeSessions) GetSessionEntity(ctx context.Context, sessionID string) (string, error) {
	id, ok := f.entity[sessionID]
	if !ok {
		return "", goredis.Nil
	}
	return id, nil
}

func (f *fakeSessions) ClearSession(ctx context.Context, sessionID string) error {
	delete(f.entity, sessionID)
	delete(f.complete, sessionID)
	return nil
}

func (f *fakeSessions) ClearSessionComplete(ctx context.Context, sessionID string) error {
	delete(f.complete, sessionID)
	return nil
}

func (f *fakeSessions) MarkSessionComplete(ctx context.Context, sessionID string, ttl time.Duration) error {
	f.complete[sessionID] = true
	return nil
}

func (f *fakeSessions) IsSessionComplete(ctx context.Context, sessionID string) (bool, error) {
	return f.complete[sessionID], nil
}

type fakeCascader struct {
	cascaded []uuid.UUID
}

func (f *fakeCascader) DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error {
	f.cascaded = append(f.cascaded, artKeyID)
	return nil
}

type fakeKeyRepo struct {
	rows map[uuid.UUID]models.ArtKey
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{rows: map[uuid.UUID]models.ArtKey{}}
}

func (f *fakeKeyRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copy := row
	return &copy, nil
}

func (f *fakeKeyRepo) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error) {
	return f.FindByID(context.Background(), id)
}

func (f *fakeKeyRepo) CreateWithTx(tx *gorm.DB, key *models.ArtKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	f.rows[key.ID] = *key
	return nil
}

func (f *fakeKeyRepo) SaveWithTx(tx *gorm.DB, key *models.ArtKey) error {
	f.rows[key.ID] = *key
	return nil
}

func (f *fakeKeyRepo) DeleteWithTx(tx *gorm.DB, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

type seedItem struct {
	productID uuid.UUID
	sessionID string
	artKeyID  *uuid.UUID
}

type fakeCommerce struct {
	products      map[uuid.UUID]bool
	cartLines     map[string]*models.CartLine
	orders        map[uuid.UUID]*models.ShopOrder
	notes         map[uuid.UUID][]string
	bindConflicts map[uuid.UUID]bool
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		products:      map[uuid.UUID]bool{},
		cartLines:     map[string]*models.CartLine{},
		orders:        map[uuid.UUID]*models.ShopOrder{},
		notes:         map[uuid.UUID][]string{},
		bindConflicts: map[uuid.UUID]bool{},
	}
}

func (f *fakeCommerce) seedProduct(flagged bool) uuid.UUID {
	id := uuid.New()
	f.products[id] = flagged
	return id
}

func (f *fakeCommerce) seedOrder(userID *uuid.UUID, items []seedItem) uuid.UUID {
	order := &models.ShopOrder{ID: uuid.New(), UserID: userID, Status: enums.OrderStatusConfirmed}
	for _, item := range items {
		var sessionID *string
		if item.sessionID != "" {
			sid := item.sessionID
			sessionID = &sid
		}
		order.Items = append(order.Items, models.ShopOrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.productID,
			Quantity:  1,
			SessionID: sessionID,
			ArtKeyID:  item.artKeyID,
		})
	}
	f.orders[order.ID] = order
	return order.ID
}

func (f *fakeCommerce) orderItems(orderID uuid.UUID) []models.ShopOrderItem {
	return f.orders[orderID].Items
}

func (f *fakeCommerce) IsArtKeyProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	return f.products[productID], nil
}

func (f *fakeCommerce) UpsertCartLine(ctx context.Context, sessionID, lineKey string, productID uuid.UUID, quantity int) (*models.CartLine, error) {
	mapKey := sessionID + "/" + lineKey
	if line, ok := f.cartLines[mapKey]; ok {
		line.ProductID = productID
		line.Quantity = quantity
		return line, nil
	}
	line := &models.CartLine{ID: uuid.New(), SessionID: sessionID, LineKey: lineKey, ProductID: productID, Quantity: quantity}
	f.cartLines[mapKey] = line
	return line, nil
}

func (f *fakeCommerce) SetCartLineArtKey(ctx context.Context, sessionID, lineKey string, artKeyID uuid.UUID) error {
	if line, ok := f.cartLines[sessionID+"/"+lineKey]; ok {
		line.ArtKeyID = &artKeyID
	}
	return nil
}

func (f *fakeCommerce) HasFlaggedCartLine(ctx context.Context, sessionID string) (bool, error) {
	for _, line := range f.cartLines {
		if line.SessionID == sessionID && f.products[line.ProductID] {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCommerce) ClearCartLines(ctx context.Context, sessionID string) error {
	for mapKey, line := range f.cartLines {
		if line.SessionID == sessionID {
			delete(f.cartLines, mapKey)
		}
	}
	return nil
}

func (f *fakeCommerce) FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.ShopOrder, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copy := *order
	copy.Items = append([]models.ShopOrderItem(nil), order.Items...)
	return &copy, nil
}

func (f *fakeCommerce) SetItemArtKeyWithTx(tx *gorm.DB, itemID, artKeyID uuid.UUID) error {
	for _, order := range f.orders {
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				if order.Items[i].ArtKeyID != nil || f.bindConflicts[itemID] {
					return errConflict
				}
				order.Items[i].ArtKeyID = &artKeyID
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeCommerce) ClearItemArtKeyWithTx(tx *gorm.DB, itemID uuid.UUID) error {
	for _, order := range f.orders {
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				order.Items[i].ArtKeyID = nil
				return nil
			}
		}
	}
	return nil
}

func (f *fakeCommerce) SetOrderFirstArtKeyWithTx(tx *gorm.DB, orderID, artKeyID uuid.UUID) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if order.FirstArtKeyID != nil {
		return false, nil
	}
	order.FirstArtKeyID = &artKeyID
	return true, nil
}

func (f *fakeCommerce) ClearOrderFirstArtKeyWithTx(tx *gorm.DB, orderID uuid.UUID) error {
	if order, ok := f.orders[orderID]; ok {
		order.FirstArtKeyID = nil
	}
	return nil
}

func (f *fakeCommerce) AddOrderNoteWithTx(tx *gorm.DB, orderID uuid.UUID, body string) error {
	f.notes[orderID] = append(f.notes[orderID], body)
	return nil
}
