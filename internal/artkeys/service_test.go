package artkeys

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blakebenson/artkey-backend/internal/tokens"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
	"github.com/blakebenson/artkey-backend/pkg/types"
)

func TestCreateProvisionalMintsDefaults(t *testing.T) {
	helper := newServiceTest(t)

	key, err := helper.svc.CreateProvisional(context.Background(), CreateInput{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("CreateProvisional: %v", err)
	}
	if !key.IsTemporary {
		t.Fatal("fresh key should be provisional")
	}
	if key.IsAdminProtected {
		t.Fatal("fresh key should not be protected")
	}
	if key.Published {
		t.Fatal("fresh key should be unpublished")
	}
	if !strings.HasPrefix(key.Slug, "ak-") {
		t.Fatalf("unexpected slug %q", key.Slug)
	}
	if len(key.EditToken) != 20 {
		t.Fatalf("unexpected token length %d", len(key.EditToken))
	}
	if key.Title != "Your Art Key" {
		t.Fatalf("unexpected default title %q", key.Title)
	}
	if key.Fields.Theme.Template != "classic" || key.Fields.Theme.BGColor != "#F6F7FB" {
		t.Fatalf("unexpected default theme %+v", key.Fields.Theme)
	}
	if !key.Fields.Features.ShowGuestbook || !key.Fields.Features.EnableGallery {
		t.Fatalf("guestbook and gallery should default on: %+v", key.Fields.Features)
	}
	if key.Fields.Features.AllowVidUploads {
		t.Fatal("video uploads should default off")
	}

	if len(helper.outbox.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(helper.outbox.events))
	}
	if helper.outbox.events[0].EventType != enums.EventArtKeyCreated {
		t.Fatalf("unexpected event type %s", helper.outbox.events[0].EventType)
	}
}

func TestUpdateFieldsRequiresAuthorization(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	_, err := helper.svc.UpdateFields(context.Background(), key.ID, tokens.Capabilities{}, "wrong-token", key.Fields)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	fields := key.Fields
	fields.Title = "Wedding of Sam and Riley"
	updated, err := helper.svc.UpdateFields(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, fields)
	if err != nil {
		t.Fatalf("UpdateFields with token: %v", err)
	}
	if updated.Title != "Wedding of Sam and Riley" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
}

func TestUpdateFieldsNormalizesAllowLists(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	fields := key.Fields
	fields.Theme.Template = "not-a-template"
	fields.Theme.BGColor = "red"
	fields.Features.Order = []string{"gallery", "bogus", "guestbook"}

	updated, err := helper.svc.UpdateFields(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, fields)
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if updated.Fields.Theme.Template != "classic" {
		t.Fatalf("template should fall back to default, got %q", updated.Fields.Theme.Template)
	}
	if updated.Fields.Theme.BGColor != "#F6F7FB" {
		t.Fatalf("bg color should fall back, got %q", updated.Fields.Theme.BGColor)
	}
	if got := updated.Fields.Features.Order; len(got) != 2 || got[0] != "gallery" || got[1] != "guestbook" {
		t.Fatalf("unexpected feature order %v", got)
	}
}

func TestUpdateFieldsPreservesPrintSelections(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	designID := helper.seedAsset(t, key.ID)
	if _, err := helper.svc.SetPrintSelections(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, "template_1", designID); err != nil {
		t.Fatalf("SetPrintSelections: %v", err)
	}

	fields := types.DefaultArtKeyFields()
	updated, err := helper.svc.UpdateFields(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, fields)
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if updated.Fields.PrintTemplate != "template_1" {
		t.Fatalf("print template lost: %q", updated.Fields.PrintTemplate)
	}
	if updated.Fields.DesignMediaID != designID {
		t.Fatalf("design media lost: %s", updated.Fields.DesignMediaID)
	}
}

func TestSetPrintSelectionsRejectsUnknownTemplate(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	_, err := helper.svc.SetPrintSelections(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, "template_99", uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetPrintSelectionsRejectsUnknownDesignAsset(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	_, err := helper.svc.SetPrintSelections(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, "template_1", uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing asset, got %v", err)
	}
	stored, err := helper.svc.GetByID(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Fields.DesignMediaID != uuid.Nil {
		t.Fatalf("rejected design id must not persist, got %s", stored.Fields.DesignMediaID)
	}
}

func TestSetPrintSelectionsRejectsCrossKeyDesignAsset(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)
	other := helper.seedKey(t)
	foreignDesign := helper.seedAsset(t, other.ID)

	_, err := helper.svc.SetPrintSelections(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken, "template_1", foreignDesign)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for foreign asset, got %v", err)
	}
	stored, err := helper.svc.GetByID(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Fields.DesignMediaID != uuid.Nil {
		t.Fatalf("foreign design id must not persist, got %s", stored.Fields.DesignMediaID)
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	first, err := helper.svc.Publish(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !first.Published {
		t.Fatal("key should be published")
	}
	eventsAfterFirst := len(helper.outbox.events)

	if _, err := helper.svc.Publish(context.Background(), key.ID, tokens.Capabilities{}, key.EditToken); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if len(helper.outbox.events) != eventsAfterFirst {
		t.Fatal("second publish should not emit another event")
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)

	if _, err := helper.svc.SetAdminProtected(context.Background(), key.ID, tokens.Capabilities{}, true); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}
	if err := helper.svc.Delete(context.Background(), key.ID, tokens.Capabilities{}); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}

	admin := tokens.Capabilities{IsAdmin: true}
	protected, err := helper.svc.SetAdminProtected(context.Background(), key.ID, admin, true)
	if err != nil {
		t.Fatalf("SetAdminProtected: %v", err)
	}
	if !protected.IsAdminProtected {
		t.Fatal("protection flag not set")
	}

	if err := helper.svc.Delete(context.Background(), key.ID, admin); err != nil {
		t.Fatalf("Delete as admin: %v", err)
	}
	if _, err := helper.svc.GetByID(context.Background(), key.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteCascadesMediaAndBlobs(t *testing.T) {
	helper := newServiceTest(t)
	key := helper.seedKey(t)
	assetID := helper.seedAsset(t, key.ID)

	if err := helper.svc.Delete(context.Background(), key.ID, tokens.Capabilities{IsAdmin: true}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(helper.media.cascaded) != 1 || helper.media.cascaded[0] != key.ID {
		t.Fatalf("expected media cascade for %s, got %v", key.ID, helper.media.cascaded)
	}
	if _, ok := helper.media.assets[assetID]; ok {
		t.Fatal("cascade must remove the key's media assets")
	}
}

type serviceTest struct {
	svc    Service
	repo   *fakeRepo
	media  *fakeMedia
	outbox *fakeOutbox
}

func newServiceTest(t *testing.T) *serviceTest {
	t.Helper()
	repo := newFakeRepo()
	media := newFakeMedia()
	ob := &fakeOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:           repo,
		Tx:             fakeTxRunner{},
		Outbox:         ob,
		Media:          media,
		PrintTemplates: []string{"template_1", "template_2", "template_3", "template_4", "template_5"},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceTest{svc: svc, repo: repo, media: media, outbox: ob}
}

func (h *serviceTest) seedKey(t *testing.T) *models.ArtKey {
	t.Helper()
	key, err := h.svc.CreateProvisional(context.Background(), CreateInput{})
	if err != nil {
		t.Fatalf("seed key: %v", err)
	}
	return key
}

func (h *serviceTest) seedAsset(t *testing.T, artKeyID uuid.UUID) uuid.UUID {
	t.Helper()
	asset := models.MediaAsset{ID: uuid.New(), ArtKeyID: artKeyID, Kind: enums.MediaKindImage, Approved: true}
	h.media.assets[asset.ID] = asset
	return asset.ID
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

type fakeMedia struct {
	assets   map[uuid.UUID]models.MediaAsset
	cascaded []uuid.UUID
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{assets: map[uuid.UUID]models.MediaAsset{}}
}

func (f *fakeMedia) Get(ctx context.Context, assetID uuid.UUID) (*models.MediaAsset, error) {
	asset, ok := f.assets[assetID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "media asset not found")
	}
	copy := asset
	return &copy, nil
}

func (f *fakeMedia) DeleteForArtKey(ctx context.Context, tx *gorm.DB, artKeyID uuid.UUID) error {
	f.cascaded = append(f.cascaded, artKeyID)
	for id, asset := range f.assets {
		if asset.ArtKeyID == artKeyID {
			delete(f.assets, id)
		}
	}
	return nil
}

type fakeRepo struct {
	rows map[uuid.UUID]models.ArtKey
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[uuid.UUID]models.ArtKey{}}
}

func (f *fakeRepo) CreateWithTx(tx *gorm.DB, key *models.ArtKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	f.rows[key.ID] = *key
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ArtKey, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copy := row
	return &copy, nil
}

func (f *fakeRepo) FindBySlug(ctx context.Context, slug string) (*models.ArtKey, error) {
	for _, row := range f.rows {
		if row.Slug == slug {
			copy := row
			return &copy, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.ArtKey, error) {
	return f.FindByID(context.Background(), id)
}

func (f *fakeRepo) SaveWithTx(tx *gorm.DB, key *models.ArtKey) error {
	f.rows[key.ID] = *key
	return nil
}

func (f *fakeRepo) DeleteWithTx(tx *gorm.DB, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeRepo) List(ctx context.Context, limit, offset int) ([]models.ArtKey, error) {
	out := make([]models.ArtKey, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}
