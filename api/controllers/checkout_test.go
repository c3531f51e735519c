package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/middleware"
	"github.com/blakebenson/artkey-backend/internal/checkoutgate"
	"github.com/blakebenson/artkey-backend/internal/sessionbinding"
	"github.com/blakebenson/artkey-backend/pkg/config"
)

type fakeBindingResolver struct {
	entry      *sessionbinding.EditorEntry
	err        error
	completed  []string
	resolveErr error
}

func (f *fakeBindingResolver) ResolveForCheckoutGate(ctx context.Context, sessionID string) (*sessionbinding.EditorEntry, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.entry, f.err
}

func (f *fakeBindingResolver) MarkComplete(ctx context.Context, sessionID string) error {
	f.completed = append(f.completed, sessionID)
	return f.err
}

func testSite() config.SiteConfig {
	return config.SiteConfig{PublicBaseURL: "https://shop.example.com", EditorPath: "/artkey-editor"}
}

func TestCheckoutGateRequired(t *testing.T) {
	keyID := uuid.New()
	resolver := &fakeBindingResolver{
		entry: &sessionbinding.EditorEntry{ArtKeyID: keyID, Slug: "xyz123", EditToken: "tok&abc"},
	}
	gate, err := checkoutgate.NewGate(resolver)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/gate", nil)
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sess-1"))
	resp := httptest.NewRecorder()

	CheckoutGate(gate, testSite(), testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data checkoutGateResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.GateRequired {
		t.Fatal("expected gate to be required")
	}
	if envelope.Data.ArtKeyID == nil || *envelope.Data.ArtKeyID != keyID {
		t.Fatal("art key id missing from gate response")
	}
	want := "https://shop.example.com/artkey-editor/xyz123?token=tok%26abc"
	if envelope.Data.EditorURL != want {
		t.Fatalf("unexpected editor url %q", envelope.Data.EditorURL)
	}
}

func TestCheckoutGateNotRequired(t *testing.T) {
	gate, err := checkoutgate.NewGate(&fakeBindingResolver{})
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/gate", nil)
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sess-1"))
	resp := httptest.NewRecorder()

	CheckoutGate(gate, testSite(), testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data checkoutGateResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.GateRequired {
		t.Fatal("expected gate to pass")
	}
	if envelope.Data.EditorURL != "" {
		t.Fatalf("unexpected editor url %q", envelope.Data.EditorURL)
	}
}

func TestCheckoutGateMissingSession(t *testing.T) {
	gate, err := checkoutgate.NewGate(&fakeBindingResolver{})
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/gate", nil)
	resp := httptest.NewRecorder()

	CheckoutGate(gate, testSite(), testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutCompleteMarksSession(t *testing.T) {
	resolver := &fakeBindingResolver{}
	gate, err := checkoutgate.NewGate(resolver)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/complete", nil)
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sess-9"))
	resp := httptest.NewRecorder()

	CheckoutComplete(gate, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if len(resolver.completed) != 1 || resolver.completed[0] != "sess-9" {
		t.Fatalf("unexpected completions %v", resolver.completed)
	}
}
