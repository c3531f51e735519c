package checkoutgate

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/internal/sessionbinding"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
)

func TestResolveNoGateForEmptySession(t *testing.T) {
	gate := newGateTest(t, nil)

	decision, err := gate.Resolve(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Required {
		t.Fatal("no entry means no gate")
	}
	if decision.Entry != nil {
		t.Fatal("entry should be nil when not gated")
	}
}

func TestResolveReturnsEntry(t *testing.T) {
	entry := &sessionbinding.EditorEntry{ArtKeyID: uuid.New(), Slug: "ak-test", EditToken: "tok"}
	gate := newGateTest(t, entry)

	decision, err := gate.Resolve(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !decision.Required {
		t.Fatal("expected gate required")
	}
	if decision.Entry == nil || decision.Entry.ArtKeyID != entry.ArtKeyID {
		t.Fatalf("unexpected entry %+v", decision.Entry)
	}
}

func TestResolveRequiresSessionID(t *testing.T) {
	gate := newGateTest(t, nil)

	_, err := gate.Resolve(context.Background(), "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteMarksSession(t *testing.T) {
	resolver := &fakeResolver{}
	gate, err := NewGate(resolver)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	if err := gate.Complete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !resolver.completed["sess-1"] {
		t.Fatal("session should be marked complete")
	}
	if err := gate.Complete(context.Background(), ""); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func newGateTest(t *testing.T, entry *sessionbinding.EditorEntry) *Gate {
	t.Helper()
	gate, err := NewGate(&fakeResolver{entry: entry})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

type fakeResolver struct {
	entry     *sessionbinding.EditorEntry
	completed map[string]bool
}

func (f *fakeResolver) ResolveForCheckoutGate(ctx context.Context, sessionID string) (*sessionbinding.EditorEntry, error) {
	return f.entry, nil
}

func (f *fakeResolver) MarkComplete(ctx context.Context, sessionID string) error {
	if f.completed == nil {
		f.completed = map[string]bool{}
	}
	f.completed[sessionID] = true
	return nil
}
