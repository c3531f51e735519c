package checkoutgate

import (
	"context"
	"fmt"

	"github.com/blakebenson/artkey-backend/internal/sessionbinding"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
)

type bindingResolver interface {
	ResolveForCheckoutGate(ctx context.Context, sessionID string) (*sessionbinding.EditorEntry, error)
	MarkComplete(ctx context.Context, sessionID string) error
}

// Decision is the gate verdict for one shopping session.
type Decision struct {
	Required bool
	Entry    *sessionbinding.EditorEntry
}

// Gate decides whether checkout must detour through the Art Key editor.
type Gate struct {
	bindings bindingResolver
}

// NewGate builds the checkout gate.
func NewGate(bindings bindingResolver) (*Gate, error) {
	if bindings == nil {
		return nil, fmt.Errorf("binding resolver required")
	}
	return &Gate{bindings: bindings}, nil
}

// Resolve returns the gate decision. A required gate carries the editor entry
// the storefront redirects to.
func (g *Gate) Resolve(ctx context.Context, sessionID string) (*Decision, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	entry, err := g.bindings.ResolveForCheckoutGate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &Decision{Required: false}, nil
	}
	return &Decision{Required: true, Entry: entry}, nil
}

// Complete records that the shopper finished the editor for this session.
func (g *Gate) Complete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	return g.bindings.MarkComplete(ctx, sessionID)
}
