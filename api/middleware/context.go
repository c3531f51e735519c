package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/internal/tokens"
	"github.com/blakebenson/artkey-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxRole      contextKey = "actor_role"
	ctxEditToken contextKey = "artkey_token"
	ctxSessionID contextKey = "shop_session_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// EditTokenFromContext returns the X-ArtKey-Token header value, if any.
func EditTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxEditToken).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext returns the shopper session id, if any.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}

// CapabilitiesFromContext builds the caller capability set from the seeded
// auth context. A request without claims yields an anonymous visitor.
func CapabilitiesFromContext(ctx context.Context) tokens.Capabilities {
	caps := tokens.Capabilities{}
	if raw := UserIDFromContext(ctx); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			caps.UserID = &id
		}
	}
	caps.IsAdmin = RoleFromContext(ctx) == string(enums.UserRoleAdmin)
	return caps
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithEditToken injects the art key edit token into the context.
func WithEditToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxEditToken, token)
}

// WithSessionID injects the shopper session id into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionID, sessionID)
}
