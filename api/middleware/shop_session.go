package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/blakebenson/artkey-backend/api/responses"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

const sessionIDHeader = "X-Session-ID"

// ShopSession requires the shopper session header and seeds it into context.
func ShopSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(sessionIDHeader))
			if sessionID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session header is required"))
				return
			}
			ctx := context.WithValue(r.Context(), ctxSessionID, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
