package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/pkg/config"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

const hookSecretHeader = "X-Hook-Secret"

// HookSecret guards the commerce webhook surface with a shared secret.
func HookSecret(cfg config.HooksConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimSpace(r.Header.Get(hookSecretHeader))
			if presented == "" || cfg.SharedSecret == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.SharedSecret)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid hook secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
