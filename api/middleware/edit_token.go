package middleware

import (
	"context"
	"net/http"
	"strings"
)

const editTokenHeader = "X-ArtKey-Token"

// EditToken copies the art key edit token header into the request context so
// controllers can pass it to the token authority alongside JWT capabilities.
func EditToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(editTokenHeader))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxEditToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
