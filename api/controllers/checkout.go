package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/middleware"
	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/internal/checkoutgate"
	"github.com/blakebenson/artkey-backend/pkg/config"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

type checkoutGateResponse struct {
	GateRequired bool       `json:"gate_required"`
	ArtKeyID     *uuid.UUID `json:"artkey_id,omitempty"`
	EditorURL    string     `json:"editor_url,omitempty"`
}

func editorURL(site config.SiteConfig, slug, editToken string) string {
	base := strings.TrimRight(site.PublicBaseURL, "/")
	path := "/" + strings.Trim(site.EditorPath, "/")
	return base + path + "/" + slug + "?token=" + url.QueryEscape(editToken)
}

// CheckoutGate tells the storefront whether the current cart session still
// owes an editor visit before checkout may proceed.
func CheckoutGate(gate *checkoutgate.Gate, site config.SiteConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout gate unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())

		decision, err := gate.Resolve(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := checkoutGateResponse{GateRequired: decision.Required}
		if decision.Entry != nil {
			id := decision.Entry.ArtKeyID
			resp.ArtKeyID = &id
			resp.EditorURL = editorURL(site, decision.Entry.Slug, decision.Entry.EditToken)
		}
		responses.WriteSuccess(w, resp)
	}
}

// CheckoutComplete records that the shopper finished the editor detour so the
// gate stops redirecting this session.
func CheckoutComplete(gate *checkoutgate.Gate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout gate unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())

		if err := gate.Complete(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"completed": true})
	}
}
