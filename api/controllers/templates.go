package controllers

import (
	"net/http"

	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/internal/printcomp"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

// ListTemplates exposes the fixed print template registry.
func ListTemplates(svc *printcomp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "print service unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"templates": svc.Templates().List()})
	}
}
