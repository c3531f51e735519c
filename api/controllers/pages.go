package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/internal/media"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/types"
)

type publicPageResponse struct {
	ID     uuid.UUID            `json:"id"`
	Slug   string               `json:"slug"`
	Title  string               `json:"title"`
	Fields types.ArtKeyFields   `json:"fields"`
	Media  []mediaAssetResponse `json:"media"`
}

// GetPublicPage serves the published landing page a printed QR code resolves
// to. Unpublished and unknown slugs look identical to the visitor.
func GetPublicPage(keys artkeys.Service, mediaSvc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if keys == nil || mediaSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "page service unavailable"))
			return
		}
		slug := chi.URLParam(r, "slug")
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "slug is required"))
			return
		}

		key, err := keys.GetBySlug(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !key.Published {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "page not found"))
			return
		}

		approved := true
		assets, err := mediaSvc.List(r.Context(), key.ID, media.ListFilter{Approved: &approved})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := publicPageResponse{
			ID:     key.ID,
			Slug:   key.Slug,
			Title:  key.Title,
			Fields: key.Fields,
			Media:  make([]mediaAssetResponse, 0, len(assets)),
		}
		for i := range assets {
			resp.Media = append(resp.Media, newMediaAssetResponse(mediaSvc, &assets[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
