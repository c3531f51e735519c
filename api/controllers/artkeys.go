package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/middleware"
	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/api/validators"
	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/internal/printcomp"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/types"
)

type artKeyResponse struct {
	ID               uuid.UUID          `json:"id"`
	Slug             string             `json:"slug"`
	Title            string             `json:"title"`
	Permalink        string             `json:"permalink"`
	Published        bool               `json:"published"`
	IsTemporary      bool               `json:"is_temporary"`
	IsAdminProtected bool               `json:"is_admin_protected"`
	EditToken        string             `json:"edit_token,omitempty"`
	Fields           types.ArtKeyFields `json:"fields"`
	CompositeMediaID *uuid.UUID         `json:"composite_media_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func newArtKeyResponse(key *models.ArtKey, permalinks artkeys.Permalinker, includeToken bool) artKeyResponse {
	resp := artKeyResponse{
		ID:               key.ID,
		Slug:             key.Slug,
		Title:            key.Title,
		Permalink:        permalinks.For(key.Slug),
		Published:        key.Published,
		IsTemporary:      key.IsTemporary,
		IsAdminProtected: key.IsAdminProtected,
		Fields:           key.Fields,
		CompositeMediaID: key.CompositeMediaID,
		CreatedAt:        key.CreatedAt,
		UpdatedAt:        key.UpdatedAt,
	}
	if includeToken {
		resp.EditToken = key.EditToken
	}
	return resp
}

// GetArtKey returns the full editable record for an authorized caller.
func GetArtKey(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "artkey service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		key, err := svc.GetForEdit(r.Context(), id, caps, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newArtKeyResponse(key, permalinks, true))
	}
}

// UpdateArtKeyFields replaces the page content record after normalization.
func UpdateArtKeyFields(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "artkey service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var fields types.ArtKeyFields
		if err := validators.DecodeJSONBody(r, &fields); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		key, err := svc.UpdateFields(r.Context(), id, caps, token, fields)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newArtKeyResponse(key, permalinks, true))
	}
}

// PublishArtKey flips the page live so its permalink resolves.
func PublishArtKey(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "artkey service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		key, err := svc.Publish(r.Context(), id, caps, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newArtKeyResponse(key, permalinks, true))
	}
}

type saveDesignRequest struct {
	PrintTemplate string    `json:"print_template" validate:"required"`
	DesignMediaID uuid.UUID `json:"user_design_image_id" validate:"required"`
}

type saveDesignResponse struct {
	Success           bool       `json:"success"`
	CompositeImageID  *uuid.UUID `json:"composite_image_id,omitempty"`
	CompositeImageURL string     `json:"composite_image_url,omitempty"`
}

// SaveDesign persists the print selections and composes eagerly. Composition
// failures leave the selections saved; the composite stays absent and is
// retried on the next order hook or explicit call.
func SaveDesign(svc artkeys.Service, prints *printcomp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || prints == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "print service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload saveDesignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		if _, err := svc.SetPrintSelections(r.Context(), id, caps, token, payload.PrintTemplate, payload.DesignMediaID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := saveDesignResponse{Success: true}
		image, err := prints.GetOrGenerate(r.Context(), id)
		if err != nil {
			logg.Warn(logg.WithArtKeyID(r.Context(), id.String()), "eager composite generation failed")
		} else {
			resp.CompositeImageID = &image.AssetID
			resp.CompositeImageURL = image.URL
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetPrintImage serves the print-ready composite, generating it when absent.
func GetPrintImage(svc artkeys.Service, prints *printcomp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || prints == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "print service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		if _, err := svc.GetForEdit(r.Context(), id, caps, token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		image, err := prints.GetOrGenerate(r.Context(), id)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no_image"))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"url":           image.URL,
			"attachment_id": image.AssetID,
			"entity_id":     image.ArtKeyID,
		})
	}
}
