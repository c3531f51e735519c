package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/middleware"
	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/api/validators"
	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/internal/printcomp"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

type adminCreateArtKeyRequest struct {
	Title   string     `json:"title" validate:"required,min=1,max=200"`
	OwnerID *uuid.UUID `json:"owner_id"`
}

// AdminCreateArtKey mints an admin-protected key outside the purchase flow.
// Protected keys never expire and survive order cancellation.
func AdminCreateArtKey(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "artkey service unavailable"))
			return
		}
		var req adminCreateArtKeyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		key, err := svc.CreateProvisional(r.Context(), artkeys.CreateInput{
			OwnerID: req.OwnerID,
			Title:   validators.SanitizeString(req.Title, 200),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err = svc.SetAdminProtected(r.Context(), key.ID, caps, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newArtKeyResponse(key, permalinks, true))
	}
}

// AdminListArtKeys pages through every key, provisional or attached.
func AdminListArtKeys(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "artkey service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		keys, err := svc.List(r.Context(), caps, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]artKeyResponse, 0, len(keys))
		for i := range keys {
			out = append(out, newArtKeyResponse(&keys[i], permalinks, true))
		}
		responses.WriteSuccess(w, map[string]any{"artkeys": out, "limit": limit, "offset": offset})
	}
}

type adminProtectRequest struct {
	Protected *bool `json:"protected" validate:"required"`
}

// AdminProtectArtKey toggles the immunity flag that shields a key from the
// retention reaper and order-release cleanup.
func AdminProtectArtKey(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
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
		var req adminProtectRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		key, err := svc.SetAdminProtected(r.Context(), id, caps, *req.Protected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newArtKeyResponse(key, permalinks, true))
	}
}

type adminAssignOwnerRequest struct {
	OwnerID uuid.UUID `json:"owner_id" validate:"required"`
}

// AdminAssignOwner hands a key to a registered account.
func AdminAssignOwner(svc artkeys.Service, permalinks artkeys.Permalinker, logg *logger.Logger) http.HandlerFunc {
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
		var req adminAssignOwnerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		key, err := svc.AssignOwner(r.Context(), id, caps, req.OwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newArtKeyResponse(key, permalinks, true))
	}
}

// AdminDeleteArtKey removes a key and its media regardless of state.
func AdminDeleteArtKey(svc artkeys.Service, logg *logger.Logger) http.HandlerFunc {
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
		if err := svc.Delete(r.Context(), id, caps); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// AdminComposeArtKey forces a fresh print composite, used to retry a failed
// post-order composition.
func AdminComposeArtKey(prints *printcomp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if prints == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "print service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asset, err := prints.Compose(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"composite_image_id": asset.ID})
	}
}
