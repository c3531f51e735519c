package controllers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/middleware"
	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/api/validators"
	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/internal/media"
	"github.com/blakebenson/artkey-backend/pkg/db/models"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

type mediaAssetResponse struct {
	ID         uuid.UUID          `json:"id"`
	ArtKeyID   uuid.UUID          `json:"artkey_id"`
	Kind       enums.MediaKind    `json:"kind"`
	Origin     enums.UploadOrigin `json:"origin"`
	Role       enums.MediaRole    `json:"role,omitempty"`
	Approved   bool               `json:"approved"`
	FileName   string             `json:"file_name"`
	MimeType   string             `json:"mime_type"`
	SizeBytes  int64              `json:"size_bytes"`
	AuthorName *string            `json:"author_name,omitempty"`
	Caption    *string            `json:"caption,omitempty"`
	URL        string             `json:"url,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func newMediaAssetResponse(svc media.Service, asset *models.MediaAsset) mediaAssetResponse {
	resp := mediaAssetResponse{
		ID:         asset.ID,
		ArtKeyID:   asset.ArtKeyID,
		Kind:       asset.Kind,
		Origin:     asset.Origin,
		Role:       asset.Role,
		Approved:   asset.Approved,
		FileName:   asset.FileName,
		MimeType:   asset.MimeType,
		SizeBytes:  asset.SizeBytes,
		AuthorName: asset.AuthorName,
		Caption:    asset.Caption,
		CreatedAt:  asset.CreatedAt,
	}
	if url, err := svc.ResolveURL(asset); err == nil {
		resp.URL = url
	}
	return resp
}

func readUploadFile(r *http.Request, maxBytes int64) (data []byte, fileName, mimeType string, err error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file part is required")
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, "", "", pkgerrors.New(pkgerrors.CodeValidation, "file exceeds the upload size limit")
	}

	mimeType = header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, header.Filename, mimeType, nil
}

func optionalFormValue(r *http.Request, key string, maxLen int) *string {
	value := validators.SanitizeString(r.FormValue(key), maxLen)
	if value == "" {
		return nil
	}
	return &value
}

// UploadEditorMedia handles uploads from the editor surface. Editor uploads
// are auto-approved by the moderation ledger.
func UploadEditorMedia(svc media.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}
		artKeyID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		data, fileName, mimeType, err := readUploadFile(r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind := enums.MediaKindImage
		if raw := strings.TrimSpace(r.FormValue("kind")); raw != "" {
			kind, err = enums.ParseMediaKind(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid media kind"))
				return
			}
		}
		role := enums.MediaRoleNone
		if raw := strings.TrimSpace(r.FormValue("role")); raw != "" {
			role, err = enums.ParseMediaRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid media role"))
				return
			}
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		asset, err := svc.Upload(r.Context(), caps, token, media.UploadInput{
			ArtKeyID: artKeyID,
			Kind:     kind,
			Origin:   enums.UploadOriginEditor,
			Role:     role,
			FileName: fileName,
			MimeType: mimeType,
			Data:     data,
			Caption:  optionalFormValue(r, "caption", 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newMediaAssetResponse(svc, asset))
	}
}

// UploadGuestbookMedia handles anonymous visitor uploads. The entity's feature
// toggles gate the surface; visitor uploads are never auto-approved.
func UploadGuestbookMedia(svc media.Service, keys artkeys.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || keys == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}
		artKeyID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := keys.GetByID(r.Context(), artKeyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !key.Fields.Features.ShowGuestbook {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "guestbook uploads are disabled for this page"))
			return
		}

		data, fileName, mimeType, err := readUploadFile(r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind := enums.MediaKindImage
		if strings.HasPrefix(mimeType, "video/") {
			kind = enums.MediaKindVideo
		}
		if kind == enums.MediaKindImage && !key.Fields.Features.AllowImgUploads {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "image uploads are disabled for this page"))
			return
		}
		if kind == enums.MediaKindVideo && !key.Fields.Features.AllowVidUploads {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "video uploads are disabled for this page"))
			return
		}

		asset, err := svc.Upload(r.Context(), middleware.CapabilitiesFromContext(r.Context()), "", media.UploadInput{
			ArtKeyID:   artKeyID,
			Kind:       kind,
			Origin:     enums.UploadOriginVisitor,
			FileName:   fileName,
			MimeType:   mimeType,
			Data:       data,
			AuthorName: optionalFormValue(r, "author_name", 120),
			Caption:    optionalFormValue(r, "caption", 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newMediaAssetResponse(svc, asset))
	}
}

// ApproveMedia marks a pending visitor upload as visible.
func ApproveMedia(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}
		artKeyID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.ParsePathUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		asset, err := svc.Approve(r.Context(), artKeyID, assetID, caps, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMediaAssetResponse(svc, asset))
	}
}

// DeleteMedia removes an asset belonging to the key. A cross-key asset id is
// a silent no-op.
func DeleteMedia(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}
		artKeyID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.ParsePathUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caps := middleware.CapabilitiesFromContext(r.Context())
		token := middleware.EditTokenFromContext(r.Context())
		if err := svc.Delete(r.Context(), artKeyID, assetID, caps, token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// ListMedia returns the key's gallery-visible assets with optional filters.
func ListMedia(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}
		artKeyID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := media.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			kind, err := enums.ParseMediaKind(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid media kind"))
				return
			}
			filter.Kind = &kind
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("approved")); raw != "" {
			approved := raw == "true" || raw == "1"
			filter.Approved = &approved
		}

		assets, err := svc.List(r.Context(), artKeyID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]mediaAssetResponse, 0, len(assets))
		for i := range assets {
			out = append(out, newMediaAssetResponse(svc, &assets[i]))
		}
		responses.WriteSuccess(w, map[string]any{"media": out})
	}
}
