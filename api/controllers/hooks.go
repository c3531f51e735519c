package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/blakebenson/artkey-backend/api/responses"
	"github.com/blakebenson/artkey-backend/api/validators"
	"github.com/blakebenson/artkey-backend/internal/commerce"
	"github.com/blakebenson/artkey-backend/internal/printcomp"
	"github.com/blakebenson/artkey-backend/internal/sessionbinding"
	"github.com/blakebenson/artkey-backend/pkg/config"
	"github.com/blakebenson/artkey-backend/pkg/enums"
	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
	"github.com/blakebenson/artkey-backend/pkg/logger"
)

type lineAddedRequest struct {
	SessionID string    `json:"session_id" validate:"required"`
	LineKey   string    `json:"line_key" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type lineAddedResponse struct {
	GateRequired bool       `json:"gate_required"`
	ArtKeyID     *uuid.UUID `json:"artkey_id,omitempty"`
	EditorURL    string     `json:"editor_url,omitempty"`
}

// CommerceLineAdded handles the host shop's add-to-cart hook. A flagged
// product mints a provisional Art Key and hands back the editor entry.
func CommerceLineAdded(bindings *sessionbinding.Manager, site config.SiteConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bindings == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "binding manager unavailable"))
			return
		}
		var req lineAddedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := bindings.BindToCartLine(r.Context(), req.SessionID, req.LineKey, req.ProductID, req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := lineAddedResponse{GateRequired: entry != nil}
		if entry != nil {
			id := entry.ArtKeyID
			resp.ArtKeyID = &id
			resp.EditorURL = editorURL(site, entry.Slug, entry.EditToken)
		}
		responses.WriteSuccess(w, resp)
	}
}

type orderItemPayload struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
	SessionID *string    `json:"session_id"`
	ArtKeyID  *uuid.UUID `json:"artkey_id"`
}

type orderPlacedRequest struct {
	ExternalRef   string             `json:"external_ref" validate:"required"`
	CustomerEmail string             `json:"customer_email" validate:"omitempty,email"`
	CustomerName  string             `json:"customer_name"`
	UserID        *uuid.UUID         `json:"user_id"`
	Status        string             `json:"status" validate:"required"`
	PlacedAt      time.Time          `json:"placed_at"`
	Items         []orderItemPayload `json:"items" validate:"required,min=1,dive"`
}

// CommerceOrderPlaced ingests a host-shop order. A confirmed order consumes
// the session bindings of its flagged items immediately.
func CommerceOrderPlaced(store *commerce.Store, bindings *sessionbinding.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil || bindings == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commerce store unavailable"))
			return
		}
		var req orderPlacedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status"))
			return
		}
		placedAt := req.PlacedAt
		if placedAt.IsZero() {
			placedAt = time.Now().UTC()
		}

		input := commerce.OrderInput{
			ExternalRef:   req.ExternalRef,
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
			UserID:        req.UserID,
			Status:        status,
			PlacedAt:      placedAt,
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, commerce.OrderItemInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				SessionID: item.SessionID,
				ArtKeyID:  item.ArtKeyID,
			})
		}

		order, err := store.IngestOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if status == enums.OrderStatusConfirmed || status == enums.OrderStatusCompleted {
			if err := bindings.AttachToOrder(r.Context(), order.ID); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"order_id": order.ID})
	}
}

type orderRefRequest struct {
	ExternalRef string `json:"external_ref" validate:"required"`
}

// CommerceOrderCompleted finalizes an order: bindings are consumed if they
// were not already, and print composites are generated for items whose
// product ships a printed key.
func CommerceOrderCompleted(store *commerce.Store, bindings *sessionbinding.Manager, prints *printcomp.Service, printCfg config.PrintConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil || bindings == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commerce store unavailable"))
			return
		}
		var req orderRefRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := store.FindOrderByExternalRef(r.Context(), req.ExternalRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.UpdateOrderStatus(r.Context(), order.ID, enums.OrderStatusCompleted); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := bindings.AttachToOrder(r.Context(), order.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Attach may have just filled item bindings; reload before composing.
		order, err = store.FindOrderWithItems(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if prints != nil {
			for _, item := range order.Items {
				if item.ArtKeyID == nil {
					continue
				}
				product, err := store.FindProductByID(r.Context(), item.ProductID)
				if err != nil || !product.RequiresPrint {
					continue
				}
				artKeyID := *item.ArtKeyID
				go prints.ComposeAfterOrder(context.Background(), artKeyID, printCfg.ComposeTimeout)
			}
		}

		responses.WriteSuccess(w, map[string]any{"order_id": order.ID, "status": enums.OrderStatusCompleted})
	}
}

type orderTerminatedRequest struct {
	ExternalRef string `json:"external_ref" validate:"required"`
	Status      string `json:"status" validate:"required"`
}

// CommerceOrderTerminated handles cancellation, failure, and refund hooks.
// Bound entities are released; only admin-protected ones survive.
func CommerceOrderTerminated(store *commerce.Store, bindings *sessionbinding.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil || bindings == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commerce store unavailable"))
			return
		}
		var req orderTerminatedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil || !status.IsTerminalNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be cancelled, failed, or refunded"))
			return
		}

		order, err := store.FindOrderByExternalRef(r.Context(), req.ExternalRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.UpdateOrderStatus(r.Context(), order.ID, status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := bindings.ReleaseForOrder(r.Context(), order.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"order_id": order.ID, "status": status})
	}
}
