// Package variants serves stored variants by identity and the admin surface for bulk
// variant invalidation.
package variants

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Prism/internal/api/handlers"
	"Prism/internal/core/directives"
	"Prism/internal/core/variants"
	"Prism/internal/logging"
)

// Store reads stored variants and removes every stored and edge-cached variant of an
// original.
type Store interface {
	Get(ctx context.Context, originalPath, key string) (*variants.Variant, error)
	Invalidate(ctx context.Context, originalPath string) (int, error)
}

// Handler handles GET and DELETE /variants/*.
type Handler struct {
	store Store
}

// NewHandler creates a new variants handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// HandleGet serves the stored variant /variants/{original-path}/{key}. It is the
// redirect target for oversized results when no public bucket URL is configured.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	originalPath, key, err := directives.SplitIdentity(chi.URLParam(r, "*"))
	if err != nil {
		handlers.WriteText(w, http.StatusBadRequest, "invalid variant identity")
		return
	}

	v, err := h.store.Get(r.Context(), originalPath, key)
	if err != nil {
		switch {
		case errors.Is(err, variants.ErrVariantNotFound):
			handlers.WriteText(w, http.StatusNotFound, "Not Found")
		case errors.Is(err, variants.ErrVariantStoreUnavailable):
			logging.FromContext(r.Context()).Warn("[VARIANTS] store read failed",
				zap.String("original_path", originalPath),
				zap.String("key", key),
				zap.Error(err),
			)
			handlers.WriteText(w, http.StatusBadGateway, "variant store unavailable")
		default:
			logging.FromContext(r.Context()).Error("[VARIANTS] read failed", zap.Error(err))
			handlers.WriteText(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	handlers.WriteImage(w, r, handlers.Image{
		Data:         v.Data,
		ContentType:  v.ContentType,
		CacheControl: v.CacheControl,
		LastModified: v.LastModified,
		Tier:         variants.TierName,
	})
}

// InvalidateResponse is the body of a successful invalidation.
type InvalidateResponse struct {
	OriginalPath string `json:"originalPath"`
	Deleted      int    `json:"deleted"`
}

// HandleInvalidate deletes all variants of /variants/{original-path}.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	originalPath := chi.URLParam(r, "*")
	removed, err := h.store.Invalidate(r.Context(), originalPath)
	if err != nil {
		switch {
		case errors.Is(err, variants.ErrInvalidOriginalPath):
			handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "original path is required")
		case errors.Is(err, variants.ErrEdgeInvalidation):
			logging.FromContext(r.Context()).Warn("[VARIANTS] edge invalidation failed after store delete",
				zap.String("original_path", originalPath),
				zap.Int("deleted", removed),
				zap.Error(err),
			)
			handlers.WriteError(w, http.StatusBadGateway, "EdgeInvalidationFailed", "variants deleted but edge purge failed")
		case errors.Is(err, variants.ErrVariantStoreUnavailable):
			handlers.WriteError(w, http.StatusBadGateway, "StoreUnavailable", "variant store unavailable")
		default:
			logging.FromContext(r.Context()).Error("[VARIANTS] invalidation failed", zap.Error(err))
			handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "invalidation failed")
		}
		return
	}

	handlers.WriteJSON(w, http.StatusOK, InvalidateResponse{OriginalPath: originalPath, Deleted: removed})
}
