// Package transform serves the worker envelope: verified callers invoke the
// transformation worker directly with a canonical identity.
package transform

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"Prism/internal/api/handlers"
	"Prism/internal/core/worker"
)

// Service runs a transformation for a raw canonical identity.
type Service interface {
	Transform(ctx context.Context, identity string) (*worker.Result, error)
}

// Handler handles /transform/*.
type Handler struct {
	service Service
}

// NewHandler creates a new worker handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleTransform runs the worker for /transform/{original-path}/{key}. Only GET is
// supported; caller verification happens in middleware before this runs.
func (h *Handler) HandleTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		handlers.WriteText(w, http.StatusBadRequest, "unsupported method")
		return
	}

	res, err := h.service.Transform(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		handlers.WriteServiceError(w, r, err)
		return
	}

	handlers.WriteImage(w, r, handlers.Image{
		Data:         res.Data,
		ContentType:  res.ContentType,
		CacheControl: res.CacheControl,
		Location:     res.RedirectURL,
		Tier:         worker.TierName,
	})
}
