// Package images serves the public image surface: normalized requests resolved through
// the edge, variant store and worker tiers.
package images

import (
	"context"
	"net/http"

	"Prism/internal/api/handlers"
	"Prism/internal/api/middleware"
	"Prism/internal/core/failover"
)

// Resolver resolves a normalized request through the cache tiers.
type Resolver interface {
	Fetch(ctx context.Context, req failover.Request) (*failover.Response, error)
}

// Handler handles GET /img/*.
type Handler struct {
	resolver Resolver
}

// NewHandler creates a new image handler.
func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// HandleImage serves an image request. It must run behind middleware.Normalize,
// which supplies the canonical identity.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok || id.OriginalPath == "" {
		handlers.WriteText(w, http.StatusNotFound, "image not found")
		return
	}

	resp, err := h.resolver.Fetch(r.Context(), failover.Request{Identity: id})
	if err != nil {
		handlers.WriteServiceError(w, r, err)
		return
	}

	handlers.WriteImage(w, r, handlers.Image{
		Data:         resp.Data,
		ContentType:  resp.ContentType,
		CacheControl: resp.CacheControl,
		LastModified: resp.LastModified,
		Location:     resp.Location,
		Tier:         resp.Tier,
	})
}
