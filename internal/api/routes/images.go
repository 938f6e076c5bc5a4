package routes

import (
	"github.com/go-chi/chi/v5"

	imagehandlers "Prism/internal/api/handlers/images"
	"Prism/internal/api/middleware"
	"Prism/internal/core/directives"
)

// ImagePrefix is the public image surface.
const ImagePrefix = "/img"

// RegisterImageRoutes registers the public image endpoint on the router.
//
// Route: GET|HEAD /img/{original-path}?format=&quality=&width=&height=
//
// Requests are rewritten to their canonical identity before the handler runs, so
// equivalent queries resolve to one cached variant. limiter may be nil.
func RegisterImageRoutes(r chi.Router, handler *imagehandlers.Handler, n directives.Normalizer, limiter *middleware.RateLimiter) {
	r.Route(ImagePrefix, func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Use(middleware.Normalize(ImagePrefix, n))
		r.Get("/*", handler.HandleImage)
		r.Head("/*", handler.HandleImage)
	})
}
