package routes

import (
	"github.com/go-chi/chi/v5"

	varianthandlers "Prism/internal/api/handlers/variants"
	"Prism/internal/api/middleware"
)

// RegisterVariantRoutes registers stored variant reads and, when verifier is set,
// bulk invalidation.
//
// Routes:
//
//	GET|HEAD /variants/{original-path}/{key}
//	DELETE   /variants/{original-path}
func RegisterVariantRoutes(r chi.Router, handler *varianthandlers.Handler, verifier middleware.Verifier) {
	r.Get("/variants/*", handler.HandleGet)
	r.Head("/variants/*", handler.HandleGet)
	if verifier != nil {
		r.With(middleware.RequireVerified(verifier)).Delete("/variants/*", handler.HandleInvalidate)
	}
}
