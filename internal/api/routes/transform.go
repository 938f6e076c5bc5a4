package routes

import (
	"github.com/go-chi/chi/v5"

	transformhandlers "Prism/internal/api/handlers/transform"
	"Prism/internal/api/middleware"
)

// RegisterTransformRoutes registers the worker envelope.
//
// Route: /transform/{original-path}/{canonical-key}
//
// Every method is routed to the handler so that, once the caller is verified,
// unsupported methods answer 400 instead of 405. Unverified callers get 403.
func RegisterTransformRoutes(r chi.Router, handler *transformhandlers.Handler, verifier middleware.Verifier) {
	r.With(middleware.RequireVerified(verifier)).HandleFunc("/transform/*", handler.HandleTransform)
}
