// Package routes assembles the HTTP surfaces: the public image endpoint, the worker
// envelope, variant administration, probes and metrics.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	healthhandlers "Prism/internal/api/handlers/health"
	imagehandlers "Prism/internal/api/handlers/images"
	transformhandlers "Prism/internal/api/handlers/transform"
	varianthandlers "Prism/internal/api/handlers/variants"
	"Prism/internal/api/middleware"
	"Prism/internal/core/directives"
	"Prism/internal/metrics"
)

// Dependencies are the handlers and policies mounted by NewRouter. Nil handlers are
// not mounted. Transform and variant invalidation require Verifier; stored variant
// reads are always public.
type Dependencies struct {
	Images    *imagehandlers.Handler
	Transform *transformhandlers.Handler
	Variants  *varianthandlers.Handler
	Health    *healthhandlers.Handler

	Normalizer  directives.Normalizer
	RateLimiter *middleware.RateLimiter
	Verifier    middleware.Verifier
	Logger      *zap.Logger
}

// NewRouter builds the chi router wrapped in otel HTTP instrumentation.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)

	if deps.Images != nil {
		RegisterImageRoutes(r, deps.Images, deps.Normalizer, deps.RateLimiter)
	}
	if deps.Variants != nil {
		RegisterVariantRoutes(r, deps.Variants, deps.Verifier)
	}
	if deps.Verifier != nil {
		if deps.Transform != nil {
			RegisterTransformRoutes(r, deps.Transform, deps.Verifier)
		}
	} else if deps.Transform != nil || deps.Variants != nil {
		logger.Warn("no caller verifier configured; worker and admin routes are disabled")
	}

	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/ready", deps.Health.HandleReady)
	}
	r.Handle("/metrics", metrics.Handler())

	return otelhttp.NewHandler(r, "prism",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return "HTTP " + req.Method
		}),
	)
}
