// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tier lookup outcomes.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

var (
	// TierLookups counts failover-chain lookups by tier and outcome.
	TierLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_tier_lookups_total",
			Help: "Failover chain lookups by tier and outcome (hit, miss, error).",
		},
		[]string{"tier", "outcome"},
	)

	// Transforms counts worker invocations by result.
	Transforms = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_transforms_total",
			Help: "Transformation worker invocations by result.",
		},
		[]string{"result"},
	)

	// TransformSeconds observes worker latency (origin fetch + transform).
	TransformSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_transform_seconds",
			Help:    "Transformation worker latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"format"},
	)

	// VariantPersistFailures counts background variant writes that failed.
	VariantPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_variant_persist_failures_total",
			Help: "Variant cache writes that failed after the response was returned.",
		},
	)

	// VariantsInvalidated counts variant objects removed by bulk invalidation.
	VariantsInvalidated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_variants_invalidated_total",
			Help: "Variant objects deleted by prefix invalidation.",
		},
	)

	// RequestSeconds observes HTTP latency per route pattern.
	RequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_http_request_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			TierLookups,
			Transforms,
			TransformSeconds,
			VariantPersistFailures,
			VariantsInvalidated,
			RequestSeconds,
		)
	})
}

// Handler exposes the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request latency labelled by the chi route pattern, so
// per-image paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		RequestSeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
