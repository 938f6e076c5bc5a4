// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"Prism/internal/api/handlers"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Handler serves /health and /ready.
type Handler struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHandler returns a handler running checks on readiness probes.
func NewHandler(checks map[string]Check) *Handler {
	return &Handler{checks: checks, timeout: 2 * time.Second}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleReady runs every check and reports 503 if any fails.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	handlers.WriteJSON(w, status, map[string]any{"checks": results})
}
