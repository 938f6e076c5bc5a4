package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"Prism/internal/core/origin"
	"Prism/internal/core/transform"
	"Prism/internal/core/variants"
	"Prism/internal/core/worker"
	"Prism/internal/logging"
)

// WriteError writes a standardized JSON error response, used by the admin surface.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   errorType,
		"message": message,
	}); err != nil {
		logging.DefaultLogger().Warn("failed to encode error response", zap.Error(err))
	}
}

// WriteJSON writes v as a JSON body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.DefaultLogger().Warn("failed to encode response", zap.Error(err))
	}
}

// WriteText writes a plain text response. Image endpoints answer errors in plain
// text since the expected body is binary image data.
func WriteText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

// WriteServiceError converts image pipeline errors to plain text HTTP responses.
// Origin and transform failures are all 5xx; the body names the failure.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())
	switch {
	case errors.Is(err, worker.ErrInvalidIdentity):
		WriteText(w, http.StatusBadRequest, "invalid variant identity")
	case errors.Is(err, worker.ErrTimeout), errors.Is(err, origin.ErrOriginTimeout):
		WriteText(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, origin.ErrCircuitOpen):
		WriteText(w, http.StatusServiceUnavailable, "origin unavailable")
	case errors.Is(err, origin.ErrOriginNotFound):
		WriteText(w, http.StatusInternalServerError, "original not found")
	case errors.Is(err, origin.ErrSourceTooLarge):
		WriteText(w, http.StatusInternalServerError, "original too large")
	case errors.Is(err, origin.ErrOriginFetchFailed):
		WriteText(w, http.StatusInternalServerError, "failed to fetch original")
	case errors.Is(err, transform.ErrUnsupportedFormat):
		WriteText(w, http.StatusInternalServerError, "unsupported image format")
	case errors.Is(err, transform.ErrResourceLimit):
		WriteText(w, http.StatusInternalServerError, "image exceeds resource limit")
	case errors.Is(err, transform.ErrTransformFailed):
		WriteText(w, http.StatusInternalServerError, "image transformation failed")
	case errors.Is(err, worker.ErrPayloadTooLarge):
		WriteText(w, http.StatusInternalServerError, "transformed image too large")
	case errors.Is(err, variants.ErrVariantStoreUnavailable):
		WriteText(w, http.StatusBadGateway, "variant store unavailable")
	default:
		logger.Error("[HANDLER] unhandled service error", zap.Error(err))
		WriteText(w, http.StatusInternalServerError, "internal server error")
	}
}
