package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"Prism/internal/logging"
)

// CacheStatusHeader reports which tier served an image: edge, store or miss.
const CacheStatusHeader = "X-Prism-Cache"

// Image is a response body with its content metadata.
type Image struct {
	Data         []byte
	ContentType  string
	CacheControl string
	LastModified time.Time
	// Location redirects instead of sending Data.
	Location string
	Tier     string
}

// WriteImage writes img as the response: a 302 to img.Location, or the body with its
// Content-Type and Cache-Control. HEAD requests get headers only.
func WriteImage(w http.ResponseWriter, r *http.Request, img Image) {
	h := w.Header()
	if img.Tier != "" {
		h.Set(CacheStatusHeader, img.Tier)
	}
	if img.CacheControl != "" {
		h.Set("Cache-Control", img.CacheControl)
	}

	if img.Location != "" {
		h.Set("Location", img.Location)
		w.WriteHeader(http.StatusFound)
		return
	}

	h.Set("Content-Type", img.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(img.Data)))
	if !img.LastModified.IsZero() {
		h.Set("Last-Modified", img.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(img.Data); err != nil {
		logging.FromContext(r.Context()).Warn("[HANDLER] failed to write image response",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
}
