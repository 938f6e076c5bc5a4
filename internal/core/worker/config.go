package worker

import (
	"errors"
	"fmt"
	"time"
)

// Defaults.
const (
	// DefaultCacheControl is one leap year (366 days).
	DefaultCacheControl = "public, max-age=31622400"
	// RedirectCacheControl is sent with the redirect to an oversized stored variant.
	RedirectCacheControl = "max-age=10,public"
	// DefaultMaxPayloadBytes matches the 6 MB response ceiling of common serverless runtimes.
	DefaultMaxPayloadBytes = 6_000_000
)

// Config validation errors
var (
	ErrInvalidTimeout         = errors.New("Timeout must be positive")
	ErrInvalidPersistTimeout  = errors.New("PersistTimeout must be positive")
	ErrInvalidMaxPayload      = errors.New("MaxPayloadBytes cannot be negative")
	ErrInvalidMaxDimension    = errors.New("MaxDimension cannot be negative")
	ErrInvalidMaxSourcePixels = errors.New("MaxSourcePixels cannot be negative")
	ErrMissingCacheControl    = errors.New("CacheControl is required")
)

// Config holds the transformation worker settings.
type Config struct {
	// Persist stores every produced variant in the variant cache.
	Persist bool

	// CacheControl is sent with, and stored alongside, every produced variant.
	CacheControl string

	// MaxPayloadBytes is the largest body returned inline. Larger outputs are stored and
	// redirected to when Persist is on, and fail otherwise. 0 disables the ceiling.
	MaxPayloadBytes int64

	// Timeout bounds one invocation (origin fetch + transform + oversized persist).
	Timeout time.Duration

	// PersistTimeout bounds the background variant write.
	PersistTimeout time.Duration

	// MaxDimension rejects width/height directives above it when re-validating. 0 = unbounded.
	MaxDimension int

	// MaxSourcePixels is the decode ceiling handed to the image processor.
	MaxSourcePixels int

	// Coalesce collapses concurrent invocations for the same identity into one.
	Coalesce bool
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeout, c.Timeout)
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidPersistTimeout, c.PersistTimeout)
	}
	if c.MaxPayloadBytes < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxPayload, c.MaxPayloadBytes)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxDimension, c.MaxDimension)
	}
	if c.MaxSourcePixels < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSourcePixels, c.MaxSourcePixels)
	}
	if c.CacheControl == "" {
		return ErrMissingCacheControl
	}
	return nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Persist:         true,
		CacheControl:    DefaultCacheControl,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		Timeout:         30 * time.Second,
		PersistTimeout:  30 * time.Second,
	}
}
