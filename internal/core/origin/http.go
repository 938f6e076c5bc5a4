package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSourceSizeBytes is the default maximum original size if not configured.
const DefaultMaxSourceSizeBytes = 25 << 20

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	// BaseURL is the origin web server, e.g. https://static.example.com/assets.
	BaseURL      string
	Timeout      time.Duration
	MaxSizeBytes int64
	UserAgent    string
	// BreakerThreshold is the number of consecutive failures that opens the circuit.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Logger           *zap.Logger
	Transport        http.RoundTripper
}

// HTTPFetcher fetches originals from an origin web server by joining the asset
// path onto its base URL.
type HTTPFetcher struct {
	client       *http.Client
	base         *url.URL
	host         string
	maxSizeBytes int64
	userAgent    string
	breaker      *circuitBreaker
}

// NewHTTPFetcher validates cfg and returns a fetcher.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("origin base URL must be http or https, got %q", cfg.BaseURL)
	}
	host, err := HostFromURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultMaxSourceSizeBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Prism-Origin/1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		client:       &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		base:         base,
		host:         host,
		maxSizeBytes: cfg.MaxSizeBytes,
		userAgent:    cfg.UserAgent,
		breaker:      newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, logger),
	}, nil
}

// Host returns the origin's network location.
func (f *HTTPFetcher) Host() string { return f.host }

// Fetch retrieves base/path. Returns:
//   - ErrOriginNotFound on 404 or 410
//   - ErrOriginTimeout if the request times out or the context is cancelled
//   - ErrSourceTooLarge if the body exceeds the size limit
//   - ErrCircuitOpen while the origin is considered down
//   - ErrOriginFetchFailed for any other error
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) (*Source, error) {
	if err := f.breaker.canAttempt(f.host); err != nil {
		return nil, err
	}

	endpoint := *f.base
	endpoint.Path = f.base.Path + "/" + strings.TrimLeft(path, "/")
	endpoint.RawPath = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrOriginFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller gave up; says nothing about origin health.
			return nil, fmt.Errorf("%w: %v", ErrOriginTimeout, ctx.Err())
		}
		f.breaker.recordFailure(f.host, err)
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: request timed out", ErrOriginTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrOriginFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		f.breaker.recordSuccess(f.host)
		return f.readBody(resp)
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		f.breaker.recordSuccess(f.host)
		return nil, fmt.Errorf("%w: %s", ErrOriginNotFound, path)
	case resp.StatusCode >= 500:
		err := fmt.Errorf("%w: unexpected status code %d", ErrOriginFetchFailed, resp.StatusCode)
		f.breaker.recordFailure(f.host, err)
		return nil, err
	default:
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrOriginFetchFailed, resp.StatusCode)
	}
}

func (f *HTTPFetcher) readBody(resp *http.Response) (*Source, error) {
	if resp.ContentLength > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrSourceTooLarge, resp.ContentLength, f.maxSizeBytes)
	}
	// Read one extra byte to detect bodies over the limit when Content-Length is absent or wrong.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrOriginFetchFailed, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: response body exceeds maximum %d bytes",
			ErrSourceTooLarge, f.maxSizeBytes)
	}
	return &Source{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
