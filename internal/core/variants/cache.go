// Package variants is the persistent variant cache: transformed images keyed by
// {original-path}/{canonical-key} in an object store, with prefix invalidation per
// original asset.
package variants

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"Prism/internal/core/directives"
	"Prism/internal/logging"
	"Prism/internal/metrics"
	"Prism/internal/storage"
)

// DefaultRetention is how long a variant is kept when Config.Retention is unset.
const DefaultRetention = 90 * 24 * time.Hour

// DefaultLocationPrefix is the route serving stored variants when no BaseURL is set.
const DefaultLocationPrefix = "/variants"

// Invalidator purges edge cache entries matching a path pattern ("images/cat.jpg*").
type Invalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// Variant is a stored transformation result.
type Variant struct {
	OriginalPath string
	Key          string
	Data         []byte
	ContentType  string
	CacheControl string
	LastModified time.Time
}

// Config configures a Cache.
type Config struct {
	Store storage.Store
	// Invalidator receives the edge pattern on Invalidate. Optional.
	Invalidator Invalidator
	// BaseURL is the public URL of the variant bucket, used by Location.
	// Empty points Location at DefaultLocationPrefix on this server.
	BaseURL string
	// Retention is passed as the object TTL to backends with native expiry.
	Retention time.Duration
	Logger    *zap.Logger
}

// Cache reads and writes variants through a storage.Store.
type Cache struct {
	store       storage.Store
	invalidator Invalidator
	baseURL     string
	retention   time.Duration
	logger      *zap.Logger
}

// NewCache validates cfg and returns a Cache.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocationPrefix
	}
	return &Cache{
		store:       cfg.Store,
		invalidator: cfg.Invalidator,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		retention:   cfg.Retention,
		logger:      cfg.Logger,
	}, nil
}

// ObjectKey returns the store key for a variant.
func ObjectKey(originalPath, key string) string {
	return originalPath + "/" + key
}

// Get returns the stored variant or ErrVariantNotFound.
func (c *Cache) Get(ctx context.Context, originalPath, key string) (*Variant, error) {
	obj, err := c.store.Get(ctx, ObjectKey(originalPath, key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrVariantStoreUnavailable, err)
	}
	return &Variant{
		OriginalPath: originalPath,
		Key:          key,
		Data:         obj.Data,
		ContentType:  obj.ContentType,
		CacheControl: obj.CacheControl,
		LastModified: obj.LastModified,
	}, nil
}

// Put stores a variant. Concurrent puts of the same key are last-writer-wins.
func (c *Cache) Put(ctx context.Context, originalPath, key string, data []byte, contentType, cacheControl string) error {
	err := c.store.Put(ctx, ObjectKey(originalPath, key), data, storage.PutOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
		TTL:          c.retention,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVariantStoreUnavailable, err)
	}
	return nil
}

// Invalidate deletes every variant of originalPath and asks the edge to drop
// "{originalPath}*". Store deletion runs first; an edge failure after a successful
// delete is returned along with the count.
func (c *Cache) Invalidate(ctx context.Context, originalPath string) (int, error) {
	cleaned := directives.CleanPath(originalPath)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOriginalPath, originalPath)
	}

	removed, err := c.store.DeletePrefix(ctx, cleaned+"/")
	metrics.VariantsInvalidated.Add(float64(removed))
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrVariantStoreUnavailable, err)
	}

	pattern := EdgePattern(cleaned)
	if c.invalidator != nil {
		if err := c.invalidator.Invalidate(ctx, pattern); err != nil {
			return removed, fmt.Errorf("%w: %s: %w", ErrEdgeInvalidation, pattern, err)
		}
	}

	c.logger.Info("[VARIANTS] invalidated original",
		zap.String("original_path", cleaned),
		zap.Int("variants_removed", removed),
		zap.String("edge_pattern", pattern),
	)
	return removed, nil
}

// EdgePattern is the invalidation pattern covering every request for originalPath,
// in the rooted form CloudFront expects.
func EdgePattern(originalPath string) string {
	return "/" + originalPath + "*"
}

// Location returns the public URL of a stored variant.
func (c *Cache) Location(originalPath, key string) string {
	u := url.URL{Path: "/" + ObjectKey(originalPath, key)}
	return c.baseURL + u.EscapedPath()
}
