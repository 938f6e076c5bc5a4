// Package edge models the CDN edge in front of the variant store: an in-process LRU
// tier for single-binary deployments, invalidators that purge edge entries by pattern,
// and the region to origin-shield table.
package edge

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"Prism/internal/core/failover"
)

// TierName labels the edge tier in the failover chain and the X-Prism-Cache header.
const TierName = "edge"

// Defaults for the in-process edge.
const (
	DefaultLRUEntries    = 1024
	DefaultMaxEntryBytes = 4 << 20
)

type entry struct {
	data         []byte
	contentType  string
	cacheControl string
}

// LRUTier is an in-process edge cache keyed by variant identity.
type LRUTier struct {
	cache         *lru.Cache[string, entry]
	maxEntryBytes int
	logger        *zap.Logger
}

// NewLRUTier creates a tier holding up to size entries. Bodies larger than
// maxEntryBytes are not cached; maxEntryBytes <= 0 uses DefaultMaxEntryBytes.
func NewLRUTier(size, maxEntryBytes int, logger *zap.Logger) (*LRUTier, error) {
	if size <= 0 {
		size = DefaultLRUEntries
	}
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create edge lru: %w", err)
	}
	return &LRUTier{cache: cache, maxEntryBytes: maxEntryBytes, logger: logger}, nil
}

// Name implements failover.Provider.
func (t *LRUTier) Name() string { return TierName }

// Fetch implements failover.Provider.
func (t *LRUTier) Fetch(_ context.Context, req failover.Request) (*failover.Response, error) {
	e, ok := t.cache.Get(req.Identity.Path())
	if !ok {
		return nil, failover.ErrNotFound
	}
	return &failover.Response{
		Data:         e.data,
		ContentType:  e.contentType,
		CacheControl: e.cacheControl,
	}, nil
}

// Fill implements failover.Filler.
func (t *LRUTier) Fill(_ context.Context, req failover.Request, resp *failover.Response) {
	if resp.IsRedirect() || len(resp.Data) > t.maxEntryBytes {
		return
	}
	t.cache.Add(req.Identity.Path(), entry{
		data:         resp.Data,
		contentType:  resp.ContentType,
		cacheControl: resp.CacheControl,
	})
}

// Purge removes every entry whose identity starts with prefix and returns the count.
func (t *LRUTier) Purge(prefix string) int {
	removed := 0
	for _, key := range t.cache.Keys() {
		if strings.HasPrefix(key, prefix) && t.cache.Remove(key) {
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("[EDGE] purged entries", zap.String("prefix", prefix), zap.Int("count", removed))
	}
	return removed
}

// Len returns the number of cached entries.
func (t *LRUTier) Len() int {
	return t.cache.Len()
}
