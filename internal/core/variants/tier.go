package variants

import (
	"context"
	"errors"
	"fmt"

	"Prism/internal/core/failover"
)

// TierName labels the variant store in the failover chain and the X-Prism-Cache header.
const TierName = "store"

// Tier exposes a Cache as a failover provider.
type Tier struct {
	cache *Cache
}

// NewTier wraps c.
func NewTier(c *Cache) *Tier {
	return &Tier{cache: c}
}

// Name implements failover.Provider.
func (t *Tier) Name() string { return TierName }

// Fetch implements failover.Provider. A variant miss maps to failover.ErrNotFound.
func (t *Tier) Fetch(ctx context.Context, req failover.Request) (*failover.Response, error) {
	v, err := t.cache.Get(ctx, req.Identity.OriginalPath, req.Identity.Key)
	if err != nil {
		if errors.Is(err, ErrVariantNotFound) {
			return nil, fmt.Errorf("%w: %v", failover.ErrNotFound, err)
		}
		return nil, err
	}
	return &failover.Response{
		Data:         v.Data,
		ContentType:  v.ContentType,
		CacheControl: v.CacheControl,
		LastModified: v.LastModified,
	}, nil
}
