package worker

import (
	"context"

	"Prism/internal/core/failover"
)

// TierName labels the worker in the failover chain. A response from it is a cache miss.
const TierName = "miss"

// Tier exposes the worker as the compute tier of a failover chain.
type Tier struct {
	svc *Service
}

// NewTier wraps svc.
func NewTier(svc *Service) *Tier {
	return &Tier{svc: svc}
}

// Name implements failover.Provider.
func (t *Tier) Name() string { return TierName }

// Fetch implements failover.Provider.
func (t *Tier) Fetch(ctx context.Context, req failover.Request) (*failover.Response, error) {
	res, err := t.svc.TransformIdentity(ctx, req.Identity)
	if err != nil {
		return nil, err
	}
	return &failover.Response{
		Data:         res.Data,
		ContentType:  res.ContentType,
		CacheControl: res.CacheControl,
		Location:     res.RedirectURL,
	}, nil
}
