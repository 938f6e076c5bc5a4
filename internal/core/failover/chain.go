// Package failover resolves a variant through an ordered list of tiers: the first tier
// that answers wins, a miss falls through to the next, and the last tier computes.
package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"Prism/internal/core/directives"
	"Prism/internal/metrics"
)

// ErrNotFound is returned by a Provider that does not hold the requested variant.
var ErrNotFound = errors.New("variant not found in tier")

// ErrNoProviders is returned by NewChain when called without tiers.
var ErrNoProviders = errors.New("failover chain needs at least one provider")

// Request identifies the variant being resolved.
type Request struct {
	Identity directives.Identity
}

// Response is a resolved variant. Location is set instead of Data when the variant is
// served by redirect.
type Response struct {
	Data         []byte
	ContentType  string
	CacheControl string
	LastModified time.Time
	Location     string
	// Tier is the name of the provider that answered.
	Tier string
}

// IsRedirect reports whether the response points elsewhere instead of carrying a body.
func (r *Response) IsRedirect() bool {
	return r.Location != ""
}

// Provider is one tier of the chain.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Filler is implemented by tiers that accept back-fill after a later tier answered.
type Filler interface {
	Fill(ctx context.Context, req Request, resp *Response)
}

// Chain tries providers in order.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain builds a chain. The last provider is the compute tier: its errors are
// returned to the caller. Earlier tiers are caches whose failures count as misses.
func NewChain(logger *zap.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("failover: provider %d is nil", i)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger}, nil
}

// Providers returns the tiers in lookup order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Fetch resolves req. On a hit from a later tier every earlier Filler is back-filled,
// unless the response is a redirect.
func (c *Chain) Fetch(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("prism/failover").Start(ctx, "failover.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("prism.identity", req.Identity.Path()))

	last := len(c.providers) - 1
	for i, p := range c.providers {
		resp, err := p.Fetch(ctx, req)
		if err == nil {
			metrics.TierLookups.WithLabelValues(p.Name(), metrics.OutcomeHit).Inc()
			resp.Tier = p.Name()
			span.SetAttributes(attribute.String("prism.tier", p.Name()))
			if !resp.IsRedirect() {
				c.backfill(ctx, req, resp, i)
			}
			return resp, nil
		}

		if errors.Is(err, ErrNotFound) {
			metrics.TierLookups.WithLabelValues(p.Name(), metrics.OutcomeMiss).Inc()
		} else {
			metrics.TierLookups.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
		}
		if i == last {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("[FAILOVER] tier lookup failed, treating as miss",
				zap.String("tier", p.Name()),
				zap.String("identity", req.Identity.Path()),
				zap.Error(err),
			)
		}
	}
	// Unreachable: the last provider always returns.
	return nil, ErrNotFound
}

func (c *Chain) backfill(ctx context.Context, req Request, resp *Response, hitIndex int) {
	for _, p := range c.providers[:hitIndex] {
		if f, ok := p.(Filler); ok {
			f.Fill(ctx, req, resp)
		}
	}
}
