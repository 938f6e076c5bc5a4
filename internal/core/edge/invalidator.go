package edge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"go.uber.org/zap"
)

// Invalidator purges edge entries matching a pattern of the form "/{original-path}*".
type Invalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// NopInvalidator discards invalidations, for deployments without an edge.
type NopInvalidator struct{}

// Invalidate implements Invalidator.
func (NopInvalidator) Invalidate(context.Context, string) error { return nil }

// LRUInvalidator purges the in-process edge tier.
type LRUInvalidator struct {
	Tier *LRUTier
}

// Invalidate implements Invalidator. The pattern's leading slash and trailing
// wildcard are stripped to obtain the identity prefix.
func (i LRUInvalidator) Invalidate(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "*")
	if prefix == "" {
		return fmt.Errorf("refusing to purge the whole edge cache")
	}
	i.Tier.Purge(prefix)
	return nil
}

// MultiInvalidator fans an invalidation out to several edges. Every edge is tried;
// failures are joined.
type MultiInvalidator []Invalidator

// Invalidate implements Invalidator.
func (m MultiInvalidator) Invalidate(ctx context.Context, pattern string) error {
	var errs []error
	for _, inv := range m {
		if err := inv.Invalidate(ctx, pattern); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloudFrontAPI is the subset of the CloudFront client used for invalidation.
type CloudFrontAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// CloudFrontInvalidator issues CloudFront invalidations for one distribution.
type CloudFrontInvalidator struct {
	client         CloudFrontAPI
	distributionID string
	logger         *zap.Logger
	now            func() time.Time
}

// NewCloudFrontInvalidator returns an invalidator for distributionID.
func NewCloudFrontInvalidator(client CloudFrontAPI, distributionID string, logger *zap.Logger) (*CloudFrontInvalidator, error) {
	if client == nil {
		return nil, fmt.Errorf("cloudfront client is nil")
	}
	if distributionID == "" {
		return nil, fmt.Errorf("cloudfront distribution id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudFrontInvalidator{client: client, distributionID: distributionID, logger: logger, now: time.Now}, nil
}

// Invalidate implements Invalidator.
func (c *CloudFrontInvalidator) Invalidate(ctx context.Context, pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	out, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(c.distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String("prism-" + strconv.FormatInt(c.now().UnixNano(), 10)),
			Paths: &types.Paths{
				Quantity: aws.Int32(1),
				Items:    []string{pattern},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("cloudfront create invalidation: %w", err)
	}
	id := ""
	if out.Invalidation != nil {
		id = aws.ToString(out.Invalidation.Id)
	}
	c.logger.Info("[EDGE] cloudfront invalidation created",
		zap.String("distribution", c.distributionID),
		zap.String("pattern", pattern),
		zap.String("invalidation_id", id),
	)
	return nil
}
