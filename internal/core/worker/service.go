// Package worker is the transformation worker: on a variant-cache miss it fetches the
// original, transforms it per the canonical key, optionally persists the variant and
// returns it. Each invocation is independent unless coalescing is enabled.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"Prism/internal/core/directives"
	"Prism/internal/core/origin"
	"Prism/internal/core/transform"
	"Prism/internal/logging"
	"Prism/internal/metrics"
)

// Transform results, the label values of prism_transforms_total.
const (
	resultOK        = "ok"
	resultRedirect  = "redirect"
	resultOrigin    = "origin_error"
	resultTransform = "transform_error"
	resultTimeout   = "timeout"
	resultTooLarge  = "too_large"
)

// VariantWriter is the part of the variant cache the worker writes to.
type VariantWriter interface {
	Put(ctx context.Context, originalPath, key string, data []byte, contentType, cacheControl string) error
	Location(originalPath, key string) string
}

// Result is a produced variant. RedirectURL is set instead of Data when the variant
// was too large to return inline and was stored instead.
type Result struct {
	Data         []byte
	ContentType  string
	CacheControl string
	RedirectURL  string
}

// Service runs transformations.
type Service struct {
	fetcher    origin.Fetcher
	processor  transform.Processor
	variants   VariantWriter
	normalizer directives.Normalizer
	config     Config
	logger     *zap.Logger
	tracer     trace.Tracer

	group   singleflight.Group
	pending sync.WaitGroup
}

// NewService creates a Service. variants may be nil only when persistence is off.
func NewService(fetcher origin.Fetcher, processor transform.Processor, variants VariantWriter, config Config, logger *zap.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", ErrNilDependency)
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: processor", ErrNilDependency)
	}
	if config.Persist && variants == nil {
		return nil, fmt.Errorf("%w: variant writer (persistence enabled)", ErrNilDependency)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Service{
		fetcher:    fetcher,
		processor:  processor,
		variants:   variants,
		normalizer: directives.Normalizer{MaxDimension: config.MaxDimension},
		config:     config,
		logger:     logger,
		tracer:     otel.Tracer("prism/worker"),
	}, nil
}

// Config returns the worker configuration.
func (s *Service) Config() Config {
	return s.config
}

// Transform parses and re-validates a raw identity ({original-path}/{key}) and
// produces the variant. This is the entry point for callers that bypass the
// normalizer.
func (s *Service) Transform(ctx context.Context, identity string) (*Result, error) {
	id, err := s.normalizer.ParseIdentity(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	return s.TransformIdentity(ctx, id)
}

// TransformIdentity produces the variant for an already normalized identity:
//  1. Fetch the original from the origin
//  2. Auto-orient, resize and re-encode
//  3. Oversized output: store synchronously and redirect, or fail without persistence
//  4. Persist (async, never fails the request)
//  5. Return bytes and content metadata
func (s *Service) TransformIdentity(ctx context.Context, id directives.Identity) (*Result, error) {
	if !s.config.Coalesce {
		return s.run(ctx, id)
	}
	// The shared invocation must not die with whichever caller arrived first, and no
	// caller waits on it past its own context.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id.Path(), func() (any, error) {
		return s.run(detached, id)
	})
	select {
	case r := <-ch:
		if r.Shared {
			logging.FromContextOr(ctx, s.logger).Debug("[WORKER] coalesced duplicate request", zap.String("identity", id.Path()))
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w waiting for shared invocation: %v", ErrTimeout, err)
		}
		return nil, err
	}
}

func (s *Service) run(ctx context.Context, id directives.Identity) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "worker.Transform", trace.WithAttributes(
		attribute.String("prism.original_path", id.OriginalPath),
		attribute.String("prism.key", id.Key),
	))
	defer span.End()

	logger := logging.FromContextOr(ctx, s.logger).With(
		zap.String("original_path", id.OriginalPath),
		zap.String("key", id.Key),
	)

	src, err := s.fetcher.Fetch(ctx, id.OriginalPath)
	if err != nil {
		return nil, s.fail(ctx, span, logger, resultOrigin, err)
	}

	out, err := s.process(ctx, src, id.Set)
	if err != nil {
		return nil, s.fail(ctx, span, logger, resultTransform, err)
	}

	format := string(out.Format)
	if format == "" {
		format = directives.OriginalKey
	}
	defer func() {
		metrics.TransformSeconds.WithLabelValues(format).Observe(time.Since(start).Seconds())
	}()
	span.SetAttributes(
		attribute.String("prism.content_type", out.ContentType),
		attribute.Int("prism.bytes", len(out.Data)),
	)

	if s.config.MaxPayloadBytes > 0 && int64(len(out.Data)) > s.config.MaxPayloadBytes {
		return s.oversized(ctx, span, logger, id, out)
	}

	if s.config.Persist {
		s.persistAsync(logger, id, out.Data, out.ContentType)
	}

	metrics.Transforms.WithLabelValues(resultOK).Inc()
	logger.Debug("[WORKER] variant produced",
		zap.String("content_type", out.ContentType),
		zap.Int("size_bytes", len(out.Data)),
		zap.Duration("duration", time.Since(start)),
	)
	return &Result{
		Data:         out.Data,
		ContentType:  out.ContentType,
		CacheControl: s.config.CacheControl,
	}, nil
}

// process runs the CPU-bound transform off the request goroutine so the invocation
// deadline is honored. A transform still running at the deadline finishes unobserved.
func (s *Service) process(ctx context.Context, src *origin.Source, set directives.Set) (*transform.Output, error) {
	_, span := s.tracer.Start(ctx, "worker.Process")
	defer span.End()

	type processed struct {
		out *transform.Output
		err error
	}
	done := make(chan processed, 1)
	go func() {
		out, err := s.processor.Process(src.Data, src.ContentType, set)
		done <- processed{out: out, err: err}
	}()

	select {
	case p := <-done:
		return p.out, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) oversized(ctx context.Context, span trace.Span, logger *zap.Logger, id directives.Identity, out *transform.Output) (*Result, error) {
	size := humanize.Bytes(uint64(len(out.Data)))
	limit := humanize.Bytes(uint64(s.config.MaxPayloadBytes))
	if !s.config.Persist {
		metrics.Transforms.WithLabelValues(resultTooLarge).Inc()
		err := fmt.Errorf("%w: %s exceeds %s", ErrPayloadTooLarge, size, limit)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("[WORKER] variant too large to return", zap.String("size", size), zap.String("limit", limit))
		return nil, err
	}

	if err := s.variants.Put(ctx, id.OriginalPath, id.Key, out.Data, out.ContentType, s.config.CacheControl); err != nil {
		metrics.VariantPersistFailures.Inc()
		return nil, s.fail(ctx, span, logger, resultTooLarge,
			fmt.Errorf("%w: store oversized variant: %v", ErrPayloadTooLarge, err))
	}

	location := s.variants.Location(id.OriginalPath, id.Key)
	metrics.Transforms.WithLabelValues(resultRedirect).Inc()
	logger.Info("[WORKER] oversized variant stored, redirecting",
		zap.String("size", size),
		zap.String("limit", limit),
		zap.String("location", location),
	)
	return &Result{
		ContentType:  out.ContentType,
		CacheControl: RedirectCacheControl,
		RedirectURL:  location,
	}, nil
}

// persistAsync writes the variant in the background with its own deadline, since the
// request context is gone once the response is written.
func (s *Service) persistAsync(logger *zap.Logger, id directives.Identity, data []byte, contentType string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.PersistTimeout)
		defer cancel()

		if err := s.variants.Put(ctx, id.OriginalPath, id.Key, data, contentType, s.config.CacheControl); err != nil {
			metrics.VariantPersistFailures.Inc()
			logger.Error("[WORKER] async variant write failed", zap.Error(err))
			return
		}
		logger.Debug("[WORKER] variant persisted", zap.Int("size_bytes", len(data)))
	}()
}

// Wait blocks until background variant writes finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail records a failed invocation and maps deadline expiry to ErrTimeout.
func (s *Service) fail(ctx context.Context, span trace.Span, logger *zap.Logger, result string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		result = resultTimeout
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, s.config.Timeout, err)
	}
	metrics.Transforms.WithLabelValues(result).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("[WORKER] transformation failed", zap.String("result", result), zap.Error(err))
	return err
}
