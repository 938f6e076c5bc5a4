package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	healthhandlers "Prism/internal/api/handlers/health"
	imagehandlers "Prism/internal/api/handlers/images"
	transformhandlers "Prism/internal/api/handlers/transform"
	varianthandlers "Prism/internal/api/handlers/variants"
	"Prism/internal/api/middleware"
	"Prism/internal/api/routes"
	"Prism/internal/core/directives"
	"Prism/internal/core/edge"
	"Prism/internal/core/failover"
	"Prism/internal/core/origin"
	"Prism/internal/core/transform"
	"Prism/internal/core/variants"
	"Prism/internal/core/worker"
	"Prism/internal/metrics"
	"Prism/internal/storage"
	"Prism/internal/storage/factory"
)

// cloudFrontRegion is where the CloudFront control plane lives.
const cloudFrontRegion = "us-east-1"

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the image, worker and admin endpoints",
		PreRunE: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := loadServerConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	addServeFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
		logger.Info("memory limit set", zap.String("limit", humanize.IBytes(uint64(cfg.MemoryLimit))))
	}
	metrics.Register()

	fetcher, closeOrigin, err := openOrigin(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeOrigin()

	variantStore, err := factory.Open(ctx, cfg.Variants, logger.Named("variants"))
	if err != nil {
		return fmt.Errorf("open variant store: %w", err)
	}
	defer func() { _ = variantStore.Close() }()
	if sweeper, ok := variantStore.(factory.Sweeper); ok && cfg.SweepInterval > 0 {
		stop := sweeper.StartCleanupJob(cfg.SweepInterval)
		defer stop()
	}

	var (
		providers    []failover.Provider
		invalidators edge.MultiInvalidator
	)
	if cfg.EdgeEntries > 0 {
		lru, err := edge.NewLRUTier(cfg.EdgeEntries, int(cfg.EdgeMaxEntryBytes), logger)
		if err != nil {
			return err
		}
		providers = append(providers, lru)
		invalidators = append(invalidators, edge.LRUInvalidator{Tier: lru})
	}
	if cfg.Distribution != "" {
		cf, err := newCloudFrontInvalidator(ctx, cfg.Distribution, logger)
		if err != nil {
			return err
		}
		invalidators = append(invalidators, cf)
	}
	if cfg.Region != "" {
		logger.Info("origin shield selected",
			zap.String("region", cfg.Region),
			zap.String("shield_region", edge.ShieldRegion(cfg.Region)),
		)
	}

	cache, err := variants.NewCache(variants.Config{
		Store:       variantStore,
		Invalidator: invalidators,
		BaseURL:     cfg.VariantsBaseURL,
		Retention:   cfg.Retention,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var writer worker.VariantWriter
	if cfg.Worker.Persist {
		writer = cache
	}
	svc, err := worker.NewService(fetcher, transform.NewProcessor(cfg.Worker.MaxSourcePixels), writer, cfg.Worker, logger)
	if err != nil {
		return err
	}

	providers = append(providers, variants.NewTier(cache), worker.NewTier(svc))
	chain, err := failover.NewChain(logger, providers...)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, cfg.RateBurst)
		defer limiter.Stop()
	}

	router := routes.NewRouter(routes.Dependencies{
		Images:    imagehandlers.NewHandler(chain),
		Transform: transformhandlers.NewHandler(svc),
		Variants:  varianthandlers.NewHandler(cache),
		Health: healthhandlers.NewHandler(map[string]healthhandlers.Check{
			"variants": storeCheck(variantStore),
		}),
		Normalizer:  directives.Normalizer{MaxDimension: cfg.Worker.MaxDimension},
		RateLimiter: limiter,
		Verifier:    verifier,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("prism listening",
			zap.String("addr", cfg.Listen),
			zap.Bool("persist", cfg.Worker.Persist),
			zap.Int("edge_entries", cfg.EdgeEntries),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := svc.Wait(shutdownCtx); err != nil {
		logger.Warn("pending variant writes abandoned", zap.Error(err))
	}
	return nil
}

func openOrigin(ctx context.Context, cfg serverConfig, logger *zap.Logger) (origin.Fetcher, func(), error) {
	if cfg.OriginURL != "" {
		f, err := origin.NewHTTPFetcher(origin.HTTPConfig{
			BaseURL:      cfg.OriginURL,
			Timeout:      cfg.OriginTimeout,
			MaxSizeBytes: cfg.OriginMaxBytes,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("origin: %w", err)
		}
		logger.Info("origin web server configured", zap.String("host", f.Host()))
		return f, func() {}, nil
	}
	store, err := factory.Open(ctx, cfg.Origin, logger.Named("origin"))
	if err != nil {
		return nil, nil, fmt.Errorf("open origin store: %w", err)
	}
	return origin.NewStoreFetcher(store, cfg.OriginMaxBytes), func() { _ = store.Close() }, nil
}

func newCloudFrontInvalidator(ctx context.Context, distribution string, logger *zap.Logger) (*edge.CloudFrontInvalidator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cloudFrontRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := cloudfront.NewFromConfig(awsCfg, func(o *cloudfront.Options) {
		o.RetryMaxAttempts = 3
		o.RetryMode = aws.RetryModeStandard
	})
	return edge.NewCloudFrontInvalidator(client, distribution, logger)
}

func newVerifier(cfg serverConfig) (middleware.Verifier, error) {
	var verifiers middleware.AnyVerifier
	if cfg.SharedSecret != "" {
		v, err := middleware.NewSharedSecretVerifier(cfg.SecretHeader, cfg.SharedSecret)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	if len(cfg.SigningKey) > 0 {
		v, err := middleware.NewSignatureVerifier(cfg.SigningKey, cfg.SignatureSkew)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	switch len(verifiers) {
	case 0:
		return nil, nil
	case 1:
		return verifiers[0], nil
	default:
		return verifiers, nil
	}
}

// storeCheck probes a store with a read of a key that never exists.
func storeCheck(store storage.Store) healthhandlers.Check {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, ".prism-health")
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
}
