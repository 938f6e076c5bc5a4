// Package factory opens a storage.Store from configuration. It lives apart from
// package storage so backends can import storage without a cycle.
package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"Prism/internal/storage"
	"Prism/internal/storage/aws"
	"Prism/internal/storage/azure"
	"Prism/internal/storage/disk"
	"Prism/internal/storage/memory"
	"Prism/internal/storage/redis"
	"Prism/internal/storage/s3"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendS3     = "s3"
	BackendAWS    = "aws"
	BackendAzure  = "azure"
	BackendGCS    = "gcs"
	BackendRedis  = "redis"
)

// Config selects and configures one backend. Only the fields of the selected
// backend are read.
type Config struct {
	Backend string `mapstructure:"backend"`
	// Prefix namespaces keys inside a shared bucket, container or redis database.
	Prefix string `mapstructure:"prefix"`

	Dir          string        `mapstructure:"dir"`
	MaxSizeBytes int64         `mapstructure:"max-size-bytes"`
	TTL          time.Duration `mapstructure:"ttl"`
	ReadOnly     bool          `mapstructure:"read-only"`

	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Insecure       bool   `mapstructure:"insecure"`
	ForcePathStyle bool   `mapstructure:"force-path-style"`

	AzureAccount   string `mapstructure:"azure-account"`
	AzureKey       string `mapstructure:"azure-key"`
	AzureSASToken  string `mapstructure:"azure-sas-token"`
	AzureContainer string `mapstructure:"azure-container"`

	RedisURL string `mapstructure:"redis-url"`
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (storage.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", BackendMemory:
		return memory.New(), nil
	case BackendDisk:
		return opened(disk.New(disk.Config{
			BasePath:     cfg.Dir,
			MaxSizeBytes: cfg.MaxSizeBytes,
			TTL:          cfg.TTL,
			ReadOnly:     cfg.ReadOnly,
			Logger:       logger,
		}))
	case BackendS3:
		return opened(s3.New(s3.Config{
			Endpoint:       cfg.Endpoint,
			Region:         cfg.Region,
			Bucket:         cfg.Bucket,
			Prefix:         cfg.Prefix,
			Insecure:       cfg.Insecure,
			ForcePathStyle: cfg.ForcePathStyle,
		}))
	case BackendAWS:
		return opened(aws.New(ctx, aws.Config{
			Endpoint:       cfg.Endpoint,
			Region:         cfg.Region,
			Bucket:         cfg.Bucket,
			Prefix:         cfg.Prefix,
			Insecure:       cfg.Insecure,
			ForcePathStyle: cfg.ForcePathStyle,
		}))
	case BackendAzure:
		return opened(azure.New(ctx, azure.Config{
			Account:    cfg.AzureAccount,
			AccountKey: cfg.AzureKey,
			Endpoint:   cfg.Endpoint,
			SASToken:   cfg.AzureSASToken,
			Container:  cfg.AzureContainer,
			Prefix:     cfg.Prefix,
		}))
	case BackendGCS:
		return openGCS(ctx, cfg)
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires redis-url")
		}
		return opened(redis.Dial(ctx, cfg.RedisURL, redis.Config{Prefix: cfg.Prefix, DefaultTTL: cfg.TTL}))
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// opened converts a constructor result to the interface without leaking a typed nil.
func opened[T storage.Store](s T, err error) (storage.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Sweeper is implemented by backends that need a periodic cleanup job.
type Sweeper interface {
	StartCleanupJob(interval time.Duration) context.CancelFunc
}
