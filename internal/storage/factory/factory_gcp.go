//go:build gcp

package factory

import (
	"context"

	"Prism/internal/storage"
	"Prism/internal/storage/gcs"
)

func openGCS(ctx context.Context, cfg Config) (storage.Store, error) {
	s, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	if err != nil {
		return nil, err
	}
	return s, nil
}
