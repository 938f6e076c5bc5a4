//go:build !gcp

package factory

import (
	"context"
	"fmt"

	"Prism/internal/storage"
)

func openGCS(_ context.Context, _ Config) (storage.Store, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
