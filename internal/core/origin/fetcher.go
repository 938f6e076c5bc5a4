// Package origin fetches original assets for the transformation worker, either from
// an origin object store or from an origin web server.
package origin

import (
	"context"
	"errors"
	"fmt"

	"Prism/internal/storage"
)

// Source is a fetched original asset.
type Source struct {
	Data        []byte
	ContentType string
}

// Fetcher retrieves the original asset at path. Errors wrap ErrOriginNotFound,
// ErrOriginTimeout or ErrOriginFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*Source, error)
}

// StoreFetcher reads originals from a storage.Store (the origin bucket).
type StoreFetcher struct {
	store        storage.Store
	maxSizeBytes int64
}

// NewStoreFetcher returns a fetcher over store. maxSizeBytes <= 0 disables the size check.
func NewStoreFetcher(store storage.Store, maxSizeBytes int64) *StoreFetcher {
	return &StoreFetcher{store: store, maxSizeBytes: maxSizeBytes}
}

// Fetch implements Fetcher.
func (f *StoreFetcher) Fetch(ctx context.Context, path string) (*Source, error) {
	obj, err := f.store.Get(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
			return nil, fmt.Errorf("%w: %s", ErrOriginNotFound, path)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", ErrOriginTimeout, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrOriginFetchFailed, err)
		}
	}
	if f.maxSizeBytes > 0 && int64(len(obj.Data)) > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d bytes",
			ErrSourceTooLarge, len(obj.Data), f.maxSizeBytes)
	}
	return &Source{Data: obj.Data, ContentType: obj.ContentType}, nil
}
