//go:build gcp

// Package gcs implements storage.Store on Google Cloud Storage. It is compiled only
// with the gcp build tag to keep the Google client out of default builds.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"Prism/internal/storage"
)

// Config holds configuration for the GCS backend.
type Config struct {
	Bucket string
	Prefix string
}

// Store implements storage.Store backed by a GCS bucket.
type Store struct {
	client *gstorage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store using Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *Store) handle(key string) *gstorage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(storage.JoinPrefix(s.prefix, key))
}

// Get downloads the object. Reader attrs carry content type and cache control.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	reader, err := s.handle(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("gcs get failed for %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gcs read failed for %s: %w", key, err)
	}
	return &storage.Object{
		Key:          key,
		Data:         data,
		ContentType:  reader.Attrs.ContentType,
		CacheControl: reader.Attrs.CacheControl,
		LastModified: reader.Attrs.LastModified,
	}, nil
}

// Put uploads data with its HTTP metadata.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	w := s.handle(key).NewWriter(ctx)
	w.ContentType = storage.DefaultContentType(opts.ContentType)
	w.CacheControl = opts.CacheControl

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

// List iterates object names under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gstorage.Query{
		Prefix: storage.JoinPrefix(s.prefix, prefix),
	})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list failed: %w", err)
		}
		keys = append(keys, storage.TrimPrefix(s.prefix, attrs.Name))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.handle(key).Delete(ctx)
	if err != nil && !errors.Is(err, gstorage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", key, err)
	}
	return nil
}

// DeletePrefix lists then deletes object by object.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return storage.DeleteListed(ctx, s, prefix)
}

// Close closes the GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}
