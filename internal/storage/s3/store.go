// Package s3 implements storage.Store on any S3-compatible object store through the
// MinIO client (AWS S3, MinIO, Ceph RGW, R2).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Prism/internal/storage"
)

// cacheControlMeta mirrors Cache-Control into user metadata for stores that drop the
// standard header on PUT.
const cacheControlMeta = "Prism-Cache-Control"

// Config controls the S3 storage backend.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
	// CustomCreds overrides the default env/file/IAM credential chain.
	CustomCreds *credentials.Credentials
	Transport   http.RoundTripper
}

// Store implements storage.Store backed by an S3 bucket.
type Store struct {
	client *minio.Client
	cfg    Config
}

// New constructs a Store. Endpoint defaults to the regional AWS endpoint.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	if cfg.Transport == nil {
		cfg.Transport = defaultTransport()
	}
	creds := cfg.CustomCreds
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Store{client: client, cfg: cfg}, nil
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	clone.MaxIdleConns = 256
	clone.MaxIdleConnsPerHost = 64
	clone.IdleConnTimeout = 90 * time.Second
	return clone
}

// Client exposes the underlying MinIO client for diagnostics.
func (s *Store) Client() *minio.Client {
	return s.client
}

// BucketExists reports whether the configured bucket exists.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	return s.client.BucketExists(ctx, s.cfg.Bucket)
}

func (s *Store) object(key string) string {
	return storage.JoinPrefix(s.cfg.Prefix, key)
}

// Get downloads the object. The not-found case surfaces from Stat, since MinIO's
// GetObject is lazy.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapError(err, key, "s3: get object")
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, wrapError(err, key, "s3: stat object")
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapError(err, key, "s3: read object")
	}

	cacheControl := info.Metadata.Get("Cache-Control")
	if cacheControl == "" {
		cacheControl = info.UserMetadata[cacheControlMeta]
	}
	return &storage.Object{
		Key:          key,
		Data:         data,
		ContentType:  info.ContentType,
		CacheControl: cacheControl,
		LastModified: info.LastModified,
	}, nil
}

// Put uploads data in a single request. TTL is ignored; retention belongs to the
// bucket lifecycle configuration.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	putOpts := minio.PutObjectOptions{
		ContentType:  storage.DefaultContentType(opts.ContentType),
		CacheControl: opts.CacheControl,
	}
	if opts.CacheControl != "" {
		putOpts.UserMetadata = map[string]string{cacheControlMeta: opts.CacheControl}
	}
	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, s.object(key), bytes.NewReader(data), int64(len(data)), putOpts); err != nil {
		return wrapError(err, key, "s3: put object")
	}
	return nil
}

// List enumerates keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{Prefix: s.object(prefix), Recursive: true}
	var keys []string
	for object := range s.client.ListObjects(ctx, s.cfg.Bucket, opts) {
		if object.Err != nil {
			return nil, wrapError(object.Err, prefix, "s3: list objects")
		}
		keys = append(keys, storage.TrimPrefix(s.cfg.Prefix, object.Key))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.object(key), minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return wrapError(err, key, "s3: remove object")
	}
	return nil
}

// DeletePrefix streams the listing into RemoveObjects, which batches up to 1000
// keys per DeleteObjects request. RemoveObjects closes its result channel only after
// draining the input, so listed and listErr are safe to read afterwards.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects := make(chan minio.ObjectInfo)
	var (
		listErr error
		listed  int
	)
	go func() {
		defer close(objects)
		opts := minio.ListObjectsOptions{Prefix: s.object(prefix), Recursive: true}
		for object := range s.client.ListObjects(ctx, s.cfg.Bucket, opts) {
			if object.Err != nil {
				listErr = object.Err
				return
			}
			select {
			case objects <- object:
				listed++
			case <-ctx.Done():
				return
			}
		}
	}()

	var failed []error
	for result := range s.client.RemoveObjects(ctx, s.cfg.Bucket, objects, minio.RemoveObjectsOptions{}) {
		failed = append(failed, fmt.Errorf("%s: %w", result.ObjectName, result.Err))
	}
	removed := listed - len(failed)

	if listErr != nil {
		return removed, wrapError(listErr, prefix, "s3: list objects")
	}
	if len(failed) > 0 {
		return removed, fmt.Errorf("s3: remove objects: %w", errors.Join(failed...))
	}
	return removed, ctx.Err()
}

// Close is a no-op for the S3 client.
func (s *Store) Close() error { return nil }

// isNotFound matches a missing object only. A missing bucket is also a 404 but is a
// misconfiguration, not a cache miss.
func isNotFound(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		return errResp.Code == "NoSuchKey"
	}
	return false
}

func wrapError(err error, key, msg string) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
