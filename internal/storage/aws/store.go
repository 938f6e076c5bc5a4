// Package aws implements storage.Store on Amazon S3 through aws-sdk-go-v2. Unlike the
// MinIO-based s3 backend it uses the SDK's default credential chain and config files,
// so IRSA, SSO profiles and EC2 instance roles work unchanged.
package aws

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

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"

	"Prism/internal/storage"
)

// deleteBatch is the DeleteObjects request limit.
const deleteBatch = 1000

// Config controls the AWS S3 backend.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
}

// Store implements storage.Store backed by an S3 bucket.
type Store struct {
	client *s3.Client
	cfg    Config
}

// New loads the default AWS config for cfg.Region and builds an S3 client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("aws: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws: region is required")
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{Transport: defaultTransport()}),
	)
	if err != nil {
		return nil, fmt.Errorf("aws: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				scheme := "https"
				if cfg.Insecure {
					scheme = "http"
				}
				endpoint = scheme + "://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Store{client: client, cfg: cfg}, nil
}

// NewWithClient wraps a preconfigured client.
func NewWithClient(client *s3.Client, cfg Config) *Store {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Store{client: client, cfg: cfg}
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

func (s *Store) object(key string) string {
	return storage.JoinPrefix(s.cfg.Prefix, key)
}

// Get downloads the object body and its HTTP metadata.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.object(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("aws: get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("aws: read object: %w", err)
	}
	obj := &storage.Object{
		Key:          key,
		Data:         data,
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
	}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}
	return obj, nil
}

// Put uploads data. TTL is left to the bucket lifecycle configuration.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.object(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(storage.DefaultContentType(opts.ContentType)),
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("aws: put object: %w", err)
	}
	return nil
}

// List pages through ListObjectsV2 under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.eachPage(ctx, prefix, func(objects []types.Object) error {
		for _, o := range objects {
			keys = append(keys, storage.TrimPrefix(s.cfg.Prefix, aws.ToString(o.Key)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) eachPage(ctx context.Context, prefix string, fn func([]types.Object) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.object(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("aws: list objects: %w", err)
		}
		if err := fn(page.Contents); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.object(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("aws: delete object: %w", err)
	}
	return nil
}

// DeletePrefix deletes each listed page with one DeleteObjects call.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	err := s.eachPage(ctx, prefix, func(objects []types.Object) error {
		for start := 0; start < len(objects); start += deleteBatch {
			end := min(start+deleteBatch, len(objects))
			ids := make([]types.ObjectIdentifier, 0, end-start)
			for _, o := range objects[start:end] {
				ids = append(ids, types.ObjectIdentifier{Key: o.Key})
			}
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.cfg.Bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("aws: delete objects: %w", err)
			}
			removed += len(ids) - len(out.Errors)
			if len(out.Errors) > 0 {
				first := out.Errors[0]
				return fmt.Errorf("aws: delete objects: %d failed, first %s: %s",
					len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
			}
		}
		return nil
	})
	return removed, err
}

// Close is a no-op for the SDK client.
func (s *Store) Close() error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	// NoSuchBucket is a 404 too and must not read as a miss. HEAD responses carry no
	// body, so a missing object there is the bare NotFound code.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
		return false
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
