// Package storage defines the object store contract shared by the origin store and the
// variant store, plus helpers every backend uses. Backends live in subpackages
// (memory, disk, s3, aws, azure, gcs, redis); factory.Open selects one from config.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContentTypeOctetStream is stored when a caller does not supply a content type.
const ContentTypeOctetStream = "application/octet-stream"

var (
	// ErrNotFound indicates the requested key is missing. Backends must return it
	// (unwrapped or wrapped) so callers can tell a miss from an outage.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidKey is returned for empty keys or keys that would escape the store root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Object is a stored payload with its HTTP metadata.
type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	CacheControl string
	LastModified time.Time
}

// PutOptions carries object metadata for Put.
type PutOptions struct {
	ContentType  string
	CacheControl string
	// TTL bounds retention for backends with native expiry (redis, memory).
	// Object stores rely on bucket lifecycle rules instead. Zero means no expiry.
	TTL time.Duration
}

// Store is a durable key/value object store with prefix listing.
// Implementations must be safe for concurrent use; a Put is atomic per key.
type Store interface {
	// Get returns the object at key or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) (*Object, error)
	// Put stores data at key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	// List returns every key that starts with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key under prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Close releases backend resources.
	Close() error
}

// ValidateKey rejects empty keys, absolute keys and keys containing dot segments or NUL.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// JoinPrefix prepends a backend-level prefix (bucket folder, redis namespace) to key.
func JoinPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// TrimPrefix strips a backend-level prefix added by JoinPrefix.
func TrimPrefix(prefix, object string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return object
	}
	return strings.TrimPrefix(object, prefix+"/")
}

// DeleteListed implements DeletePrefix on top of List and Delete for backends without
// a native bulk delete. It stops at the first delete error and reports what was removed.
func DeleteListed(ctx context.Context, s Store, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("delete %q: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// DefaultContentType returns ct, or ContentTypeOctetStream when ct is empty.
func DefaultContentType(ct string) string {
	if ct == "" {
		return ContentTypeOctetStream
	}
	return ct
}
