// Package redis implements storage.Store on Redis. Each object is a hash holding the
// payload and its HTTP metadata; PutOptions.TTL maps to key expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"Prism/internal/storage"
)

const (
	fieldData         = "data"
	fieldContentType  = "content_type"
	fieldCacheControl = "cache_control"
	fieldModified     = "modified"

	scanBatch = 500
)

// Config controls the Redis backend.
type Config struct {
	// Prefix namespaces every key as {prefix}:{key}.
	Prefix string
	// DefaultTTL applies when PutOptions.TTL is zero. 0 keeps objects until deleted.
	DefaultTTL time.Duration
}

// Store implements storage.Store using Redis hashes.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New wraps an existing client. The caller owns the client unless Close is called.
func New(client redis.UniversalClient, cfg Config) *Store {
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.DefaultTTL,
	}
}

// Dial parses a redis:// URL and returns a Store with its own client.
func Dial(ctx context.Context, rawURL string, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return New(client, cfg), nil
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Store) unkey(k string) string {
	if s.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, s.prefix+":")
}

// Get reads the object hash. A missing key is a clean miss.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	obj := &storage.Object{
		Key:          key,
		Data:         []byte(data),
		ContentType:  fields[fieldContentType],
		CacheControl: fields[fieldCacheControl],
	}
	if ms, err := strconv.ParseInt(fields[fieldModified], 10, 64); err == nil {
		obj.LastModified = time.UnixMilli(ms)
	}
	return obj, nil
}

// Put replaces the hash and sets its expiry in one transaction.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	redisKey := s.key(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		pipe.HSet(ctx, redisKey,
			fieldData, data,
			fieldContentType, storage.DefaultContentType(opts.ContentType),
			fieldCacheControl, opts.CacheControl,
			fieldModified, strconv.FormatInt(time.Now().UnixMilli(), 10),
		)
		if ttl > 0 {
			pipe.Expire(ctx, redisKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	return nil
}

// List scans for keys under prefix. SCAN may return duplicates, which are folded.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.scan(ctx, prefix, func(batch []string) error {
		for _, k := range batch {
			seen[s.unkey(k)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Del(ctx, s.key(key)).Err()
}

// DeletePrefix deletes scanned keys batch by batch and counts what DEL removed.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	err := s.scan(ctx, prefix, func(batch []string) error {
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
		removed += int(n)
		return nil
	})
	return removed, err
}

func (s *Store) scan(ctx context.Context, prefix string, fn func([]string) error) error {
	match := escapeGlob(s.key(prefix)) + "*"
	var cursor uint64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context error: %w", err)
		}
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
