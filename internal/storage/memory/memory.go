// Package memory is an in-process storage.Store for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"Prism/internal/storage"
)

type entry struct {
	data         []byte
	contentType  string
	cacheControl string
	updated      time.Time
	expires      time.Time
}

// Store keeps objects in a map guarded by a RWMutex. Entries with a TTL are hidden
// once expired and dropped on the next write to the same key or on Sweep.
type Store struct {
	mu   sync.RWMutex
	objs map[string]*entry
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		objs: make(map[string]*entry),
		now:  time.Now,
	}
}

func (s *Store) expired(e *entry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}

// Get returns a copy of the object at key.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objs[key]
	if !ok || s.expired(e) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return &storage.Object{
		Key:          key,
		Data:         append([]byte(nil), e.data...),
		ContentType:  e.contentType,
		CacheControl: e.cacheControl,
		LastModified: e.updated,
	}, nil
}

// Put stores a copy of data.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	now := s.now()
	e := &entry{
		data:         append([]byte(nil), data...),
		contentType:  storage.DefaultContentType(opts.ContentType),
		cacheControl: opts.CacheControl,
		updated:      now,
	}
	if opts.TTL > 0 {
		e.expires = now.Add(opts.TTL)
	}
	s.mu.Lock()
	s.objs[key] = e
	s.mu.Unlock()
	return nil
}

// List returns live keys under prefix in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for k, e := range s.objs {
		if strings.HasPrefix(k, prefix) && !s.expired(e) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objs, key)
	s.mu.Unlock()
	return nil
}

// DeletePrefix removes every key under prefix in one critical section.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.objs {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !s.expired(e) {
			removed++
		}
		delete(s.objs, k)
	}
	return removed, nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.objs {
		if s.expired(e) {
			delete(s.objs, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
