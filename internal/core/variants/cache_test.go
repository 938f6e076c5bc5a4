package variants

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Prism/internal/storage"
	"Prism/internal/storage/memory"
)

// mockInvalidator records edge invalidation patterns.
type mockInvalidator struct {
	mu       sync.Mutex
	patterns []string
	err      error
}

func (m *mockInvalidator) Invalidate(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	return m.err
}

// brokenStore fails every operation, standing in for an unreachable bucket.
type brokenStore struct{ storage.Store }

var errBackend = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (*storage.Object, error) { return nil, errBackend }
func (brokenStore) Put(context.Context, string, []byte, storage.PutOptions) error {
	return errBackend
}
func (brokenStore) DeletePrefix(context.Context, string) (int, error) { return 0, errBackend }

func newTestCache(t *testing.T, store storage.Store, inv Invalidator) *Cache {
	t.Helper()
	c, err := NewCache(Config{Store: store, Invalidator: inv, BaseURL: "https://variants.example.com/", Logger: zap.NewNop()})
	require.NoError(t, err)
	return c
}

func TestCache_GetMissIsTyped(t *testing.T) {
	c := newTestCache(t, memory.New(), nil)

	_, err := c.Get(context.Background(), "images/cat.jpg", "format=webp")
	require.ErrorIs(t, err, ErrVariantNotFound)
	assert.NotErrorIs(t, err, ErrVariantStoreUnavailable)
}

func TestCache_PutThenGet(t *testing.T) {
	store := memory.New()
	c := newTestCache(t, store, nil)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "images/cat.jpg", "format=webp,width=200", []byte("webp"), "image/webp", "public, max-age=31622400"))

	v, err := c.Get(ctx, "images/cat.jpg", "format=webp,width=200")
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), v.Data)
	assert.Equal(t, "image/webp", v.ContentType)
	assert.Equal(t, "public, max-age=31622400", v.CacheControl)

	// Stored under the full identity path.
	_, err = store.Get(ctx, "images/cat.jpg/format=webp,width=200")
	require.NoError(t, err)
}

func TestCache_BackendFailureIsNotAMiss(t *testing.T) {
	c := newTestCache(t, brokenStore{}, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "a.jpg", "original")
	require.ErrorIs(t, err, ErrVariantStoreUnavailable)
	assert.NotErrorIs(t, err, ErrVariantNotFound)

	err = c.Put(ctx, "a.jpg", "original", []byte("x"), "image/jpeg", "")
	require.ErrorIs(t, err, ErrVariantStoreUnavailable)
}

func TestCache_Invalidate(t *testing.T) {
	store := memory.New()
	inv := &mockInvalidator{}
	c := newTestCache(t, store, inv)
	ctx := context.Background()

	for _, key := range []string{"original", "format=webp", "format=avif,width=100"} {
		require.NoError(t, c.Put(ctx, "images/cat.jpg", key, []byte("x"), "image/jpeg", ""))
	}
	require.NoError(t, c.Put(ctx, "images/cat.jpg.bak", "original", []byte("x"), "image/jpeg", ""))

	n, err := c.Invalidate(ctx, "/images/cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, key := range []string{"original", "format=webp", "format=avif,width=100"} {
		_, err := c.Get(ctx, "images/cat.jpg", key)
		assert.ErrorIs(t, err, ErrVariantNotFound, key)
	}
	_, err = c.Get(ctx, "images/cat.jpg.bak", "original")
	assert.NoError(t, err, "sibling asset sharing the name prefix must survive")

	assert.Equal(t, []string{"/images/cat.jpg*"}, inv.patterns)
}

func TestCache_InvalidateEdgeFailure(t *testing.T) {
	inv := &mockInvalidator{err: errors.New("throttled")}
	c := newTestCache(t, memory.New(), inv)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "a.jpg", "original", []byte("x"), "image/jpeg", ""))

	n, err := c.Invalidate(ctx, "a.jpg")
	require.ErrorIs(t, err, ErrEdgeInvalidation)
	assert.Equal(t, 1, n)
}

func TestCache_InvalidateRejectsRoot(t *testing.T) {
	c := newTestCache(t, memory.New(), nil)

	for _, p := range []string{"", "/", "..", "../.."} {
		_, err := c.Invalidate(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidOriginalPath, p)
	}
}

func TestCache_InvalidateStoreDown(t *testing.T) {
	inv := &mockInvalidator{}
	c := newTestCache(t, brokenStore{}, inv)

	_, err := c.Invalidate(context.Background(), "a.jpg")
	require.ErrorIs(t, err, ErrVariantStoreUnavailable)
	assert.Empty(t, inv.patterns, "edge is not purged when the store delete failed")
}

func TestCache_Location(t *testing.T) {
	c := newTestCache(t, memory.New(), nil)
	assert.Equal(t,
		"https://variants.example.com/images/my%20cat.jpg/format=webp,width=200",
		c.Location("images/my cat.jpg", "format=webp,width=200"))

	rel, err := NewCache(Config{Store: memory.New(), Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, "/variants/a.jpg/original", rel.Location("a.jpg", "original"))
}

func TestNewCache_NilStore(t *testing.T) {
	_, err := NewCache(Config{})
	require.ErrorIs(t, err, ErrNilStore)
}
