// Package storetest holds the behavioural contract every storage.Store backend must
// satisfy. Backend test files call Run with a fresh, empty store.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Prism/internal/storage"
)

// Run exercises s against the storage.Store contract. s must start empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(ctx, "contract/missing.jpg/original")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		err := s.Put(ctx, "contract/cat.jpg/format=webp,width=200", []byte("webp-bytes"), storage.PutOptions{
			ContentType:  "image/webp",
			CacheControl: "public, max-age=31622400",
		})
		require.NoError(t, err)

		obj, err := s.Get(ctx, "contract/cat.jpg/format=webp,width=200")
		require.NoError(t, err)
		assert.Equal(t, []byte("webp-bytes"), obj.Data)
		assert.Equal(t, "image/webp", obj.ContentType)
		assert.Equal(t, "public, max-age=31622400", obj.CacheControl)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		key := "contract/over.png/original"
		require.NoError(t, s.Put(ctx, key, []byte("one"), storage.PutOptions{ContentType: "image/png"}))
		require.NoError(t, s.Put(ctx, key, []byte("two"), storage.PutOptions{ContentType: "image/png"}))

		obj, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), obj.Data)
	})

	t.Run("DefaultContentType", func(t *testing.T) {
		key := "contract/blob/original"
		require.NoError(t, s.Put(ctx, key, []byte("??"), storage.PutOptions{}))

		obj, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, storage.ContentTypeOctetStream, obj.ContentType)
	})

	t.Run("ListPrefix", func(t *testing.T) {
		for _, key := range []string{
			"list/dog.jpg/width=10",
			"list/dog.jpg/format=avif",
			"list/dogs.jpg/original",
		} {
			require.NoError(t, s.Put(ctx, key, []byte(key), storage.PutOptions{ContentType: "image/jpeg"}))
		}

		keys, err := s.List(ctx, "list/dog.jpg/")
		require.NoError(t, err)
		assert.Equal(t, []string{"list/dog.jpg/format=avif", "list/dog.jpg/width=10"}, keys)

		keys, err = s.List(ctx, "list/nothing/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		key := "contract/delete.jpg/original"
		require.NoError(t, s.Put(ctx, key, []byte("x"), storage.PutOptions{}))
		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, key))

		_, err := s.Get(ctx, key)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeletePrefix", func(t *testing.T) {
		for _, key := range []string{
			"purge/cat.jpg/original",
			"purge/cat.jpg/format=webp",
			"purge/cat.jpg/format=avif,width=100",
			"purge/cats.jpg/original",
		} {
			require.NoError(t, s.Put(ctx, key, []byte("x"), storage.PutOptions{}))
		}

		n, err := s.DeletePrefix(ctx, "purge/cat.jpg/")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		keys, err := s.List(ctx, "purge/")
		require.NoError(t, err)
		assert.Equal(t, []string{"purge/cats.jpg/original"}, keys)

		n, err = s.DeletePrefix(ctx, "purge/cat.jpg/")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
