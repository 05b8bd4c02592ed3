package storage

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theirix/simple-file-repository/interfaces"
)

// runStorageContract checks the behaviour every backend shares.
// newStorage must return an empty storage.
func runStorageContract(t *testing.T, newStorage func(t *testing.T) interfaces.Storage) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newStorage(t)
		random := make([]byte, 1000)
		_, err := rand.Read(random)
		require.NoError(t, err)

		for _, content := range [][]byte{
			[]byte("hello world"),
			{},
			{0xff, 0xfe, 0x00, 0x80, 0xc3},
			random,
		} {
			id, err := s.Store(ctx, content, interfaces.StoreOptions{})
			require.NoError(t, err)
			assert.False(t, id.IsZero())

			read, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, len(content), len(read))
			if len(content) > 0 {
				assert.Equal(t, content, read)
			}
		}
	})

	t.Run("no deduplication", func(t *testing.T) {
		s := newStorage(t)
		content := []byte("hello world")

		id1, err := s.Store(ctx, content, interfaces.StoreOptions{})
		require.NoError(t, err)
		id2, err := s.Store(ctx, content, interfaces.StoreOptions{})
		require.NoError(t, err)

		assert.NotEqual(t, id1, id2)
		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Get(ctx, interfaces.NewBlobID())
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
		assert.ErrorIs(t, err, interfaces.ErrStorage)
	})

	t.Run("exists", func(t *testing.T) {
		s := newStorage(t)
		id, err := s.Store(ctx, []byte("hello world"), interfaces.StoreOptions{})
		require.NoError(t, err)

		ok, err := s.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, interfaces.NewBlobID())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStorage(t)
		id, err := s.Store(ctx, []byte("hello world"), interfaces.StoreOptions{})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, id))

		_, err = s.Get(ctx, id)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
		ok, err := s.Exists(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, s.Delete(ctx, id), interfaces.ErrNotFound)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("delete unknown keeps others", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Store(ctx, []byte("hello world"), interfaces.StoreOptions{})
		require.NoError(t, err)

		assert.ErrorIs(t, s.Delete(ctx, interfaces.NewBlobID()), interfaces.ErrNotFound)
		assert.NoError(t, DeleteSilent(ctx, s, interfaces.NewBlobID()))

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("list", func(t *testing.T) {
		s := newStorage(t)
		id1, err := s.Store(ctx, []byte("foo"), interfaces.StoreOptions{})
		require.NoError(t, err)
		id2, err := s.Store(ctx, []byte("bar"), interfaces.StoreOptions{})
		require.NoError(t, err)

		listed, err := s.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{id1.String(), id2.String()}, listed)
	})

	t.Run("override id", func(t *testing.T) {
		s := newStorage(t)
		override := interfaces.NewBlobID()
		content := make([]byte, 1000)
		_, err := rand.Read(content)
		require.NoError(t, err)

		id, err := s.Store(ctx, content, interfaces.StoreOptions{OverrideID: &override})
		require.NoError(t, err)
		assert.Equal(t, override, id)

		path, err := s.GetPath(ctx, id, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, path)

		ok, err := s.Exists(ctx, override)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
