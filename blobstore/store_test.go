package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"Local":  local,
		"Memory": NewMemoryStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "agent-1/ivf/dim4-k2.idx", []byte("payload")))

			got, err := s.Get(ctx, "agent-1/ivf/dim4-k2.idx")
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), got)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "key", []byte("v1")))
			require.NoError(t, s.Put(ctx, "key", []byte("v2")))

			got, err := s.Get(ctx, "key")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "key", []byte("v")))
			require.NoError(t, s.Delete(ctx, "key"))

			_, err := s.Get(ctx, "key")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing blob is not an error.
			assert.NoError(t, s.Delete(ctx, "key"))
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "a/ivf/one.idx", []byte("1")))
			require.NoError(t, s.Put(ctx, "a/ivf/two.idx", []byte("2")))
			require.NoError(t, s.Put(ctx, "b/ivf/three.idx", []byte("3")))

			keys, err := s.List(ctx, "a/ivf/")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a/ivf/one.idx", "a/ivf/two.idx"}, keys)

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestLocalStorePutIsAtomic(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "owner/blob", []byte("data")))

	// No temp files may survive a completed Put.
	var leftovers []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Base(path) != "blob" {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("original")
	require.NoError(t, s.Put(ctx, "key", data))
	data[0] = 'X'

	got, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	// Mutating the returned slice must not poison the store either.
	got[0] = 'Y'
	again, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}
