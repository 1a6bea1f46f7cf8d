package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "sub/key.yaml", []byte("value")))

	data, err := store.Read(ctx, "sub/key.yaml")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)

	exists, err := store.Exists(ctx, "sub/key.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "sub/key.yaml"))

	exists, err = store.Exists(ctx, "sub/key.yaml")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_ReadMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read(ctx, "missing.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_DeleteMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = store.Delete(ctx, "missing.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_List(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "subs/a.yaml", []byte("a")))
	require.NoError(t, store.Write(ctx, "subs/b.yaml", []byte("b")))
	require.NoError(t, store.Write(ctx, "other/c.yaml", []byte("c")))

	paths, err := store.List(ctx, "subs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"subs/a.yaml", "subs/b.yaml"}, paths)

	// Listing an absent prefix is empty, not an error.
	paths, err = store.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalStorage_ListSkipsStagedWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "subs/a.yaml", []byte("a")))
	// A leftover from an interrupted write must stay invisible.
	leftover := filepath.Join(dir, "subs", tempPrefix+"b.yaml-123")
	require.NoError(t, os.WriteFile(leftover, []byte("b"), 0o644))

	paths, err := store.List(ctx, "subs")
	require.NoError(t, err)
	assert.Equal(t, []string{"subs/a.yaml"}, paths)
}

func TestLocalStorage_PathsStayUnderRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	// A ".." segment is stripped, not followed out of the root.
	require.NoError(t, store.Write(ctx, "../escape.yaml", []byte("x")))

	data, err := store.Read(ctx, "escape.yaml")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorage_Overwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "key.yaml", []byte("old")))
	require.NoError(t, store.Write(ctx, "key.yaml", []byte("new")))

	data, err := store.Read(ctx, "key.yaml")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}
