package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "memes"))
	require.NoError(t, err)

	data := []byte("not really a png")
	require.NoError(t, store.Write(ctx, "a.png", bytes.NewReader(data), int64(len(data)), "image/png"))

	ok, err := store.Exists(ctx, "a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Read(ctx, "a.png")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, keys)

	require.NoError(t, store.Delete(ctx, "a.png"))
	require.NoError(t, store.Delete(ctx, "a.png"))

	_, err = store.Read(ctx, "a.png")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStoreWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "ok.png", bytes.NewReader([]byte("x")), 1, "image/png"))
	err = store.Write(ctx, "broken.png", iotest.ErrReader(errors.New("read failed")), 1, "image/png")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"ok.png"}, names)
}

func TestLocalStoreListSkipsHiddenAndDirs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-123"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.jpg"}, keys)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	tests := []string{"../escape.png", "sub/dir.png", "", ".hidden"}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			err := store.Write(ctx, key, bytes.NewReader(nil), 0, "")
			assert.Error(t, err)

			ok, err := store.Exists(ctx, key)
			assert.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLocalStoreIsWritable(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.IsWritable(context.Background()))
}

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"abc.r2.cloudflarestorage.com", StorageTypeR2},
		{"https://s3.eu-west-1.amazonaws.com", StorageTypeS3},
		{"", StorageTypeS3},
		{"minio.local:9000", StorageTypeS3Compatible},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, detectStorageType(tt.endpoint))
		})
	}
}
