package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestDirectoryFetchBatch(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "cats", "grumpy_monday.JPG"))
	touch(t, filepath.Join(root, "b.png"))
	touch(t, filepath.Join(root, "a.gif"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, ".hidden.png"))
	touch(t, filepath.Join(root, ".git", "c.png"))

	d := NewDirectory(root)
	ctx := context.Background()

	count, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	first, next, err := d.FetchBatch(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a.gif", first[0].SourceID)
	assert.Equal(t, "gif", first[0].Format)
	assert.Equal(t, "b.png", first[1].SourceID)
	assert.Equal(t, "2", next)

	rest, next, err := d.FetchBatch(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Empty(t, next)
	assert.Equal(t, "cats/grumpy_monday.JPG", rest[0].SourceID)
	assert.Equal(t, "jpg", rest[0].Format)
	assert.Equal(t, "cats grumpy monday", rest[0].Caption)

	_, _, err = d.FetchBatch(ctx, "bogus", 2)
	assert.Error(t, err)
}

func TestDirectoryMissingRoot(t *testing.T) {
	_, _, err := NewDirectory(filepath.Join(t.TempDir(), "nope")).FetchBatch(context.Background(), "", 10)
	assert.Error(t, err)
}
