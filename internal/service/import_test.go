package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/source"
)

func TestImportDirectory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set([]string{"caption"}, nil)

	root := t.TempDir()
	write := func(rel string, data []byte) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	img := pngBytes(t, 12, 12, 90)
	write("cats/grumpy_monday.png", img)
	write("other.png", pngBytes(t, 12, 12, 91))
	write("broken.png", []byte("not an image"))

	summary, err := h.ingest.Import(ctx, source.NewDirectory(root))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "broken.png", summary.Failures[0].Item)

	results, err := h.query.Query(ctx, "grumpy")
	require.NoError(t, err)
	if assert.Len(t, results, 1) {
		assert.Contains(t, results[0].Tags, "cats")
		assert.Contains(t, results[0].Tags, "caption")
	}

	// Same bytes under another name are a duplicate, not a new record.
	write("copy.png", img)
	again, err := h.ingest.Import(ctx, source.NewDirectory(root))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Added)
	assert.Equal(t, 3, again.Duplicates)
	assert.Equal(t, 1, again.Failed)
}

func TestImportCountsUnindexed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set(nil, &domain.ExtractionError{Attempts: 3})

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.png"), pngBytes(t, 8, 8, 92), 0o644))

	summary, err := h.ingest.Import(ctx, source.NewDirectory(root))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Unindexed)
}
