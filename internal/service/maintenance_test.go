package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/memetag/internal/domain"
)

func writeOriginal(t *testing.T, h *harness, key string, data []byte) {
	t.Helper()
	require.NoError(t, h.stores.Memes.Write(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/png"))
}

func TestRescanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set([]string{"found"}, nil)

	writeOriginal(t, h, "a.png", pngBytes(t, 10, 10, 10))
	writeOriginal(t, h, "b.png", pngBytes(t, 10, 10, 11))

	first, err := h.ingest.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Added)
	assert.Equal(t, 0, first.Skipped)

	second, err := h.ingest.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 2, second.Skipped)

	all, err := h.ingest.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, m := range all {
		assert.Equal(t, domain.StringArray{"found"}, m.Tags)
		assert.True(t, m.HasThumbnail())
	}

	// Rescan never deletes or rewrites the originals it indexed.
	keys, err := h.stores.Memes.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, keys)
}

func TestRescanDuringUploadKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set([]string{"race"}, nil)
	h.extractor.started = make(chan struct{}, 4)
	release := make(chan struct{})
	h.extractor.release = release

	type ingestResult struct {
		meme *domain.Meme
		err  error
	}
	ingested := make(chan ingestResult, 1)
	go func() {
		m, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 10, 10, 90)})
		ingested <- ingestResult{m, err}
	}()
	// The original is written and the upload is waiting on extraction.
	<-h.extractor.started

	type rescanResult struct {
		summary *RescanSummary
		err     error
	}
	rescanned := make(chan rescanResult, 1)
	go func() {
		s, err := h.ingest.Rescan(ctx)
		rescanned <- rescanResult{s, err}
	}()

	select {
	case <-rescanned:
		t.Fatal("rescan indexed a file whose upload is still in progress")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	up := <-ingested
	require.NoError(t, up.err)
	rs := <-rescanned
	require.NoError(t, rs.err)
	assert.Equal(t, 0, rs.summary.Added)
	assert.Equal(t, 1, rs.summary.Skipped)
	assert.Equal(t, 0, rs.summary.Failed)

	all, err := h.ingest.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, up.meme.ID, all[0].ID)
	ok, err := h.stores.Memes.Exists(ctx, all[0].AssetPath)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRescanCancelledMidItemIsNotAFailure(t *testing.T) {
	h := newHarness(t)
	h.extractor.started = make(chan struct{}, 1)
	h.extractor.release = make(chan struct{})
	writeOriginal(t, h, "slow.png", pngBytes(t, 10, 10, 91))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.extractor.started
		cancel()
	}()

	summary, err := h.ingest.Rescan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Failures)

	bg := context.Background()
	all, err := h.ingest.ListAll(bg)
	require.NoError(t, err)
	assert.Empty(t, all)
	ok, err := h.stores.Memes.Exists(bg, "slow.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRescanFilesReportsBadFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writeOriginal(t, h, "notes.txt", []byte("hello"))
	writeOriginal(t, h, "ok.png", pngBytes(t, 10, 10, 12))

	summary, err := h.ingest.RescanFiles(ctx, []string{"notes.txt", "ok.png", "missing.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, summary.Failures, 2)

	// A file that failed indexing is left in place.
	ok, err := h.stores.Memes.Exists(ctx, "notes.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRescanCountsUnindexed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set(nil, &domain.ExtractionError{Attempts: 1, Err: errors.New("down")})
	writeOriginal(t, h, "a.png", pngBytes(t, 10, 10, 13))

	summary, err := h.ingest.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Unindexed)

	n, err := h.repo.CountByStatus(ctx, domain.MemeStatusUnindexed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClearKeepsFilesAndRescanRestores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set([]string{"tag"}, nil)

	for i := 0; i < 3; i++ {
		_, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 10, 10, uint8(20+i))})
		require.NoError(t, err)
	}

	token := h.ingest.RequestClear()
	n, err := h.ingest.ConfirmClear(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := h.ingest.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	keys, err := h.stores.Memes.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	summary, err := h.ingest.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Added)

	all, err = h.ingest.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConfirmClearRejectsBadToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 10, 10, 30)})
	require.NoError(t, err)

	for _, token := range []string{"", "abc", "zzzz.AAAA"} {
		_, err := h.ingest.ConfirmClear(ctx, token)
		assert.ErrorIs(t, err, domain.ErrInvalidConfirmation)
	}

	all, err := h.ingest.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRetagAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.set([]string{"old"}, nil)

	for i := 0; i < 5; i++ {
		_, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 10, 10, uint8(40+i))})
		require.NoError(t, err)
	}

	h.extractor.set([]string{"new"}, nil)
	summary, err := h.ingest.RetagAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Updated)
	assert.Equal(t, 0, summary.Failed)

	found, err := h.repo.FindByTagTokens(ctx, []string{"new"}, 0)
	require.NoError(t, err)
	assert.Len(t, found, 5)
	stale, err := h.repo.FindByTagTokens(ctx, []string{"old"}, 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestRetagAllCollectsFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	keep, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 10, 10, 50)})
	require.NoError(t, err)
	broken, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 10, 10, 51)})
	require.NoError(t, err)
	require.NoError(t, h.stores.Memes.Delete(ctx, broken.AssetPath))

	summary, err := h.ingest.RetagAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, broken.ID, summary.Failures[0].Item)
	assert.NotEqual(t, keep.ID, summary.Failures[0].Item)
}

func TestRetagAllCancelled(t *testing.T) {
	h := newHarness(t)
	bg := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.ingest.Ingest(bg, IngestRequest{Data: pngBytes(t, 10, 10, uint8(60+i))})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(bg)
	cancel()
	_, err := h.ingest.RetagAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, h.extractor.calls)
}

func TestRegenerateThumbnails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	meme, err := h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 300, 300, 70)})
	require.NoError(t, err)
	_, err = h.ingest.Ingest(ctx, IngestRequest{Data: pngBytes(t, 30, 30, 71)})
	require.NoError(t, err)
	require.True(t, meme.HasThumbnail())
	require.NoError(t, h.stores.Thumbnails.Delete(ctx, *meme.ThumbnailPath))

	summary, err := h.ingest.RegenerateThumbnails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Skipped)

	ok, err := h.stores.Thumbnails.Exists(ctx, thumbnailKey(meme.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := h.ingest.RegenerateThumbnails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Skipped)
}
