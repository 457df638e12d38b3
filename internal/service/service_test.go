package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/repository"
	"github.com/timmy/memetag/internal/signing"
	"github.com/timmy/memetag/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeExtractor returns fixed tags, or err, and can hold calls until released.
type fakeExtractor struct {
	mu      sync.Mutex
	tags    []string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, _ []byte, _ string) ([]string, error) {
	f.mu.Lock()
	f.calls++
	tags, err := f.tags, f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]string(nil), tags...), nil
}

func (f *fakeExtractor) set(tags []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags, f.err = tags, err
}

type harness struct {
	repo      *repository.MemeRepository
	jobs      *repository.JobRepository
	stores    *storage.Stores
	signer    *signing.Signer
	extractor *fakeExtractor
	ingest    *IngestService
	query     *QueryService
	assets    *AssetService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(dir, "db", "memes.db"),
		AutoMigrate: true,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })

	memes, err := storage.NewLocalStore(filepath.Join(dir, "memes"))
	require.NoError(t, err)
	thumbs, err := storage.NewLocalStore(filepath.Join(dir, "thumbnails"))
	require.NoError(t, err)
	stores := &storage.Stores{Memes: memes, Thumbnails: thumbs}

	signer, err := signing.NewSigner(testSecret, signing.StoreResolver{Stores: stores})
	require.NoError(t, err)

	h := &harness{
		repo:      repository.NewMemeRepository(db),
		jobs:      repository.NewJobRepository(db),
		stores:    stores,
		signer:    signer,
		extractor: &fakeExtractor{},
	}
	h.ingest = NewIngestService(h.repo, stores, h.extractor, NewThumbnailer(64, 48, 80), signer, logger.Discard(), &IngestConfig{
		Workers:    2,
		ConfirmTTL: time.Minute,
	})
	h.query = NewQueryService(h.repo, signer, logger.Discard(), &QueryConfig{
		PublicURL:  "https://memes.example.com/",
		URLTTL:     time.Hour,
		MaxResults: 10,
		MaxLength:  64,
	})
	h.assets = NewAssetService(signer, stores)
	return h
}

// pngBytes renders a distinct w x h PNG for each shade.
func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
