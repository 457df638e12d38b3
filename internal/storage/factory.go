package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/domain"
)

// Stores groups the two asset stores the bot works with.
type Stores struct {
	Memes      AssetStore
	Thumbnails AssetStore
}

// ForKind returns the store holding assets of the given kind.
func (s *Stores) ForKind(kind string) (AssetStore, bool) {
	switch kind {
	case domain.KindOriginal:
		return s.Memes, true
	case domain.KindThumbnail:
		return s.Thumbnails, true
	}
	return nil, false
}

// NewStores creates the originals and thumbnails stores based on the configuration.
// Parameters:
//   - ctx: context used while probing remote backends.
//   - cfg: storage configuration.
// Returns:
//   - *Stores: initialized stores.
//   - error: non-nil if a backend cannot be created.
func NewStores(ctx context.Context, cfg *config.StorageConfig) (*Stores, error) {
	switch cfg.Type {
	case "", "local":
		memes, err := NewLocalStore(cfg.MemesDir)
		if err != nil {
			return nil, err
		}
		thumbs, err := NewLocalStore(cfg.ThumbnailsDir)
		if err != nil {
			return nil, err
		}
		return &Stores{Memes: memes, Thumbnails: thumbs}, nil
	case "s3":
		base := S3Config{
			Type:      StorageType(cfg.S3.Type),
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
		}
		memesCfg := base
		memesCfg.Prefix = domain.KindOriginal
		memes, err := NewS3Store(ctx, &memesCfg)
		if err != nil {
			return nil, err
		}
		if err := memes.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		thumbsCfg := base
		thumbsCfg.Prefix = domain.KindThumbnail
		thumbs, err := NewS3Store(ctx, &thumbsCfg)
		if err != nil {
			return nil, err
		}
		return &Stores{Memes: memes, Thumbnails: thumbs}, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case endpoint == "", strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
