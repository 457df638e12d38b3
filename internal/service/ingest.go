package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/ocr"
	"github.com/timmy/memetag/internal/repository"
	"github.com/timmy/memetag/internal/signing"
	"github.com/timmy/memetag/internal/storage"
	"github.com/timmy/memetag/internal/tagging"
)

// IngestService is the only writer of the meme index. Uploads, retags, rescans
// and thumbnail backfills all go through it.
type IngestService struct {
	memeRepo    *repository.MemeRepository
	stores      *storage.Stores
	extractor   ocr.Extractor
	thumbnailer *Thumbnailer
	signer      *signing.Signer
	logger      *logger.Logger
	locks       *keyedMutex
	workers     int
	confirmTTL  time.Duration
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	Workers    int
	ConfirmTTL time.Duration
}

// NewIngestService creates a new ingest service
func NewIngestService(
	memeRepo *repository.MemeRepository,
	stores *storage.Stores,
	extractor ocr.Extractor,
	thumbnailer *Thumbnailer,
	signer *signing.Signer,
	log *logger.Logger,
	cfg *IngestConfig,
) *IngestService {
	if log == nil {
		log = logger.GetDefault()
	}
	if thumbnailer == nil {
		thumbnailer = NewThumbnailer(0, 0, 0)
	}
	workers, confirmTTL := 4, 5*time.Minute
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.ConfirmTTL > 0 {
			confirmTTL = cfg.ConfirmTTL
		}
	}
	return &IngestService{
		memeRepo:    memeRepo,
		stores:      stores,
		extractor:   extractor,
		thumbnailer: thumbnailer,
		signer:      signer,
		logger:      log.WithField(logger.FieldComponent, "ingest"),
		locks:       newKeyedMutex(),
		workers:     workers,
		confirmTTL:  confirmTTL,
	}
}

// log returns a logger from context if available, otherwise returns the service logger
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.FromContextOK(ctx); ok {
		return l
	}
	return s.logger
}

// IngestRequest is one uploaded image.
type IngestRequest struct {
	Data    []byte
	Caption string
}

// Ingest stores a new image and indexes it.
//
// Errors:
//   - domain.ErrInvalidImage: the bytes are not a supported image; nothing is stored.
//   - domain.ErrDuplicate: identical bytes are already indexed; the existing record is returned.
//   - *domain.StorageIOError: the original could not be written; nothing is indexed.
//   - *domain.ExtractionError: the record was stored untagged and marked unindexed;
//     the record is returned alongside the error.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*domain.Meme, error) {
	info, err := inspectImage(req.Data)
	if err != nil {
		return nil, err
	}

	hash := calculateMD5(req.Data)
	// Serialize identical uploads so both cannot pass the duplicate check.
	unlock := s.locks.Lock("hash:" + hash)
	defer unlock()

	existing, err := s.memeRepo.GetByContentHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, domain.ErrDuplicate
	}

	id := uuid.NewString()
	key := originalKey(id, info.Format)
	// Held until the record is inserted so a concurrent rescan cannot index
	// the file under another id.
	unlockAsset := s.locks.Lock(assetLock(key))
	defer unlockAsset()
	if err := s.stores.Memes.Write(ctx, key, bytes.NewReader(req.Data), int64(len(req.Data)), contentTypeForKey(key)); err != nil {
		return nil, &domain.StorageIOError{Op: "write", Path: key, Err: err}
	}

	return s.index(ctx, indexRequest{
		id:         id,
		key:        key,
		data:       req.Data,
		info:       info,
		hash:       hash,
		manualTags: tagging.FromCaption(req.Caption),
		ownsAsset:  true,
	})
}

type indexRequest struct {
	id         string
	key        string
	data       []byte
	info       imageInfo
	hash       string
	manualTags []string
	// ownsAsset is set when the original was written by this call and must be
	// removed again if indexing fails.
	ownsAsset bool
}

// index derives the thumbnail and tags for an already stored original and inserts
// the record. Shared by Ingest and Rescan.
func (s *IngestService) index(ctx context.Context, req indexRequest) (*domain.Meme, error) {
	log := s.log(ctx).WithField(logger.FieldMemeID, req.id)
	ctx = log.WithContext(ctx)
	start := time.Now()

	var thumbPath *string
	thumbKey := thumbnailKey(req.id)
	if err := s.writeThumbnail(ctx, thumbKey, req.data); err != nil {
		log.WithError(err).Warn("Thumbnail generation failed, leaving it for backfill")
	} else {
		thumbPath = &thumbKey
	}

	status := domain.MemeStatusTagged
	var tags []string
	var taggedAt *time.Time
	ocrTags, extractErr := s.extractor.Extract(ctx, req.data, req.info.Format)
	switch {
	case extractErr == nil:
		tags = tagging.Merge(ocrTags, req.manualTags)
		now := time.Now()
		taggedAt = &now
	case ctx.Err() != nil:
		s.rollback(ctx, req, thumbPath)
		return nil, ctx.Err()
	default:
		status = domain.MemeStatusUnindexed
		tags = []string{}
	}

	meme := &domain.Meme{
		ID:            req.id,
		AssetPath:     req.key,
		ThumbnailPath: thumbPath,
		ContentHash:   req.hash,
		Format:        req.info.Format,
		Width:         req.info.Width,
		Height:        req.info.Height,
		FileSize:      int64(len(req.data)),
		Tags:          tags,
		ManualTags:    req.manualTags,
		Status:        status,
		CreatedAt:     time.Now(),
		TaggedAt:      taggedAt,
		UpdatedAt:     time.Now(),
	}

	if err := s.memeRepo.Insert(ctx, meme); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another record already references the original; keep it.
			req.ownsAsset = false
		}
		s.rollback(ctx, req, thumbPath)
		return nil, err
	}

	logger.Since(start).
		WithCount(len(tags)).
		WithSize(int64(len(req.data))).
		WithStatus(string(status)).
		Info(ctx, "Indexed meme %s", req.key)

	if extractErr != nil {
		return meme, withMemeID(extractErr, req.id)
	}
	return meme, nil
}

// rollback removes files written for a record that could not be inserted.
func (s *IngestService) rollback(ctx context.Context, req indexRequest, thumbPath *string) {
	ctx = context.WithoutCancel(ctx)
	if thumbPath != nil {
		if err := s.stores.Thumbnails.Delete(ctx, *thumbPath); err != nil {
			s.log(ctx).WithError(err).WithField("key", *thumbPath).Error("Failed to rollback thumbnail")
		}
	}
	if req.ownsAsset {
		if err := s.stores.Memes.Delete(ctx, req.key); err != nil {
			s.log(ctx).WithError(err).WithField("key", req.key).Error("Failed to rollback original")
		}
	}
}

func (s *IngestService) writeThumbnail(ctx context.Context, key string, data []byte) error {
	thumb, err := s.thumbnailer.Render(data)
	if err != nil {
		return err
	}
	if err := s.stores.Thumbnails.Write(ctx, key, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
		return &domain.StorageIOError{Op: "write", Path: key, Err: err}
	}
	return nil
}

// readOriginal loads the stored bytes of a record's original.
func (s *IngestService) readOriginal(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.stores.Memes.Read(ctx, key)
	if err != nil {
		return nil, &domain.StorageIOError{Op: "read", Path: key, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &domain.StorageIOError{Op: "read", Path: key, Err: err}
	}
	return data, nil
}

// Get returns one record.
func (s *IngestService) Get(ctx context.Context, id string) (*domain.Meme, error) {
	return s.memeRepo.GetByID(ctx, id)
}

// ListAll returns every record, oldest first, including untagged ones.
func (s *IngestService) ListAll(ctx context.Context) ([]domain.Meme, error) {
	return s.memeRepo.ListAll(ctx)
}

// Delete removes a record, then its original and thumbnail. File removal
// failures are logged; the record stays deleted.
func (s *IngestService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	meme, err := s.memeRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.memeRepo.Delete(ctx, id); err != nil {
		return err
	}

	log := s.log(ctx).WithField(logger.FieldMemeID, id)
	if err := s.stores.Memes.Delete(ctx, meme.AssetPath); err != nil {
		log.WithError(err).Warn("Failed to delete original")
	}
	if meme.HasThumbnail() {
		if err := s.stores.Thumbnails.Delete(ctx, *meme.ThumbnailPath); err != nil {
			log.WithError(err).Warn("Failed to delete thumbnail")
		}
	}
	log.Info("Deleted meme")
	return nil
}

// assetLock is the keyed-mutex key guarding a memes store key until it is indexed.
func assetLock(key string) string {
	return "asset:" + key
}

// withMemeID attaches the record id to an extraction failure.
func withMemeID(err error, id string) error {
	var extractionErr *domain.ExtractionError
	if errors.As(err, &extractionErr) {
		return &domain.ExtractionError{MemeID: id, Attempts: extractionErr.Attempts, Err: extractionErr.Err}
	}
	return &domain.ExtractionError{MemeID: id, Attempts: 1, Err: err}
}
