package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/tagging"
)

const clearAction = "clear"

// ItemFailure records why one item of a batch failed.
type ItemFailure struct {
	Item string
	Err  string
}

// JobOutcome is the common shape of batch summaries, stored on maintenance jobs.
type JobOutcome struct {
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []ItemFailure
}

// RetagSummary reports a RetagAll run.
type RetagSummary struct {
	Updated  int
	Skipped  int // records deleted while the batch ran
	Failed   int
	Failures []ItemFailure
}

// Outcome converts the summary for job bookkeeping.
func (s RetagSummary) Outcome() JobOutcome {
	return JobOutcome{Succeeded: s.Updated, Skipped: s.Skipped, Failed: s.Failed, Failures: s.Failures}
}

// RescanSummary reports a Rescan run.
type RescanSummary struct {
	Added     int
	Unindexed int // added, but extraction failed
	Skipped   int
	Failed    int
	Failures  []ItemFailure
}

// Outcome converts the summary for job bookkeeping.
func (s RescanSummary) Outcome() JobOutcome {
	return JobOutcome{Succeeded: s.Added, Skipped: s.Skipped, Failed: s.Failed, Failures: s.Failures}
}

// ThumbnailSummary reports a RegenerateThumbnails run.
type ThumbnailSummary struct {
	Created  int
	Skipped  int
	Failed   int
	Failures []ItemFailure
}

// Outcome converts the summary for job bookkeeping.
func (s ThumbnailSummary) Outcome() JobOutcome {
	return JobOutcome{Succeeded: s.Created, Skipped: s.Skipped, Failed: s.Failed, Failures: s.Failures}
}

// Retag re-runs extraction on the stored original and replaces the tag set.
// The asset bytes are never modified. A record deleted while extraction runs
// yields NotFoundError and is not recreated.
func (s *IngestService) Retag(ctx context.Context, id string) (*domain.Meme, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	meme, err := s.memeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.readOriginal(ctx, meme.AssetPath)
	if err != nil {
		return nil, err
	}

	format := meme.Format
	if format == "" {
		format = formatFromKey(meme.AssetPath)
	}
	ocrTags, err := s.extractor.Extract(ctx, data, format)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, withMemeID(err, id)
	}

	tags := tagging.Merge(ocrTags, meme.ManualTags)
	now := time.Now()
	if err := s.memeRepo.UpdateTags(ctx, id, tags, domain.MemeStatusTagged, &now); err != nil {
		return nil, err
	}

	meme.Tags = tags
	meme.Status = domain.MemeStatusTagged
	meme.TaggedAt = &now
	meme.UpdatedAt = now
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldMemeID: id,
		logger.FieldCount:  len(tags),
	}).Info("Retagged meme")
	return meme, nil
}

// RetagAll retags every record with a bounded worker pool. Per-record failures
// are collected; cancellation stops dispatch and keeps finished work.
func (s *IngestService) RetagAll(ctx context.Context) (*RetagSummary, error) {
	memes, err := s.memeRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(memes))
	for _, m := range memes {
		ids = append(ids, m.ID)
	}

	summary := &RetagSummary{}
	runPool(ctx, s.workers, ids, func(ctx context.Context, id string) (outcome, error) {
		if _, err := s.Retag(ctx, id); err != nil {
			if domain.IsNotFound(err) {
				return outcomeSkipped, nil
			}
			return outcomeFailed, err
		}
		return outcomeDone, nil
	}, func(r itemResult) {
		switch r.outcome {
		case outcomeDone:
			summary.Updated++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, ItemFailure{Item: r.item, Err: r.err.Error()})
		}
	})

	s.log(ctx).WithFields(logger.Fields{
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Retag completed")
	return summary, ctx.Err()
}

// Rescan indexes every file in the memes store that no record references.
func (s *IngestService) Rescan(ctx context.Context) (*RescanSummary, error) {
	keys, err := s.stores.Memes.List(ctx)
	if err != nil {
		return nil, &domain.StorageIOError{Op: "list", Path: "memes", Err: err}
	}
	return s.RescanFiles(ctx, keys)
}

// RescanFiles indexes the given store keys that no record references yet, using
// the same path as Ingest. Running it again over the same keys adds nothing.
func (s *IngestService) RescanFiles(ctx context.Context, keys []string) (*RescanSummary, error) {
	known, err := s.memeRepo.AssetPathSet(ctx)
	if err != nil {
		return nil, err
	}

	summary := &RescanSummary{}
	var pending []string
	for _, key := range keys {
		if _, ok := known[key]; ok {
			summary.Skipped++
			continue
		}
		pending = append(pending, key)
	}

	runPool(ctx, s.workers, pending, func(ctx context.Context, key string) (outcome, error) {
		unlock := s.locks.Lock(assetLock(key))
		defer unlock()

		// An upload may have indexed the file since the snapshot above.
		existing, err := s.memeRepo.GetByAssetPath(ctx, key)
		if err != nil {
			return outcomeFailed, err
		}
		if existing != nil {
			return outcomeSkipped, nil
		}

		data, err := s.readOriginal(ctx, key)
		if err != nil {
			return outcomeFailed, err
		}
		info, err := inspectImage(data)
		if err != nil {
			return outcomeFailed, err
		}
		_, err = s.index(ctx, indexRequest{
			id:   uuid.NewString(),
			key:  key,
			data: data,
			info: info,
			hash: calculateMD5(data),
		})
		switch {
		case err == nil:
			return outcomeDone, nil
		case domain.IsExtractionError(err):
			return outcomeUnindexed, err
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// indexed concurrently by another rescan
			return outcomeSkipped, nil
		default:
			return outcomeFailed, err
		}
	}, func(r itemResult) {
		switch r.outcome {
		case outcomeDone:
			summary.Added++
		case outcomeUnindexed:
			summary.Added++
			summary.Unindexed++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, ItemFailure{Item: r.item, Err: r.err.Error()})
		}
	})

	s.log(ctx).WithFields(logger.Fields{
		"added":     summary.Added,
		"unindexed": summary.Unindexed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("Rescan completed")
	return summary, ctx.Err()
}

// RegenerateThumbnails derives a thumbnail for every record whose thumbnail is
// missing or points at a file that no longer exists.
func (s *IngestService) RegenerateThumbnails(ctx context.Context) (*ThumbnailSummary, error) {
	memes, err := s.memeRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Meme, len(memes))
	ids := make([]string, 0, len(memes))
	for _, m := range memes {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	summary := &ThumbnailSummary{}
	runPool(ctx, s.workers, ids, func(ctx context.Context, id string) (outcome, error) {
		meme := byID[id]
		if meme.HasThumbnail() {
			ok, err := s.stores.Thumbnails.Exists(ctx, *meme.ThumbnailPath)
			if err != nil {
				return outcomeFailed, err
			}
			if ok {
				return outcomeSkipped, nil
			}
		}
		data, err := s.readOriginal(ctx, meme.AssetPath)
		if err != nil {
			return outcomeFailed, err
		}
		key := thumbnailKey(id)
		if err := s.writeThumbnail(ctx, key, data); err != nil {
			return outcomeFailed, err
		}
		if err := s.memeRepo.SetThumbnail(ctx, id, key); err != nil {
			if domain.IsNotFound(err) {
				_ = s.stores.Thumbnails.Delete(context.WithoutCancel(ctx), key)
				return outcomeSkipped, nil
			}
			return outcomeFailed, err
		}
		return outcomeDone, nil
	}, func(r itemResult) {
		switch r.outcome {
		case outcomeDone:
			summary.Created++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, ItemFailure{Item: r.item, Err: r.err.Error()})
		}
	})

	s.log(ctx).WithFields(logger.Fields{
		"created": summary.Created,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Thumbnail regeneration completed")
	return summary, ctx.Err()
}

// RequestClear starts the two-phase clear and returns the confirmation token
// that ConfirmClear expects.
func (s *IngestService) RequestClear() string {
	return s.signer.SignAction(clearAction, s.confirmTTL)
}

// ConfirmClear deletes every index record when token is a live confirmation.
// Asset files are kept so a later Rescan can restore the index.
func (s *IngestService) ConfirmClear(ctx context.Context, token string) (int64, error) {
	if err := s.signer.VerifyAction(clearAction, token); err != nil {
		return 0, err
	}
	n, err := s.memeRepo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.log(ctx).WithField(logger.FieldCount, n).Warn("Meme index cleared")
	return n, nil
}

// FormatFailures renders at most limit failures, one per line.
func FormatFailures(failures []ItemFailure, limit int) string {
	var b strings.Builder
	for i, f := range failures {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more\n", len(failures)-limit)
			break
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Item, f.Err)
	}
	return b.String()
}
