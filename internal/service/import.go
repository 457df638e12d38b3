package service

import (
	"context"
	"errors"
	"os"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/source"
)

const importBatchSize = 100

// ImportSummary reports an Import run.
type ImportSummary struct {
	Added      int
	Unindexed  int // added, but extraction failed
	Duplicates int
	Failed     int
	Failures   []ItemFailure
}

// Outcome converts the summary for job bookkeeping.
func (s ImportSummary) Outcome() JobOutcome {
	return JobOutcome{Succeeded: s.Added, Skipped: s.Duplicates, Failed: s.Failed, Failures: s.Failures}
}

// Import ingests every item of src through the same path as chat uploads.
// Each item's caption becomes its manual tags. Already indexed images are
// counted as duplicates.
func (s *IngestService) Import(ctx context.Context, src source.Source) (*ImportSummary, error) {
	log := s.log(ctx).WithField("source", src.Name())
	summary := &ImportSummary{}

	cursor := ""
	for {
		items, next, err := src.FetchBatch(ctx, cursor, importBatchSize)
		if err != nil {
			return summary, err
		}

		byID := make(map[string]source.Item, len(items))
		ids := make([]string, 0, len(items))
		for _, item := range items {
			byID[item.SourceID] = item
			ids = append(ids, item.SourceID)
		}

		runPool(ctx, s.workers, ids, func(ctx context.Context, id string) (outcome, error) {
			item := byID[id]
			data, err := os.ReadFile(item.LocalPath)
			if err != nil {
				return outcomeFailed, &domain.StorageIOError{Op: "read", Path: item.LocalPath, Err: err}
			}
			_, err = s.Ingest(ctx, IngestRequest{Data: data, Caption: item.Caption})
			switch {
			case err == nil:
				return outcomeDone, nil
			case errors.Is(err, domain.ErrDuplicate):
				return outcomeSkipped, nil
			case domain.IsExtractionError(err):
				return outcomeUnindexed, err
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
				summary.Duplicates++
			default:
				summary.Failed++
				summary.Failures = append(summary.Failures, ItemFailure{Item: r.item, Err: r.err.Error()})
			}
		})

		if ctx.Err() != nil || next == "" {
			break
		}
		cursor = next
	}

	log.WithFields(logger.Fields{
		"added":      summary.Added,
		"unindexed":  summary.Unindexed,
		"duplicates": summary.Duplicates,
		"failed":     summary.Failed,
	}).Info("Import completed")
	return summary, ctx.Err()
}
