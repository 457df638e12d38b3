package ocr

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
)

// Retrying retries transient extractor failures with exponential backoff.
// Exhaustion is reported as *domain.ExtractionError.
type Retrying struct {
	next     Extractor
	attempts int
	initial  time.Duration
}

// NewRetrying wraps next. attempts counts the first call; values below 1 mean 1.
func NewRetrying(next Extractor, attempts int, initial time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	return &Retrying{next: next, attempts: attempts, initial: initial}
}

// Extract calls the wrapped extractor until it succeeds, fails permanently,
// the attempts run out or ctx is done.
func (r *Retrying) Extract(ctx context.Context, data []byte, format string) ([]string, error) {
	var tags []string
	attempt := 0

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.initial
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.attempts-1)), ctx)

	op := func() error {
		attempt++
		out, err := r.next.Extract(ctx, data, format)
		if err == nil {
			tags = out
			return nil
		}
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.FromContext(ctx).WithError(err).
			WithField("attempt", attempt).
			WithField("retry_in_ms", wait.Milliseconds()).
			Warn("Tag extraction failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, &domain.ExtractionError{Attempts: attempt, Err: err}
	}
	return tags, nil
}
