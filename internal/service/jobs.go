package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/repository"
)

// ErrJobRunning is returned when a maintenance job is requested while another runs.
var ErrJobRunning = errors.New("a maintenance job is already running")

// JobFunc performs the work of one maintenance job.
type JobFunc func(ctx context.Context) (JobOutcome, error)

// JobRunner runs at most one maintenance job at a time and records each run.
type JobRunner struct {
	jobs   *repository.JobRepository
	logger *logger.Logger

	mu      sync.Mutex
	current *domain.MaintenanceJob
	cancel  context.CancelFunc
}

// NewJobRunner creates a runner. jobs may be nil, in which case runs are not persisted.
func NewJobRunner(jobs *repository.JobRepository, log *logger.Logger) *JobRunner {
	if log == nil {
		log = logger.GetDefault()
	}
	return &JobRunner{jobs: jobs, logger: log.WithField(logger.FieldComponent, "jobs")}
}

// Current returns a snapshot of the running job, or nil.
func (r *JobRunner) Current() *domain.MaintenanceJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	job := *r.current
	return &job
}

// Cancel aborts the running job. It reports false when nothing was running.
func (r *JobRunner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Start launches fn in the background and calls done with the finished job.
// The job outlives ctx; only Cancel stops it.
func (r *JobRunner) Start(ctx context.Context, kind domain.JobKind, requestedBy string, fn JobFunc, done func(*domain.MaintenanceJob, JobOutcome, error)) (*domain.MaintenanceJob, error) {
	jobCtx, job, err := r.begin(context.WithoutCancel(ctx), kind, requestedBy)
	if err != nil {
		return nil, err
	}
	snapshot := *job
	go func() {
		outcome, err := r.execute(jobCtx, job, fn)
		if done != nil {
			done(job, outcome, err)
		}
	}()
	return &snapshot, nil
}

// Run executes fn synchronously under the same single-job rule as Start.
func (r *JobRunner) Run(ctx context.Context, kind domain.JobKind, requestedBy string, fn JobFunc) (*domain.MaintenanceJob, JobOutcome, error) {
	jobCtx, job, err := r.begin(ctx, kind, requestedBy)
	if err != nil {
		return nil, JobOutcome{}, err
	}
	outcome, err := r.execute(jobCtx, job, fn)
	return job, outcome, err
}

func (r *JobRunner) begin(ctx context.Context, kind domain.JobKind, requestedBy string) (context.Context, *domain.MaintenanceJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return nil, nil, ErrJobRunning
	}

	job := &domain.MaintenanceJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      domain.JobStatusRunning,
		StartedAt:   time.Now(),
		RequestedBy: requestedBy,
	}
	if r.jobs != nil {
		if err := r.jobs.Create(ctx, job); err != nil {
			return nil, nil, err
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	log := r.logger.WithFields(logger.Fields{logger.FieldJobID: job.ID, "kind": string(kind)})
	jobCtx = log.WithContext(jobCtx)

	r.current = job
	r.cancel = cancel
	return jobCtx, job, nil
}

func (r *JobRunner) execute(ctx context.Context, job *domain.MaintenanceJob, fn JobFunc) (JobOutcome, error) {
	start := time.Now()
	outcome, err := fn(ctx)

	completed := time.Now()
	r.mu.Lock()
	job.Succeeded = outcome.Succeeded
	job.Skipped = outcome.Skipped
	job.Failed = outcome.Failed
	job.CompletedAt = &completed
	switch {
	case errors.Is(err, context.Canceled):
		job.Status = domain.JobStatusCancelled
	case err != nil:
		job.Status = domain.JobStatusFailed
		job.ErrorLog = err.Error()
	default:
		job.Status = domain.JobStatusCompleted
		if len(outcome.Failures) > 0 {
			job.ErrorLog = FormatFailures(outcome.Failures, 20)
		}
	}
	r.cancel()
	r.current = nil
	r.cancel = nil
	r.mu.Unlock()

	if r.jobs != nil {
		if uerr := r.jobs.Update(context.WithoutCancel(ctx), job); uerr != nil {
			logger.FromContext(ctx).WithError(uerr).Error("Failed to record job result")
		}
	}

	entry := logger.Since(start).WithStatus(string(job.Status))
	if job.Status == domain.JobStatusFailed {
		entry.Warn(ctx, "Job failed: succeeded=%d skipped=%d failed=%d", job.Succeeded, job.Skipped, job.Failed)
	} else {
		entry.Info(ctx, "Job finished: succeeded=%d skipped=%d failed=%d", job.Succeeded, job.Skipped, job.Failed)
	}
	return outcome, err
}
