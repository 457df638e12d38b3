package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/timmy/memetag/internal/domain"
)

// JobRepository persists maintenance job history.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.MaintenanceJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves the job's counters and status.
func (r *JobRepository) Update(ctx context.Context, job *domain.MaintenanceJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// ListRecent returns the latest jobs, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.MaintenanceJob, error) {
	var jobs []domain.MaintenanceJob
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// MarkInterrupted fails every job still marked running, e.g. after a restart.
func (r *JobRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.MaintenanceJob{}).
		Where("status = ?", domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":    domain.JobStatusFailed,
			"error_log": "interrupted by restart",
		})
	return result.RowsAffected, result.Error
}
