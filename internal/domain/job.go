package domain

import "time"

// JobStatus represents the status of a maintenance job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// JobKind names a batch maintenance operation.
type JobKind string

const (
	JobRetagAll   JobKind = "retag_all"
	JobRescan     JobKind = "rescan"
	JobThumbnails JobKind = "regenerate_thumbnails"
	JobImport     JobKind = "import"
)

// MaintenanceJob records one run of a batch operation and its progress counters.
type MaintenanceJob struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Kind        JobKind    `gorm:"type:text;not null;index" json:"kind"`
	Status      JobStatus  `gorm:"type:text;default:running" json:"status"`
	Succeeded   int        `gorm:"default:0" json:"succeeded"`
	Skipped     int        `gorm:"default:0" json:"skipped"`
	Failed      int        `gorm:"default:0" json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorLog    string     `json:"error_log,omitempty"`
	RequestedBy string     `gorm:"type:text" json:"requested_by,omitempty"`
}

// TableName returns the database table name for MaintenanceJob.
func (MaintenanceJob) TableName() string {
	return "maintenance_jobs"
}
