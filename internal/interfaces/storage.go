package interfaces

import (
	"context"
	"time"

	"github.com/droverhq/drover/internal/models"
)

// JobListOptions filters job listings
type JobListOptions struct {
	Status   string
	TaskType string
	Limit    int
	Offset   int
}

// JobStats aggregates job counts for the metrics endpoint
type JobStats struct {
	Total     int            `json:"total_jobs"`
	ByStatus  map[string]int `json:"by_status"`
	ByType    map[string]int `json:"by_type"`
}

// JobStorage persists job records
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	CountJobs(ctx context.Context) (int, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)

	// DeleteTerminalBefore evicts terminal jobs completed before cutoff,
	// returning the count removed. Retention housekeeping.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
