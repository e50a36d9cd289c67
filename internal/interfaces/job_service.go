package interfaces

import (
	"context"

	"github.com/droverhq/drover/internal/models"
)

// JobService owns job lifecycle: creation, monotonic status transitions,
// cooperative cancellation and metrics aggregation. Mutating a terminal
// job fails with JobExecutionError naming the illegal transition.
type JobService interface {
	CreateJob(ctx context.Context, taskType models.TaskType, taskID int, opts models.RunOptions) (*models.Job, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, results models.ResultCounts) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error

	// Cancel sets the cooperative cancellation flag for a queued or
	// running job. Returns true if the job was cancellable.
	Cancel(ctx context.Context, jobID string) (bool, error)

	// IsCancelled reports whether the cancellation flag is set; checked
	// by the orchestrator between entity iterations.
	IsCancelled(jobID string) bool

	// FinalizeCancelled moves a running job whose cancellation flag was
	// observed into the cancelled state, keeping accumulated counts.
	FinalizeCancelled(ctx context.Context, jobID string, results models.ResultCounts) error

	GetStatus(ctx context.Context, jobID string) (*models.Summary, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Summary, error)
	DeleteJob(ctx context.Context, jobID string) error
	Stats(ctx context.Context) (*JobStats, error)
}

// Orchestrator is the worker-side entry point: accepts a start-request,
// creates a trackable job and drives the run asynchronously.
type Orchestrator interface {
	Start(ctx context.Context, taskType models.TaskType, taskID int, opts models.RunOptions) (string, error)
}
