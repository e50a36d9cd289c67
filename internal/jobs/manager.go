package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/models"
)

// Manager implements JobService on top of a JobStorage. Status moves are
// monotonic (queued -> running -> terminal); any attempt to mutate a
// terminal job is rejected with a JobExecutionError naming the illegal
// transition. Cancellation is a cooperative in-memory flag: the
// orchestrator checks it between entities, it never interrupts one.
type Manager struct {
	storage interfaces.JobStorage
	events  interfaces.EventService
	metrics *metrics.Metrics
	logger  arbor.ILogger

	cancelled map[string]bool
	mu        sync.RWMutex
}

// NewManager creates a job manager
func NewManager(storage interfaces.JobStorage, events interfaces.EventService, m *metrics.Metrics, logger arbor.ILogger) *Manager {
	return &Manager{
		storage:   storage,
		events:    events,
		metrics:   m,
		logger:    logger,
		cancelled: make(map[string]bool),
	}
}

// CreateJob persists a new queued job
func (m *Manager) CreateJob(ctx context.Context, taskType models.TaskType, taskID int, opts models.RunOptions) (*models.Job, error) {
	if !models.IsValidTaskType(taskType) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrInvalidTaskType, taskType)
	}

	job := models.NewJob(taskType, taskID, opts)
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	m.metrics.JobsStarted.WithLabelValues(string(taskType)).Inc()
	m.publishStatusChange(ctx, job)

	m.logger.Info().
		Str("job_id", job.ID).
		Str("task_type", string(taskType)).
		Int("task_id", taskID).
		Int("batch_index", job.Options.BatchIndex).
		Int("batch_count", job.Options.BatchCount).
		Msg("Job created")

	return job, nil
}

// MarkRunning transitions a queued job to running
func (m *Manager) MarkRunning(ctx context.Context, jobID string) error {
	return m.transition(ctx, jobID, models.JobStatusRunning, func(job *models.Job) {
		job.MarkRunning()
	})
}

// MarkCompleted transitions a running job to completed with final counts
func (m *Manager) MarkCompleted(ctx context.Context, jobID string, results models.ResultCounts) error {
	return m.transition(ctx, jobID, models.JobStatusCompleted, func(job *models.Job) {
		job.MarkCompleted(results)
	})
}

// MarkFailed transitions a job to failed with an error message
func (m *Manager) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return m.transition(ctx, jobID, models.JobStatusFailed, func(job *models.Job) {
		job.MarkFailed(errMsg)
	})
}

// Cancel sets the cooperative cancellation flag. A queued job is
// cancelled immediately; a running job keeps its flag until the
// orchestrator observes it between entities and finalizes the record.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.IsTerminal() {
		return false, nil
	}

	m.mu.Lock()
	m.cancelled[jobID] = true
	m.mu.Unlock()

	// A terminal transition can land between the status check and the
	// flag write; its map cleanup runs before our entry exists, so the
	// flag would outlive the job. Re-check and undo.
	job, err = m.storage.GetJob(ctx, jobID)
	if err != nil || job.Status.IsTerminal() {
		m.mu.Lock()
		delete(m.cancelled, jobID)
		m.mu.Unlock()
		return false, err
	}

	if job.Status == models.JobStatusQueued {
		if err := m.transition(ctx, jobID, models.JobStatusCancelled, func(j *models.Job) {
			j.MarkCancelled()
		}); err != nil {
			return false, err
		}
	}

	m.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	return true, nil
}

// IsCancelled reports whether the cancellation flag is set for jobID
func (m *Manager) IsCancelled(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelled[jobID]
}

// FinalizeCancelled moves a running job whose flag was observed into the
// cancelled state, keeping the counts accumulated so far.
func (m *Manager) FinalizeCancelled(ctx context.Context, jobID string, results models.ResultCounts) error {
	err := m.transition(ctx, jobID, models.JobStatusCancelled, func(job *models.Job) {
		job.Results = results
		job.MarkCancelled()
	})

	var execErr *interfaces.JobExecutionError
	if errors.As(err, &execErr) {
		// The job went terminal before the finalize landed; the counts
		// accumulated during this run are dropped with it.
		m.logger.Warn().
			Str("job_id", jobID).
			Int("success", results.Success).
			Int("failure", results.Failure).
			Int("skipped", results.Skipped).
			Msg("Cancellation finalize lost to a terminal transition, run counts dropped")
	}
	return err
}

// GetStatus returns the API summary for one job
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*models.Summary, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	summary := job.Summarize()
	return &summary, nil
}

// ListJobs returns summaries matching the filter
func (m *Manager) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Summary, error) {
	jobList, err := m.storage.ListJobs(ctx, opts)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.Summary, 0, len(jobList))
	for _, job := range jobList {
		summary := job.Summarize()
		summaries = append(summaries, &summary)
	}
	return summaries, nil
}

// DeleteJob removes a non-running job record
func (m *Manager) DeleteJob(ctx context.Context, jobID string) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning {
		return interfaces.NewJobExecutionError(jobID, "cannot delete a running job; stop it first", nil)
	}

	if err := m.storage.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.cancelled, jobID)
	m.mu.Unlock()

	return nil
}

// Stats aggregates job counts by status and task type
func (m *Manager) Stats(ctx context.Context) (*interfaces.JobStats, error) {
	total, err := m.storage.CountJobs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &interfaces.JobStats{
		Total:    total,
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}

	for _, status := range []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusRunning,
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCancelled,
	} {
		count, err := m.storage.CountJobsByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			stats.ByStatus[string(status)] = count
		}
	}

	jobList, err := m.storage.ListJobs(ctx, &interfaces.JobListOptions{})
	if err != nil {
		return nil, err
	}
	for _, job := range jobList {
		stats.ByType[string(job.TaskType)]++
	}

	return stats, nil
}

// PurgeTerminalBefore evicts terminal jobs completed before cutoff
func (m *Manager) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return m.storage.DeleteTerminalBefore(ctx, cutoff)
}

// transition loads, checks, mutates and saves one job under the
// monotonic lifecycle rules.
func (m *Manager) transition(ctx context.Context, jobID string, next models.JobStatus, mutate func(*models.Job)) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransition(next) {
		return interfaces.NewJobExecutionError(jobID,
			fmt.Sprintf("illegal transition %s -> %s", job.Status, next), nil)
	}

	mutate(job)

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", jobID, err)
	}

	if job.Status.IsTerminal() {
		m.metrics.JobsFinished.WithLabelValues(string(job.TaskType), string(job.Status)).Inc()
		if job.StartedAt != nil && job.CompletedAt != nil {
			m.metrics.JobDuration.WithLabelValues(string(job.TaskType)).
				Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
		}

		m.mu.Lock()
		delete(m.cancelled, jobID)
		m.mu.Unlock()
	}

	m.publishStatusChange(ctx, job)

	m.logger.Info().
		Str("job_id", jobID).
		Str("status", string(job.Status)).
		Msg("Job status changed")

	return nil
}

func (m *Manager) publishStatusChange(ctx context.Context, job *models.Job) {
	_ = m.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobStatusChange,
		Payload: job.Summarize(),
	})
}
