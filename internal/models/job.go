package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// RunOptions carries the per-run knobs supplied with a start-request.
// BatchIndex/BatchCount drive deterministic partitioning across a worker
// pool: a worker keeps only entities where hash(entity_id) % BatchCount
// == BatchIndex.
type RunOptions struct {
	Concurrency  int    `json:"concurrency" toml:"concurrency" validate:"gte=0,lte=64"`
	Headless     bool   `json:"headless" toml:"headless"`
	BatchIndex   int    `json:"batch_index" toml:"batch_index" validate:"gte=0"`
	BatchCount   int    `json:"batch_count" toml:"batch_count" validate:"gte=0"`
	UploadMethod string `json:"upload_method,omitempty" toml:"upload_method" validate:"omitempty,oneof=browser api"`
}

// Normalized returns a copy with zero values replaced by safe defaults
func (o RunOptions) Normalized() RunOptions {
	out := o
	if out.Concurrency <= 0 {
		out.Concurrency = 1
	}
	if out.BatchCount <= 0 {
		out.BatchCount = 1
		out.BatchIndex = 0
	}
	if out.BatchIndex >= out.BatchCount {
		out.BatchIndex = out.BatchIndex % out.BatchCount
	}
	return out
}

// ResultCounts aggregates per-entity outcomes for a job.
// Success+Failure counts processed entities; Skipped counts entities
// that were locked by another holder and therefore not processed here.
type ResultCounts struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Skipped int `json:"skipped"`
}

// Job is one orchestrator invocation for a (task_type, task_id) pair.
// Status transitions are monotonic: queued -> running -> terminal.
// A terminal job is never mutated again.
type Job struct {
	ID          string       `json:"job_id" badgerhold:"key"`
	TaskType    TaskType     `json:"task_type"`
	TaskID      int          `json:"task_id"`
	Status      JobStatus    `json:"status"`
	Options     RunOptions   `json:"options"`
	Results     ResultCounts `json:"result_counts"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// NewJob creates a queued job with a fresh ID
func NewJob(taskType TaskType, taskID int, opts RunOptions) *Job {
	return &Job{
		ID:        uuid.New().String(),
		TaskType:  taskType,
		TaskID:    taskID,
		Status:    JobStatusQueued,
		Options:   opts.Normalized(),
		CreatedAt: time.Now().UTC(),
	}
}

// CanTransition reports whether moving to next is a legal lifecycle step
func (j *Job) CanTransition(next JobStatus) bool {
	switch j.Status {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	default:
		return false
	}
}

// MarkRunning transitions the job to running and stamps StartedAt
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := time.Now().UTC()
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed with final counts
func (j *Job) MarkCompleted(results ResultCounts) {
	j.Status = JobStatusCompleted
	j.Results = results
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed with an error message
func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.Error = errMsg
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkCancelled transitions the job to cancelled, keeping whatever
// counts accumulated before the cancellation flag was observed.
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// Summary is the wire representation returned by the jobs API
type Summary struct {
	JobID       string       `json:"job_id"`
	TaskType    TaskType     `json:"task_type"`
	TaskID      int          `json:"task_id"`
	Status      JobStatus    `json:"status"`
	Results     ResultCounts `json:"result_counts"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Summarize builds the API summary for the job
func (j *Job) Summarize() Summary {
	return Summary{
		JobID:       j.ID,
		TaskType:    j.TaskType,
		TaskID:      j.TaskID,
		Status:      j.Status,
		Results:     j.Results,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// Validate checks structural invariants before persistence
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if !IsValidTaskType(j.TaskType) {
		return fmt.Errorf("unknown task type: %s", j.TaskType)
	}
	if j.Status.IsTerminal() && j.CompletedAt == nil {
		return fmt.Errorf("terminal job %s missing completed_at", j.ID)
	}
	return nil
}
