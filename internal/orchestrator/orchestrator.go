package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/models"
)

// Orchestrator drives one job run: fetch the entity aggregate, keep this
// worker's partition, then process entities under bounded concurrency
// with a per-entity exclusive lock. Per-entity automation failures are
// counted, never fatal; only systemic failures (aggregate unreachable,
// a runner contract violation) fail the job.
type Orchestrator struct {
	factory   interfaces.RunnerFactory
	jobs      interfaces.JobService
	locks     interfaces.LockManager
	aggregate interfaces.AggregateClient
	events    interfaces.EventService
	metrics   *metrics.Metrics
	logger    arbor.ILogger

	lockTTL       time.Duration
	entityTimeout time.Duration
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	factory interfaces.RunnerFactory,
	jobs interfaces.JobService,
	locks interfaces.LockManager,
	aggregate interfaces.AggregateClient,
	events interfaces.EventService,
	m *metrics.Metrics,
	lockTTL time.Duration,
	entityTimeout time.Duration,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		factory:       factory,
		jobs:          jobs,
		locks:         locks,
		aggregate:     aggregate,
		events:        events,
		metrics:       m,
		logger:        logger,
		lockTTL:       lockTTL,
		entityTimeout: entityTimeout,
	}
}

// Start validates the request, creates a queued job and returns its ID
// immediately. The run itself continues on a background goroutine and
// outlives the request context.
func (o *Orchestrator) Start(ctx context.Context, taskType models.TaskType, taskID int, opts models.RunOptions) (string, error) {
	runner, err := o.factory.Create(taskType)
	if err != nil {
		return "", err
	}

	job, err := o.jobs.CreateJob(ctx, taskType, taskID, opts)
	if err != nil {
		return "", err
	}

	common.SafeGo(o.logger, "job-run-"+job.ID, func() {
		o.run(job, runner)
	})

	return job.ID, nil
}

// run executes the full job lifecycle for one accepted job
func (o *Orchestrator) run(job *models.Job, runner interfaces.TaskRunner) {
	ctx := context.Background()
	kind := string(job.TaskType)
	opts := job.Options

	logger := o.logger.WithCorrelationId(job.ID)

	if o.jobs.IsCancelled(job.ID) {
		// Cancelled while queued; the job manager already finalized it
		return
	}

	agg, err := o.aggregate.FetchAggregate(ctx, kind, job.TaskID)
	if err != nil {
		o.failJob(ctx, job, fmt.Errorf("fetch aggregate: %w", err))
		return
	}

	entities := partition(agg.Entities, opts.BatchIndex, opts.BatchCount)

	logger.Info().
		Int("total_entities", len(agg.Entities)).
		Int("partition_entities", len(entities)).
		Int("batch_index", opts.BatchIndex).
		Int("batch_count", opts.BatchCount).
		Msg("Aggregate fetched and partitioned")

	if err := o.jobs.MarkRunning(ctx, job.ID); err != nil {
		logger.Warn().Err(err).Msg("Could not mark job running")
		return
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		counts      models.ResultCounts
		systemicErr error
	)
	semaphore := make(chan struct{}, opts.Concurrency)

	for _, item := range entities {
		if o.jobs.IsCancelled(job.ID) {
			logger.Info().Msg("Cancellation flag observed, stopping entity loop")
			break
		}

		semaphore <- struct{}{}
		wg.Add(1)

		entity := item
		common.SafeGo(logger, "entity-"+entity.EntityID, func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome, skipped, err := o.processEntity(ctx, job, runner, entity, logger)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if systemicErr == nil {
					systemicErr = err
				}
				counts.Failure++
			case skipped:
				counts.Skipped++
			case outcome.Failure > 0:
				counts.Failure++
			default:
				counts.Success++
			}
		})
	}

	wg.Wait()

	o.finishJob(ctx, job, counts, systemicErr, logger)
}

// processEntity runs acquire -> execute -> push -> release for one
// entity. skipped means the entity was owned elsewhere (or the lock
// store was unreachable); err means a systemic runner failure.
func (o *Orchestrator) processEntity(ctx context.Context, job *models.Job, runner interfaces.TaskRunner, item *models.EntityWorkItem, logger arbor.ILogger) (models.TaskOutcome, bool, error) {
	kind := string(job.TaskType)

	granted, err := o.locks.Acquire(ctx, kind, item.EntityID, job.ID, o.lockTTL)
	if err != nil {
		o.metrics.LockAcquires.WithLabelValues("unavailable").Inc()
		logger.Warn().
			Err(err).
			Str("entity_id", item.EntityID).
			Msg("Lock store unavailable, skipping entity")
		o.recordEntity(ctx, job, item, "skipped")
		return models.TaskOutcome{}, true, nil
	}
	if !granted {
		o.metrics.LockAcquires.WithLabelValues("contended").Inc()
		logger.Info().
			Str("entity_id", item.EntityID).
			Msg("Entity locked by another holder, skipping")
		_ = o.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventLockContention,
			Payload: map[string]string{"job_id": job.ID, "kind": kind, "entity_id": item.EntityID},
		})
		o.recordEntity(ctx, job, item, "skipped")
		return models.TaskOutcome{}, true, nil
	}
	o.metrics.LockAcquires.WithLabelValues("granted").Inc()
	defer func() {
		_ = o.locks.Release(ctx, kind, item.EntityID, job.ID)
	}()

	o.metrics.EntitiesInFlight.Inc()
	defer o.metrics.EntitiesInFlight.Dec()

	o.pushEntityStatus(ctx, kind, item, models.EntityStatusRunning, "")

	execCtx, cancel := context.WithTimeout(ctx, o.entityTimeout)
	defer cancel()

	outcome, err := runner.Execute(execCtx, item, job.Options)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// A timed-out entity is an expected failure, not systemic
			outcome = models.TaskOutcome{
				Failure: 1,
				LogText: fmt.Sprintf("entity timed out after %s", o.entityTimeout),
			}
			err = nil
		} else {
			logger.Error().
				Err(err).
				Str("entity_id", item.EntityID).
				Msg("Task runner failed")
			o.pushEntityStatus(ctx, kind, item, models.EntityStatusFailed, err.Error())
			o.recordEntity(ctx, job, item, "failure")
			return models.TaskOutcome{}, false, interfaces.NewJobExecutionError(job.ID, "task runner failed for entity "+item.EntityID, err)
		}
	}

	status := models.EntityStatusCompleted
	entityOutcome := "success"
	if outcome.Failure > 0 {
		status = models.EntityStatusFailed
		entityOutcome = "failure"
	}

	o.pushEntityStatus(ctx, kind, item, status, outcome.LogText)
	if err := o.aggregate.PushEntityCounters(ctx, kind, item.EntityTaskID,
		map[string]int{"success": outcome.Success, "failed": outcome.Failure}); err != nil {
		logger.Warn().
			Err(err).
			Str("entity_id", item.EntityID).
			Msg("Counter push failed")
	}

	o.recordEntity(ctx, job, item, entityOutcome)
	return outcome, false, nil
}

// finishJob finalizes the job record and pushes the task-level status
func (o *Orchestrator) finishJob(ctx context.Context, job *models.Job, counts models.ResultCounts, systemicErr error, logger arbor.ILogger) {
	kind := string(job.TaskType)

	var finalStatus string
	switch {
	case o.jobs.IsCancelled(job.ID):
		finalStatus = string(models.JobStatusCancelled)
		if err := o.jobs.FinalizeCancelled(ctx, job.ID, counts); err != nil {
			logger.Warn().Err(err).Msg("Could not finalize cancelled job")
		}
	case systemicErr != nil:
		finalStatus = string(models.JobStatusFailed)
		if err := o.jobs.MarkFailed(ctx, job.ID, systemicErr.Error()); err != nil {
			logger.Warn().Err(err).Msg("Could not mark job failed")
		}
	default:
		finalStatus = string(models.JobStatusCompleted)
		if err := o.jobs.MarkCompleted(ctx, job.ID, counts); err != nil {
			logger.Warn().Err(err).Msg("Could not mark job completed")
		}
	}

	summary := fmt.Sprintf("job %s: %d succeeded, %d failed, %d skipped",
		finalStatus, counts.Success, counts.Failure, counts.Skipped)
	if err := o.aggregate.PushStatus(ctx, kind, job.TaskID, interfaces.StatusUpdate{
		Status:    &finalStatus,
		LogAppend: &summary,
	}); err != nil {
		logger.Warn().Err(err).Msg("Final status push failed")
	}

	logger.Info().
		Str("status", finalStatus).
		Int("success", counts.Success).
		Int("failure", counts.Failure).
		Int("skipped", counts.Skipped).
		Msg("Job finished")
}

// failJob marks the job failed before any entity work began
func (o *Orchestrator) failJob(ctx context.Context, job *models.Job, cause error) {
	execErr := interfaces.NewJobExecutionError(job.ID, "job run failed", cause)

	o.logger.Error().
		Err(execErr).
		Str("job_id", job.ID).
		Msg("Job failed before entity processing")

	if err := o.jobs.MarkFailed(ctx, job.ID, execErr.Error()); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Could not mark job failed")
	}

	failed := string(models.JobStatusFailed)
	msg := execErr.Error()
	_ = o.aggregate.PushStatus(ctx, string(job.TaskType), job.TaskID, interfaces.StatusUpdate{
		Status:    &failed,
		LogAppend: &msg,
	})
}

func (o *Orchestrator) pushEntityStatus(ctx context.Context, kind string, item *models.EntityWorkItem, status models.EntityStatus, logText string) {
	update := interfaces.EntityStatusUpdate{Status: &status}
	if logText != "" {
		update.LogAppend = &logText
	}
	if err := o.aggregate.PushEntityStatus(ctx, kind, item.EntityTaskID, update); err != nil {
		o.logger.Warn().
			Err(err).
			Str("entity_id", item.EntityID).
			Msg("Entity status push failed")
	}
}

func (o *Orchestrator) recordEntity(ctx context.Context, job *models.Job, item *models.EntityWorkItem, outcome string) {
	o.metrics.EntityOutcome.WithLabelValues(string(job.TaskType), outcome).Inc()
	_ = o.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventEntityProcessed,
		Payload: map[string]string{
			"job_id":    job.ID,
			"entity_id": item.EntityID,
			"outcome":   outcome,
		},
	})
}
