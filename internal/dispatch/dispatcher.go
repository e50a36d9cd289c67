package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/models"
)

// DispatchResult is the outcome of one worker's start-request
type DispatchResult struct {
	Worker     string `json:"worker"`
	BatchIndex int    `json:"batch_index"`
	JobID      string `json:"job_id,omitempty"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// startRequest is the worker API start body
type startRequest struct {
	TaskID  int               `json:"task_id"`
	Options models.RunOptions `json:"options"`
}

// startResponse is the worker API start reply
type startResponse struct {
	JobID    string `json:"job_id"`
	Accepted bool   `json:"accepted"`
}

// Dispatcher fans one start-request out across the configured worker
// pool. Worker i receives batch_index=i, batch_count=N, so the pool
// collectively claims a disjoint cover of the entity list with no
// coordination. Each worker's request fails independently: a lost
// request means that slice goes unprocessed this run, never that two
// workers process it.
type Dispatcher struct {
	workers []string
	http    *resty.Client
	limiter *rate.Limiter
	bound   int
	logger  arbor.ILogger
}

// NewDispatcher creates a dispatcher for the configured pool
func NewDispatcher(config *common.DispatchConfig, logger arbor.ILogger) *Dispatcher {
	httpClient := resty.New().
		SetTimeout(config.Timeout.Std()).
		SetAuthToken(config.BearerToken).
		SetHeader("Content-Type", "application/json")

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	bound := config.DispatchConcurrency
	if bound <= 0 {
		bound = 1
	}

	return &Dispatcher{
		workers: config.Workers,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		bound:   bound,
		logger:  logger,
	}
}

// Dispatch sends the start-request to every worker in the pool and
// returns one result per worker, in pool order.
func (d *Dispatcher) Dispatch(ctx context.Context, taskType models.TaskType, taskID int, opts models.RunOptions) ([]DispatchResult, error) {
	if len(d.workers) == 0 {
		return nil, fmt.Errorf("no workers configured")
	}
	if !models.IsValidTaskType(taskType) {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}

	batchCount := len(d.workers)
	results := make([]DispatchResult, batchCount)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, d.bound)

	for i, worker := range d.workers {
		wg.Add(1)
		go func(idx int, workerURL string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[idx] = d.dispatchOne(ctx, workerURL, taskType, taskID, opts, idx, batchCount)
		}(i, worker)
	}
	wg.Wait()

	return results, nil
}

// dispatchOne sends one worker its slice assignment
func (d *Dispatcher) dispatchOne(ctx context.Context, workerURL string, taskType models.TaskType, taskID int, opts models.RunOptions, batchIndex, batchCount int) DispatchResult {
	result := DispatchResult{Worker: workerURL, BatchIndex: batchIndex}

	if err := d.limiter.Wait(ctx); err != nil {
		result.Err = err
		result.Error = err.Error()
		return result
	}

	workerOpts := opts
	workerOpts.BatchIndex = batchIndex
	workerOpts.BatchCount = batchCount

	var reply startResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(startRequest{TaskID: taskID, Options: workerOpts}).
		SetResult(&reply).
		Post(fmt.Sprintf("%s/jobs/%s/start", workerURL, taskType))

	switch {
	case err != nil:
		result.Err = err
	case resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK:
		result.Err = fmt.Errorf("worker returned %d: %s", resp.StatusCode(), resp.String())
	case !reply.Accepted:
		result.Err = fmt.Errorf("worker rejected start-request")
	default:
		result.JobID = reply.JobID
	}

	if result.Err != nil {
		result.Error = result.Err.Error()
		d.logger.Warn().
			Err(result.Err).
			Str("worker", workerURL).
			Int("batch_index", batchIndex).
			Msg("Worker dispatch failed")
		return result
	}

	d.logger.Info().
		Str("worker", workerURL).
		Str("job_id", result.JobID).
		Int("batch_index", batchIndex).
		Int("batch_count", batchCount).
		Msg("Worker accepted job")

	return result
}
