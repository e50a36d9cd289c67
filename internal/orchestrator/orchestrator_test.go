package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/jobs"
	"github.com/droverhq/drover/internal/locks"
	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/models"
	"github.com/droverhq/drover/internal/runner"
	"github.com/droverhq/drover/internal/services/events"
	"github.com/droverhq/drover/internal/storage/badger"
)

// hookEngine is a deterministic automation engine that records which
// entities it processed and can run a hook on each call.
type hookEngine struct {
	mu        sync.Mutex
	processed []string
	onExecute func(call int)
	err       error
}

func (e *hookEngine) Execute(_ context.Context, item *models.EntityWorkItem, _ map[string]interface{}) (int, int, string, error) {
	e.mu.Lock()
	e.processed = append(e.processed, item.EntityID)
	call := len(e.processed)
	hook := e.onExecute
	e.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if e.err != nil {
		return 0, 0, "", e.err
	}
	return 1, 0, "ok", nil
}

func (e *hookEngine) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.processed))
	copy(out, e.processed)
	return out
}

// fakeAggregateClient serves a fixed aggregate and records pushes
type fakeAggregateClient struct {
	mu            sync.Mutex
	agg           *models.Aggregate
	fetchErr      error
	finalStatuses []string
}

func (f *fakeAggregateClient) FetchAggregate(_ context.Context, _ string, _ int) (*models.Aggregate, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.agg, nil
}

func (f *fakeAggregateClient) PushStatus(_ context.Context, _ string, _ int, update interfaces.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if update.Status != nil {
		f.finalStatuses = append(f.finalStatuses, *update.Status)
	}
	return nil
}

func (f *fakeAggregateClient) PushEntityStatus(_ context.Context, _ string, _ int, _ interfaces.EntityStatusUpdate) error {
	return nil
}

func (f *fakeAggregateClient) PushEntityCounters(_ context.Context, _ string, _ int, _ map[string]int) error {
	return nil
}

func (f *fakeAggregateClient) DownloadMedia(_ context.Context, _ string) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeAggregateClient) lastStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finalStatuses) == 0 {
		return ""
	}
	return f.finalStatuses[len(f.finalStatuses)-1]
}

type fakeUniquifier struct{}

func (fakeUniquifier) Uniquify(_ context.Context, path string) (string, error) { return path, nil }

type harness struct {
	orch    *Orchestrator
	jobs    *jobs.Manager
	locks   *locks.Manager
	client  *fakeAggregateClient
	engine  *hookEngine
}

func newHarness(t *testing.T, engine *hookEngine, client *fakeAggregateClient) *harness {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventBus := events.NewService(logger)
	m := metrics.New()
	jobMgr := jobs.NewManager(badger.NewJobStorage(db, logger), eventBus, m, logger)
	lockMgr := locks.NewManager(badger.NewLockStorage(db, logger), logger)
	factory := runner.NewDefaultFactory(engine, fakeUniquifier{}, client, logger)

	orch := NewOrchestrator(factory, jobMgr, lockMgr, client, eventBus, m,
		time.Minute, 5*time.Second, logger)

	return &harness{orch: orch, jobs: jobMgr, locks: lockMgr, client: client, engine: engine}
}

func aggregateOf(n int) *models.Aggregate {
	agg := &models.Aggregate{}
	for i := 0; i < n; i++ {
		agg.Entities = append(agg.Entities, &models.EntityWorkItem{
			EntityID:     fmt.Sprintf("acct_%d", i),
			EntityTaskID: 100 + i,
			Payload:      map[string]interface{}{"username": fmt.Sprintf("u%d", i)},
		})
	}
	return agg
}

func waitForTerminal(t *testing.T, h *harness, jobID string) *models.Summary {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		summary, err := h.jobs.GetStatus(context.Background(), jobID)
		require.NoError(t, err)
		if summary.Status.IsTerminal() {
			return summary
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestRunProcessesAllEntitiesSingleWorker(t *testing.T) {
	engine := &hookEngine{}
	client := &fakeAggregateClient{agg: aggregateOf(5)}
	h := newHarness(t, engine, client)

	jobID, err := h.orch.Start(context.Background(), models.TaskTypeWarmup, 42,
		models.RunOptions{Concurrency: 2, BatchCount: 1})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	summary := waitForTerminal(t, h, jobID)
	assert.Equal(t, models.JobStatusCompleted, summary.Status)
	assert.Equal(t, 5, summary.Results.Success+summary.Results.Failure)
	assert.Equal(t, 0, summary.Results.Skipped)
	assert.Len(t, engine.seen(), 5)
	assert.Equal(t, string(models.JobStatusCompleted), client.lastStatus())

	// Every entity lock was released: a fresh holder can take each one
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		granted, err := h.locks.Acquire(ctx, string(models.TaskTypeWarmup),
			fmt.Sprintf("acct_%d", i), "probe", time.Minute)
		require.NoError(t, err)
		assert.True(t, granted, "lock for acct_%d was not released", i)
	}
}

func TestUnknownTaskTypeFailsFastWithoutJob(t *testing.T) {
	h := newHarness(t, &hookEngine{}, &fakeAggregateClient{agg: aggregateOf(1)})

	_, err := h.orch.Start(context.Background(), models.TaskType("teleport"), 1, models.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrInvalidTaskType))

	jobList, err := h.jobs.ListJobs(context.Background(), &interfaces.JobListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobList, "no job record for a rejected start-request")
}

func TestAggregateFetchFailureFailsJob(t *testing.T) {
	client := &fakeAggregateClient{fetchErr: &interfaces.TransientFetchError{
		StatusCode: 500, Endpoint: "/api/warmup/42/aggregate", Attempts: 4,
		Err: errors.New("upstream down"),
	}}
	h := newHarness(t, &hookEngine{}, client)

	jobID, err := h.orch.Start(context.Background(), models.TaskTypeWarmup, 42,
		models.RunOptions{Concurrency: 1})
	require.NoError(t, err, "the job is accepted; the failure happens asynchronously")

	summary := waitForTerminal(t, h, jobID)
	assert.Equal(t, models.JobStatusFailed, summary.Status)
	assert.Contains(t, summary.Error, "fetch aggregate")
}

func TestPartitionDisjointUnion(t *testing.T) {
	agg := aggregateOf(10)

	first := partition(agg.Entities, 0, 2)
	second := partition(agg.Entities, 1, 2)

	assert.Equal(t, 10, len(first)+len(second), "partitions must cover every entity")

	seen := make(map[string]int)
	for _, item := range first {
		seen[item.EntityID]++
	}
	for _, item := range second {
		seen[item.EntityID]++
	}
	assert.Len(t, seen, 10)
	for entityID, count := range seen {
		assert.Equal(t, 1, count, "entity %s claimed by both partitions", entityID)
	}
}

func TestPartitionSingleBatchKeepsAll(t *testing.T) {
	agg := aggregateOf(7)
	assert.Len(t, partition(agg.Entities, 0, 1), 7)
	assert.Len(t, partition(agg.Entities, 0, 0), 7)
}

func TestTwoWorkersProcessDisjointSlices(t *testing.T) {
	engine := &hookEngine{}
	client := &fakeAggregateClient{agg: aggregateOf(10)}
	h := newHarness(t, engine, client)

	ctx := context.Background()
	firstID, err := h.orch.Start(ctx, models.TaskTypeBulkLogin, 7,
		models.RunOptions{Concurrency: 2, BatchIndex: 0, BatchCount: 2})
	require.NoError(t, err)
	secondID, err := h.orch.Start(ctx, models.TaskTypeBulkLogin, 7,
		models.RunOptions{Concurrency: 2, BatchIndex: 1, BatchCount: 2})
	require.NoError(t, err)

	first := waitForTerminal(t, h, firstID)
	second := waitForTerminal(t, h, secondID)

	assert.Equal(t, models.JobStatusCompleted, first.Status)
	assert.Equal(t, models.JobStatusCompleted, second.Status)

	processed := engine.seen()
	unique := make(map[string]int)
	for _, entityID := range processed {
		unique[entityID]++
	}
	assert.Len(t, unique, 10, "the two batches must cover all entities")
	for entityID, count := range unique {
		assert.Equal(t, 1, count, "entity %s processed more than once", entityID)
	}
}

func TestLockedEntityIsSkippedNotFailed(t *testing.T) {
	engine := &hookEngine{}
	client := &fakeAggregateClient{agg: aggregateOf(5)}
	h := newHarness(t, engine, client)
	ctx := context.Background()

	// Another holder owns acct_2 for the whole run
	granted, err := h.locks.Acquire(ctx, string(models.TaskTypeWarmup), "acct_2", "other_job", time.Minute)
	require.NoError(t, err)
	require.True(t, granted)

	jobID, err := h.orch.Start(ctx, models.TaskTypeWarmup, 42,
		models.RunOptions{Concurrency: 2})
	require.NoError(t, err)

	summary := waitForTerminal(t, h, jobID)
	assert.Equal(t, models.JobStatusCompleted, summary.Status)
	assert.Equal(t, 4, summary.Results.Success)
	assert.Equal(t, 1, summary.Results.Skipped)
	assert.NotContains(t, engine.seen(), "acct_2")
}

func TestCancelMidRunKeepsPartialCounts(t *testing.T) {
	var h *harness
	jobIDCh := make(chan string, 1)

	engine := &hookEngine{}
	engine.onExecute = func(call int) {
		if call == 2 {
			jobID := <-jobIDCh
			_, err := h.jobs.Cancel(context.Background(), jobID)
			if err != nil {
				panic(err)
			}
		}
	}
	client := &fakeAggregateClient{agg: aggregateOf(5)}
	h = newHarness(t, engine, client)

	jobID, err := h.orch.Start(context.Background(), models.TaskTypeWarmup, 42,
		models.RunOptions{Concurrency: 1})
	require.NoError(t, err)
	jobIDCh <- jobID

	summary := waitForTerminal(t, h, jobID)
	assert.Equal(t, models.JobStatusCancelled, summary.Status)
	processed := summary.Results.Success + summary.Results.Failure
	assert.GreaterOrEqual(t, processed, 2, "entities finished before the flag was observed are kept")
	assert.Less(t, processed, 5, "entities after the flag must not run")
	assert.Equal(t, string(models.JobStatusCancelled), client.lastStatus())
}

func TestRunnerContractViolationFailsJob(t *testing.T) {
	engine := &hookEngine{err: errors.New("nil dereference in flow table")}
	client := &fakeAggregateClient{agg: aggregateOf(3)}
	h := newHarness(t, engine, client)

	jobID, err := h.orch.Start(context.Background(), models.TaskTypeWarmup, 42,
		models.RunOptions{Concurrency: 1})
	require.NoError(t, err)

	summary := waitForTerminal(t, h, jobID)
	assert.Equal(t, models.JobStatusFailed, summary.Status)
	assert.Contains(t, summary.Error, "task runner failed")
}
