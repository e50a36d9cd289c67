package interfaces

import (
	"context"

	"github.com/droverhq/drover/internal/models"
)

// StatusUpdate is a partial task-level status push. Nil fields are
// omitted from the request so the server only touches what was sent.
type StatusUpdate struct {
	Status    *string `json:"status,omitempty"`
	Log       *string `json:"log,omitempty"`
	LogAppend *string `json:"log_append,omitempty"`
}

// EntityStatusUpdate is a partial per-entity status push
type EntityStatusUpdate struct {
	Status    *models.EntityStatus `json:"status,omitempty"`
	LogAppend *string              `json:"log_append,omitempty"`
}

// AggregateClient talks to the UI aggregate service — the system of
// record for entity lists, statuses, logs and counters. All calls carry
// bearer auth. Transient failures (5xx, transport) are retried with
// bounded exponential backoff; 404 and 401/403 surface immediately.
type AggregateClient interface {
	// FetchAggregate returns the entity list and task options for one
	// (kind, task_id). ErrAggregateNotFound on 404.
	FetchAggregate(ctx context.Context, kind string, taskID int) (*models.Aggregate, error)

	// PushStatus updates task-level status/log
	PushStatus(ctx context.Context, kind string, taskID int, update StatusUpdate) error

	// PushEntityStatus updates one entity's status/log
	PushEntityStatus(ctx context.Context, kind string, entityTaskID int, update EntityStatusUpdate) error

	// PushEntityCounters sends additive numeric deltas for one entity.
	// The same logical send carries a stable idempotency key across
	// retries so the server can dedupe and never double-counts.
	PushEntityCounters(ctx context.Context, kind string, entityTaskID int, deltas map[string]int) error

	// DownloadMedia streams a media object by reference
	DownloadMedia(ctx context.Context, mediaRef string) ([]byte, error)
}
