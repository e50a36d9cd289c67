package interfaces

import "context"

// Event types published by the orchestration core
const (
	EventJobStatusChange = "job_status_change"
	EventEntityProcessed = "entity_processed"
	EventLockContention  = "lock_contention"
)

// Event is a typed payload published to in-process subscribers
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventHandler processes a published event. Handler errors are logged,
// never propagated to the publisher.
type EventHandler func(ctx context.Context, event Event) error

// EventService is the in-process pub/sub used for real-time progress
// streaming (websocket) and cross-component notifications.
type EventService interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler EventHandler) error
}
