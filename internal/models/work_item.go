package models

// EntityStatus is the processing state of one work item as reported back
// to the UI aggregate service.
type EntityStatus string

const (
	EntityStatusPending   EntityStatus = "pending"
	EntityStatusRunning   EntityStatus = "running"
	EntityStatusCompleted EntityStatus = "completed"
	EntityStatusFailed    EntityStatus = "failed"
)

// EntityWorkItem is the unit of work the orchestrator processes — an
// account, a video, a proxy, depending on task type. The UI aggregate
// service owns the persisted copy; the orchestrator holds a transient
// working copy during a run and pushes deltas back.
type EntityWorkItem struct {
	EntityID     string                 `json:"entity_id"`
	EntityTaskID int                    `json:"entity_task_id"` // per-entity row in the aggregate store
	Payload      map[string]interface{} `json:"payload"`        // credentials, media refs, per-entity settings
	Status       EntityStatus           `json:"status"`
	AssignedLog  string                 `json:"assigned_log,omitempty"`
	Counters     map[string]int         `json:"counters,omitempty"`
}

// PayloadString retrieves a string field from the payload
func (e *EntityWorkItem) PayloadString(key string) (string, bool) {
	val, ok := e.Payload[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// PayloadStringSlice retrieves a string slice field from the payload,
// tolerating []interface{} produced by JSON decoding.
func (e *EntityWorkItem) PayloadStringSlice(key string) ([]string, bool) {
	val, ok := e.Payload[key]
	if !ok {
		return nil, false
	}
	switch v := val.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// TaskOutcome is the per-entity result a task runner returns. Expected
// automation failures (captcha, login wall, timeout) are folded into
// Failure and LogText, never raised as errors.
type TaskOutcome struct {
	Success int    `json:"success"`
	Failure int    `json:"failure"`
	LogText string `json:"log_text,omitempty"`
}

// Aggregate is the entity list plus task-level options fetched from the
// UI aggregate service for one (kind, task_id).
type Aggregate struct {
	Entities    []*EntityWorkItem      `json:"entities"`
	TaskOptions map[string]interface{} `json:"task_options"`
}
