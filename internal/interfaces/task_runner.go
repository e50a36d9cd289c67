package interfaces

import (
	"context"

	"github.com/droverhq/drover/internal/models"
)

// TaskRunner executes the automation work for one entity of a given task
// type. Implementations never return an error for expected automation
// failures (captcha, login wall, network timeout) — those are captured
// in the outcome's failure count and log text. An error return means a
// programmer/contract violation (malformed entity, missing field).
type TaskRunner interface {
	// Type returns the task type this runner serves
	Type() models.TaskType

	// Execute performs the work for one fully-populated entity
	Execute(ctx context.Context, item *models.EntityWorkItem, opts models.RunOptions) (models.TaskOutcome, error)
}

// RunnerFactory resolves the runner for a task type.
// ErrInvalidTaskType for unknown types.
type RunnerFactory interface {
	Create(taskType models.TaskType) (TaskRunner, error)
}

// AutomationEngine is the external browser/API automation collaborator.
// Selectors, human-behavior curves and platform quirks live behind this
// single contract; the orchestration core only consumes it.
type AutomationEngine interface {
	// Execute drives one automation flow for the entity. Expected
	// platform failures are reported through the failure count and log,
	// not the error.
	Execute(ctx context.Context, item *models.EntityWorkItem, payload map[string]interface{}) (success, failure int, log string, err error)
}

// MediaUniquifier is the external media-processing collaborator used by
// the media_uniq task type. It re-encodes a file so platform duplicate
// detection treats it as new content.
type MediaUniquifier interface {
	Uniquify(ctx context.Context, path string) (string, error)
}
