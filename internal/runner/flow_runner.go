package runner

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// flowRunner drives a single named automation-engine flow for one
// entity. Most task types differ only in the flow the engine runs, so
// they share this implementation; types with extra per-entity logic
// (bulk_upload, proxy_diag, media_uniq) get their own runner.
type flowRunner struct {
	taskType models.TaskType
	flow     string
	engine   interfaces.AutomationEngine
	logger   arbor.ILogger
}

func (r *flowRunner) Type() models.TaskType {
	return r.taskType
}

func (r *flowRunner) Execute(ctx context.Context, item *models.EntityWorkItem, opts models.RunOptions) (models.TaskOutcome, error) {
	if item == nil || item.EntityID == "" {
		return models.TaskOutcome{}, fmt.Errorf("%s: work item missing entity_id", r.taskType)
	}

	payload := enginePayload(r.flow, item, opts)

	success, failure, logText, err := r.engine.Execute(ctx, item, payload)
	if err != nil {
		return models.TaskOutcome{}, fmt.Errorf("%s flow for entity %s: %w", r.flow, item.EntityID, err)
	}

	r.logger.Debug().
		Str("task_type", string(r.taskType)).
		Str("entity_id", item.EntityID).
		Int("success", success).
		Int("failure", failure).
		Msg("Flow finished")

	return models.TaskOutcome{Success: success, Failure: failure, LogText: logText}, nil
}

// enginePayload merges the per-entity payload with run-level options
// into the single map the automation engine consumes.
func enginePayload(flow string, item *models.EntityWorkItem, opts models.RunOptions) map[string]interface{} {
	payload := make(map[string]interface{}, len(item.Payload)+2)
	for k, v := range item.Payload {
		payload[k] = v
	}
	payload["flow"] = flow
	payload["headless"] = opts.Headless
	return payload
}
