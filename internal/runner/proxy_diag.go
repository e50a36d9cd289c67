package runner

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// proxyDiagRunner checks an account's assigned proxy for reachability
// and egress identity. The engine flow opens a session through the
// proxy and reports connect/exit-IP results in its log text.
type proxyDiagRunner struct {
	engine interfaces.AutomationEngine
	logger arbor.ILogger
}

func (r *proxyDiagRunner) Type() models.TaskType {
	return models.TaskTypeProxyDiag
}

func (r *proxyDiagRunner) Execute(ctx context.Context, item *models.EntityWorkItem, opts models.RunOptions) (models.TaskOutcome, error) {
	if item == nil || item.EntityID == "" {
		return models.TaskOutcome{}, fmt.Errorf("proxy_diag: work item missing entity_id")
	}
	proxyURL, ok := item.PayloadString("proxy_url")
	if !ok || proxyURL == "" {
		return models.TaskOutcome{}, fmt.Errorf("proxy_diag: entity %s has no proxy_url payload", item.EntityID)
	}

	payload := enginePayload("proxy_diag", item, opts)
	payload["proxy_url"] = proxyURL

	success, failure, logText, err := r.engine.Execute(ctx, item, payload)
	if err != nil {
		return models.TaskOutcome{}, fmt.Errorf("proxy_diag for entity %s: %w", item.EntityID, err)
	}

	return models.TaskOutcome{Success: success, Failure: failure, LogText: logText}, nil
}
