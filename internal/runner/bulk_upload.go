package runner

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// bulkUploadRunner uploads the media assigned to one account. Two
// engine flows exist: the full browser flow and the direct mobile-API
// flow, selected per run by the upload_method option.
type bulkUploadRunner struct {
	engine interfaces.AutomationEngine
	logger arbor.ILogger
}

func (r *bulkUploadRunner) Type() models.TaskType {
	return models.TaskTypeBulkUpload
}

func (r *bulkUploadRunner) Execute(ctx context.Context, item *models.EntityWorkItem, opts models.RunOptions) (models.TaskOutcome, error) {
	if item == nil || item.EntityID == "" {
		return models.TaskOutcome{}, fmt.Errorf("bulk_upload: work item missing entity_id")
	}
	if _, ok := item.PayloadStringSlice("media_refs"); !ok {
		return models.TaskOutcome{}, fmt.Errorf("bulk_upload: entity %s has no media_refs payload", item.EntityID)
	}

	flow := "bulk_upload_browser"
	if opts.UploadMethod == models.UploadMethodAPI {
		flow = "bulk_upload_api"
	}

	payload := enginePayload(flow, item, opts)
	payload["upload_method"] = opts.UploadMethod

	success, failure, logText, err := r.engine.Execute(ctx, item, payload)
	if err != nil {
		return models.TaskOutcome{}, fmt.Errorf("%s for entity %s: %w", flow, item.EntityID, err)
	}

	r.logger.Debug().
		Str("entity_id", item.EntityID).
		Str("flow", flow).
		Int("uploaded", success).
		Int("failed", failure).
		Msg("Bulk upload finished")

	return models.TaskOutcome{Success: success, Failure: failure, LogText: logText}, nil
}
