package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// mediaUniqRunner re-encodes each media file assigned to an entity so
// platform duplicate detection treats it as new content. Per-file
// download or re-encode failures are expected outcomes, not errors.
type mediaUniqRunner struct {
	uniquifier interfaces.MediaUniquifier
	aggregate  interfaces.AggregateClient
	logger     arbor.ILogger
}

func (r *mediaUniqRunner) Type() models.TaskType {
	return models.TaskTypeMediaUniq
}

func (r *mediaUniqRunner) Execute(ctx context.Context, item *models.EntityWorkItem, opts models.RunOptions) (models.TaskOutcome, error) {
	if item == nil || item.EntityID == "" {
		return models.TaskOutcome{}, fmt.Errorf("media_uniq: work item missing entity_id")
	}
	mediaRefs, ok := item.PayloadStringSlice("media_refs")
	if !ok || len(mediaRefs) == 0 {
		return models.TaskOutcome{}, fmt.Errorf("media_uniq: entity %s has no media_refs payload", item.EntityID)
	}

	workDir, err := os.MkdirTemp("", "media-uniq-")
	if err != nil {
		return models.TaskOutcome{}, fmt.Errorf("media_uniq: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	outcome := models.TaskOutcome{}
	var logLines []string

	for _, ref := range mediaRefs {
		if err := r.processOne(ctx, workDir, ref); err != nil {
			outcome.Failure++
			logLines = append(logLines, fmt.Sprintf("%s: %v", ref, err))
			continue
		}
		outcome.Success++
		logLines = append(logLines, fmt.Sprintf("%s: uniquified", ref))
	}

	outcome.LogText = strings.Join(logLines, "\n")
	return outcome, nil
}

func (r *mediaUniqRunner) processOne(ctx context.Context, workDir, mediaRef string) error {
	data, err := r.aggregate.DownloadMedia(ctx, mediaRef)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	// Media refs are opaque identifiers from the aggregate service;
	// never let one carry path separators into the work dir.
	path := filepath.Join(workDir, filepath.Base(mediaRef))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if _, err := r.uniquifier.Uniquify(ctx, path); err != nil {
		return fmt.Errorf("uniquify: %w", err)
	}
	return nil
}
