package runner

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// Factory maps task types to runner instances. New task types register
// a runner here; nothing else in the orchestration path changes.
type Factory struct {
	runners map[models.TaskType]interfaces.TaskRunner
	mu      sync.RWMutex
	logger  arbor.ILogger
}

// NewFactory creates an empty runner factory
func NewFactory(logger arbor.ILogger) *Factory {
	return &Factory{
		runners: make(map[models.TaskType]interfaces.TaskRunner),
		logger:  logger,
	}
}

// NewDefaultFactory creates a factory with every built-in runner
// registered against the given collaborators.
func NewDefaultFactory(engine interfaces.AutomationEngine, uniquifier interfaces.MediaUniquifier, aggregate interfaces.AggregateClient, logger arbor.ILogger) *Factory {
	f := NewFactory(logger)

	f.Register(&bulkUploadRunner{engine: engine, logger: logger})
	f.Register(&flowRunner{taskType: models.TaskTypeBulkLogin, flow: "bulk_login", engine: engine, logger: logger})
	f.Register(&flowRunner{taskType: models.TaskTypeWarmup, flow: "warmup", engine: engine, logger: logger})
	f.Register(&flowRunner{taskType: models.TaskTypeAvatar, flow: "avatar_change", engine: engine, logger: logger})
	f.Register(&flowRunner{taskType: models.TaskTypeBio, flow: "bio_change", engine: engine, logger: logger})
	f.Register(&flowRunner{taskType: models.TaskTypeFollow, flow: "follow", engine: engine, logger: logger})
	f.Register(&proxyDiagRunner{engine: engine, logger: logger})
	f.Register(&mediaUniqRunner{uniquifier: uniquifier, aggregate: aggregate, logger: logger})
	f.Register(&flowRunner{taskType: models.TaskTypeCookieRobot, flow: "cookie_robot", engine: engine, logger: logger})

	return f
}

// Register adds or replaces the runner for its task type
func (f *Factory) Register(runner interfaces.TaskRunner) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runners[runner.Type()] = runner

	f.logger.Debug().
		Str("task_type", string(runner.Type())).
		Msg("Task runner registered")
}

// Create returns the runner for taskType, or ErrInvalidTaskType for an
// unknown type.
func (f *Factory) Create(taskType models.TaskType) (interfaces.TaskRunner, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	runner, ok := f.runners[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrInvalidTaskType, taskType)
	}
	return runner, nil
}
