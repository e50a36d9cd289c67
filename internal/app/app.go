package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/aggregate"
	"github.com/droverhq/drover/internal/automation"
	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/handlers"
	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/jobs"
	"github.com/droverhq/drover/internal/locks"
	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/orchestrator"
	"github.com/droverhq/drover/internal/runner"
	"github.com/droverhq/drover/internal/services/events"
	"github.com/droverhq/drover/internal/storage/badger"
)

// App holds all application components and dependencies. Everything is
// constructed once here and passed by reference; no ambient globals
// besides the logger.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB           *badger.BadgerDB
	JobStorage   interfaces.JobStorage
	LockStorage  interfaces.LockStorage
	EventService interfaces.EventService
	Metrics      *metrics.Metrics

	AggregateClient interfaces.AggregateClient
	LockManager     *locks.Manager
	LockSweeper     *locks.Sweeper
	JobManager      *jobs.Manager
	RetentionGC     *jobs.RetentionGC
	Engine          interfaces.AutomationEngine
	Factory         *runner.Factory
	Orchestrator    *orchestrator.Orchestrator

	JobHandler    *handlers.JobHandler
	LockHandler   *handlers.LockHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New creates and wires the full application
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, err
	}
	a.initServices()
	a.initHandlers()

	logger.Info().
		Str("engine", cfg.Automation.Engine).
		Int("port", cfg.Server.Port).
		Msg("Application initialized")

	return a, nil
}

func (a *App) initStorage() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("open badger store: %w", err)
	}
	a.DB = db
	a.JobStorage = badger.NewJobStorage(db, a.Logger)
	a.LockStorage = badger.NewLockStorage(db, a.Logger)
	return nil
}

func (a *App) initServices() {
	a.EventService = events.NewService(a.Logger)
	a.Metrics = metrics.New()

	a.AggregateClient = aggregate.NewClient(&a.Config.Aggregate, a.Logger)

	a.LockManager = locks.NewManager(a.LockStorage, a.Logger)
	a.LockSweeper = locks.NewSweeper(a.LockStorage, a.Config.Locks.SweepSchedule, a.Logger)

	a.JobManager = jobs.NewManager(a.JobStorage, a.EventService, a.Metrics, a.Logger)
	a.RetentionGC = jobs.NewRetentionGC(a.JobManager, a.Config.Jobs.Retention.Std(), a.Config.Jobs.RetentionSchedule, a.Logger)

	switch a.Config.Automation.Engine {
	case "chromedp":
		a.Engine = automation.NewChromedpEngine(&a.Config.Automation, a.Logger)
	default:
		a.Engine = automation.NewScriptedEngine(a.Logger)
	}

	uniquifier := automation.NewFileUniquifier(a.Logger)
	a.Factory = runner.NewDefaultFactory(a.Engine, uniquifier, a.AggregateClient, a.Logger)

	a.Orchestrator = orchestrator.NewOrchestrator(
		a.Factory,
		a.JobManager,
		a.LockManager,
		a.AggregateClient,
		a.EventService,
		a.Metrics,
		a.Config.Locks.TTL.Std(),
		a.Config.Jobs.EntityTimeout.Std(),
		a.Logger,
	)
}

func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(a.Orchestrator, a.JobManager, a.Logger)
	a.LockHandler = handlers.NewLockHandler(a.LockManager, a.Config.Locks.TTL.Std(), a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.JobManager, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
}

// StartBackground starts the cron-driven housekeeping
func (a *App) StartBackground() error {
	if err := a.LockSweeper.Start(); err != nil {
		return fmt.Errorf("start lock sweeper: %w", err)
	}
	if err := a.RetentionGC.Start(); err != nil {
		return fmt.Errorf("start retention gc: %w", err)
	}
	return nil
}

// Close shuts down background work and the store
func (a *App) Close() error {
	if a.LockSweeper != nil {
		a.LockSweeper.Stop()
	}
	if a.RetentionGC != nil {
		a.RetentionGC.Stop()
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("close badger store: %w", err)
		}
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
