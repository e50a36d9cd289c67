package locks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
)

// Sweeper periodically purges expired lock records on a cron schedule.
// Housekeeping only: expiry alone makes a lock free, so a missed sweep
// never affects correctness.
type Sweeper struct {
	storage  interfaces.LockStorage
	schedule string
	logger   arbor.ILogger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper with the given cron schedule
func NewSweeper(storage interfaces.LockStorage, schedule string, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		storage:  storage,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the sweep job and starts the scheduler
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		purged, err := s.storage.PurgeExpired(ctx, time.Now().UTC())
		if err != nil {
			s.logger.Warn().Err(err).Msg("Expired-lock sweep failed")
			return
		}
		if purged > 0 {
			s.logger.Debug().Int("purged", purged).Msg("Purged expired locks")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Lock sweeper started")
	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
