package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// RetentionGC evicts terminal job records older than the retention
// window on a cron schedule. Running and queued jobs are never touched.
type RetentionGC struct {
	manager   *Manager
	retention time.Duration
	schedule  string
	logger    arbor.ILogger
	cron      *cron.Cron
}

// NewRetentionGC creates a retention collector
func NewRetentionGC(manager *Manager, retention time.Duration, schedule string, logger arbor.ILogger) *RetentionGC {
	return &RetentionGC{
		manager:   manager,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the GC job and starts the scheduler
func (g *RetentionGC) Start() error {
	_, err := g.cron.AddFunc(g.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		cutoff := time.Now().UTC().Add(-g.retention)
		removed, err := g.manager.PurgeTerminalBefore(ctx, cutoff)
		if err != nil {
			g.logger.Warn().Err(err).Msg("Job retention sweep failed")
			return
		}
		if removed > 0 {
			g.logger.Info().Int("removed", removed).Msg("Evicted expired job records")
		}
	})
	if err != nil {
		return err
	}

	g.cron.Start()
	g.logger.Info().
		Str("schedule", g.schedule).
		Str("retention", g.retention.String()).
		Msg("Job retention GC started")
	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish
func (g *RetentionGC) Stop() {
	ctx := g.cron.Stop()
	<-ctx.Done()
}
