package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/services/jobmanager"
)

// maintenanceScheduler runs periodic housekeeping: pruning raw cache
// entries past their freshness bound and dropping old terminal jobs.
type maintenanceScheduler struct {
	cron   *cron.Cron
	logger *common.Logger
}

// newMaintenanceScheduler registers the maintenance tasks and starts the
// cron loop. spec is a standard 5-field cron expression.
func newMaintenanceScheduler(logger *common.Logger, ingest interfaces.IngestService, orchestrator *jobmanager.Manager, jobRetention time.Duration, spec string) (*maintenanceScheduler, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		removed, err := ingest.PruneRawCache(context.Background())
		if err != nil {
			logger.Warn().Err(err).Msg("Raw cache prune failed")
			return
		}
		logger.Debug().Int("removed", removed).Msg("Raw cache prune complete")
	})
	if err != nil {
		return nil, fmt.Errorf("register prune task: %w", err)
	}

	_, err = c.AddFunc(spec, func() {
		orchestrator.Sweep(jobRetention)
	})
	if err != nil {
		return nil, fmt.Errorf("register job sweep task: %w", err)
	}

	c.Start()
	logger.Info().Str("schedule", spec).Msg("Maintenance scheduler started")

	return &maintenanceScheduler{cron: c, logger: logger}, nil
}

// Stop halts the cron loop, waiting for a running task to finish.
func (s *maintenanceScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Maintenance scheduler stopped")
}
