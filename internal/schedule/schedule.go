// Package schedule wires up the cron job that periodically triggers harvest
// runs in daemon mode.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobpulse/harvester/internal/orchestrate"
)

// Runner triggers one harvest run. *orchestrate.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, cfg orchestrate.RunConfig) (*orchestrate.RunSummary, error)
}

// Scheduler wraps robfig/cron and manages periodic harvest runs. The
// orchestrator's cooldown latch makes overlapping triggers safe.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	runCfg orchestrate.RunConfig
	spec   string
	logger *slog.Logger
}

// New creates a scheduler that fires every interval.
func New(runner Runner, runCfg orchestrate.RunConfig, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		runCfg: runCfg,
		spec:   fmt.Sprintf("@every %s", interval),
		logger: logger,
	}
}

// Start registers the job and starts the scheduler. It also kicks off one
// run immediately so the store is populated without waiting for the first
// tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec)

	go s.runOnce(ctx)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	summary, err := s.runner.Run(ctx, s.runCfg)
	if errors.Is(err, orchestrate.ErrCooldownActive) {
		s.logger.Info("scheduled run skipped, cooldown active")
		return
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"jobs_found", summary.JobsFound,
	)
}
