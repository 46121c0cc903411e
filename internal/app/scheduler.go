/**
 * @description
 * Cron trigger for the surprise reveal pass.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/joiedevivre/gifting-service/internal/config"
	"github.com/joiedevivre/gifting-service/internal/domain"
	"github.com/robfig/cron/v3"
)

// RevealPassRunner runs one reveal pass.
type RevealPassRunner interface {
	RunRevealPass(ctx context.Context) (*domain.RevealPassResult, error)
}

// Scheduler manages the in-process reveal pass cron job.
type Scheduler struct {
	cron   *cron.Cron
	runner RevealPassRunner
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance. Overlapping ticks are skipped.
func NewScheduler(runner RevealPassRunner, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		runner: runner,
		logger: logger,
		config: cfg,
	}
}

// Start registers the reveal pass job and starts the cron scheduler.
// An empty schedule leaves the pass to the HTTP trigger.
func (s *Scheduler) Start() error {
	if s.config.RevealPassSchedule == "" {
		s.logger.Info("reveal pass cron disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.config.RevealPassSchedule, s.runRevealPass); err != nil {
		s.logger.Error("failed to schedule reveal pass job", "error", err)
		return err
	}
	s.logger.Info("scheduled reveal pass job", "schedule", s.config.RevealPassSchedule)
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runRevealPass() {
	s.logger.Info("starting scheduled reveal pass")
	result, err := s.runner.RunRevealPass(context.Background())
	if err != nil {
		s.logger.Error("scheduled reveal pass failed", "error", err)
		return
	}
	s.logger.Info("scheduled reveal pass finished", "count", result.Count, "skipped", result.Skipped)
}
