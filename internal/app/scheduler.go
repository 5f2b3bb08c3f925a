/**
 * @description
 * Cron scheduler for the background integrity audit.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// IntegrityAuditor is the job the scheduler runs.
type IntegrityAuditor interface {
	AuditIntegrity(ctx context.Context) (int, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	auditor  IntegrityAuditor
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(auditor IntegrityAuditor, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		auditor:  auditor,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the audit job and starts the cron scheduler. An empty schedule disables it.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("integrity audit disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.RunIntegrityAudit); err != nil {
		s.logger.Error("failed to schedule integrity audit job", "error", err)
		return err
	}
	s.logger.Info("scheduled integrity audit job", "schedule", s.schedule)

	s.cron.Start()
	return nil
}

// RunIntegrityAudit logs approved requests whose biodata no longer resolves.
func (s *Scheduler) RunIntegrityAudit() {
	s.logger.Info("starting integrity audit job")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	skewed, err := s.auditor.AuditIntegrity(ctx)
	if err != nil {
		s.logger.Error("integrity audit failed", "error", err)
		return
	}

	s.logger.Info("integrity audit job finished", "skewed_requests", skewed)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
