// Package jobs runs the engine's periodic maintenance work.
package jobs

import (
	"fmt"
	"log"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Scheduler wraps the cron scheduler and validates expressions before
// registering them, so a bad configuration fails at startup instead of
// silently never running.
type Scheduler struct {
	inner gocron.Scheduler
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() (*Scheduler, error) {
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{inner: inner}, nil
}

// Register schedules task under a standard 5-field cron expression.
func (s *Scheduler) Register(name, cronExpr string, task func()) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", cronExpr, name, err)
	}

	_, err := s.inner.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	log.Printf("✅ [SCHEDULER] Registered job %s (%s)", name, cronExpr)
	return nil
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.inner.Start()
	log.Printf("🚀 [SCHEDULER] Job scheduler started")
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	if err := s.inner.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Printf("👋 [SCHEDULER] Job scheduler stopped")
	return nil
}
