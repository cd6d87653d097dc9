// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and descriptors such as "@every 10m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs named jobs on cron schedules. A job never overlaps with its
// own previous run.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a scheduler. Jobs only run after Start.
func NewScheduler() *Scheduler {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Scheduler{cron: c}
}

// ValidateSchedule reports whether expr is an accepted schedule.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// AddJob schedules task under name. It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, func() {
		slog.Debug("Scheduler: running job", "job", name)
		task()
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "job", name, "schedule", expr)
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Scheduler.Stop: gave up waiting for running jobs", "error", ctx.Err())
	}
}
