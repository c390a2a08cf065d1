// Package scheduler triggers recurring backfill runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/cagrikaymak/marketsync/internal/execution"
)

// Runner admits at most one backfill run at a time. Satisfied by
// backfill.Orchestrator.
type Runner interface {
	Trigger(ctx context.Context) (*execution.Record, bool, error)
}

type Scheduler struct {
	cron   *gocron.Scheduler
	runner Runner

	dailyAt  string
	interval time.Duration
}

type Option func(*Scheduler)

// WithDailyAt schedules a run every day at the given "HH:MM" wall-clock time
// in UTC. An empty value disables the daily trigger.
func WithDailyAt(at string) Option {
	return func(s *Scheduler) {
		s.dailyAt = at
	}
}

// WithInterval schedules a run every interval, on top of any daily trigger.
// Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		runner: runner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the configured jobs and runs the scheduler in the
// background. A trigger that lands while a run is still in flight is a no-op;
// the orchestrator admits one run at a time.
func (s *Scheduler) Start() error {
	if s.dailyAt != "" {
		if _, err := s.cron.Every(1).Day().At(s.dailyAt).Do(s.trigger, "daily"); err != nil {
			return fmt.Errorf("schedule daily job at %s: %w", s.dailyAt, err)
		}
		slog.Info("scheduled daily backfill", "at", s.dailyAt)
	}
	if s.interval > 0 {
		if _, err := s.cron.Every(s.interval).Do(s.trigger, "interval"); err != nil {
			return fmt.Errorf("schedule interval job every %s: %w", s.interval, err)
		}
		slog.Info("scheduled interval backfill", "every", s.interval)
	}

	s.cron.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) trigger(source string) {
	rec, started, err := s.runner.Trigger(context.Background())
	if err != nil {
		slog.Error("scheduled backfill failed to start", "source", source, "error", err)
		return
	}
	if !started {
		slog.Info("scheduled backfill skipped, run already in flight", "source", source, "execution", rec.ID)
		return
	}
	slog.Info("scheduled backfill started", "source", source, "execution", rec.ID)
}
