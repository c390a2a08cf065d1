package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cagrikaymak/marketsync/internal/execution"
)

type stubRunner struct {
	calls   atomic.Int64
	started bool
}

func (s *stubRunner) Trigger(context.Context) (*execution.Record, bool, error) {
	s.calls.Add(1)
	return &execution.Record{ID: 1}, s.started, nil
}

func TestStart_IntervalTriggersRunner(t *testing.T) {
	runner := &stubRunner{started: true}
	s := New(runner, WithInterval(10*time.Millisecond))

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 triggers, got %d", runner.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStart_InvalidDailyTime(t *testing.T) {
	s := New(&stubRunner{}, WithDailyAt("not-a-time"))
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected error for invalid daily time")
	}
}

func TestStart_NoJobs(t *testing.T) {
	s := New(&stubRunner{})
	if err := s.Start(); err != nil {
		t.Fatalf("start with no jobs: %v", err)
	}
	s.Stop()
}
