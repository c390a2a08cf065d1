package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cagrikaymak/marketsync/internal/apperror"
	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/failure"
)

// StalenessSource reports how many work units currently classify as stale or
// missing.
type StalenessSource interface {
	StaleCount(ctx context.Context) (int64, error)
}

// FailureSource lists symbols with consecutive failures.
type FailureSource interface {
	Recent(ctx context.Context, limit int) ([]failure.Counter, error)
}

// Tracker is the persistence and query facade over executions and unit
// statuses. It holds no orchestration logic, so the orchestrator can be
// tested against an in-memory Repository.
type Tracker struct {
	repo      Repository
	staleness StalenessSource
	failures  FailureSource

	mu      sync.Mutex
	handles map[int64]chan struct{}
}

func NewTracker(repo Repository, staleness StalenessSource, failures FailureSource) *Tracker {
	return &Tracker{
		repo:      repo,
		staleness: staleness,
		failures:  failures,
		handles:   make(map[int64]chan struct{}),
	}
}

// Create opens a new run record with StatusRunning and registers an
// in-process handle so callers can poll or wait for completion by id.
func (t *Tracker) Create(ctx context.Context) (*Record, error) {
	rec := &Record{
		UID:       uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
	if err := t.repo.CreateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	t.mu.Lock()
	t.handles[rec.ID] = make(chan struct{})
	t.mu.Unlock()

	slog.Info("execution started", "execution", rec.ID, "uid", rec.UID)
	return rec, nil
}

// Finalize writes the run's terminal state exactly once and releases its
// handle.
func (t *Tracker) Finalize(ctx context.Context, rec *Record, status Status, errMsg string) error {
	now := time.Now().UTC()
	rec.CompletedAt = &now
	rec.Status = status
	rec.Error = errMsg

	if err := t.repo.UpdateExecution(ctx, rec); err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}

	t.mu.Lock()
	if ch, ok := t.handles[rec.ID]; ok {
		close(ch)
		delete(t.handles, rec.ID)
	}
	t.mu.Unlock()

	slog.Info("execution finalized", "execution", rec.ID, "status", status,
		"successful", rec.SuccessfulUnits, "failed", rec.FailedUnits, "records", rec.TotalRecords)
	return nil
}

// Watch returns a channel closed when the run finalizes. The second return is
// false when the run is not in flight in this process.
func (t *Tracker) Watch(id int64) (<-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.handles[id]
	return ch, ok
}

// NewUnit creates a pending unit status row for the run.
func (t *Tracker) NewUnit(ctx context.Context, executionID int64, symbol string, tf candle.Timeframe) (*UnitStatus, error) {
	us := &UnitStatus{
		ExecutionID: executionID,
		Symbol:      symbol,
		Timeframe:   tf,
		Status:      UnitPending,
	}
	if err := t.repo.CreateUnit(ctx, us); err != nil {
		return nil, fmt.Errorf("create unit status: %w", err)
	}
	return us, nil
}

// Advance moves a unit to the given state. Unit status never regresses: an
// attempt to move backwards is rejected, and terminal states stick.
func (t *Tracker) Advance(ctx context.Context, us *UnitStatus, next UnitState) error {
	if next.rank() <= us.Status.rank() {
		return fmt.Errorf("unit %d cannot move %s -> %s", us.ID, us.Status, next)
	}

	now := time.Now().UTC()
	switch next {
	case UnitInProgress:
		us.StartedAt = &now
	case UnitCompleted, UnitFailed:
		us.FinishedAt = &now
		if us.StartedAt != nil {
			us.DurationSecs = now.Sub(*us.StartedAt).Seconds()
		}
	}
	us.Status = next

	if err := t.repo.UpdateUnit(ctx, us); err != nil {
		return fmt.Errorf("update unit status: %w", err)
	}
	return nil
}

func (t *Tracker) Get(ctx context.Context, id int64) (*Record, error) {
	if id <= 0 {
		return nil, apperror.New(apperror.BadRequest, "invalid execution id")
	}
	return t.repo.GetExecution(ctx, id)
}

func (t *Tracker) Units(ctx context.Context, executionID int64) ([]UnitStatus, error) {
	return t.repo.ListUnits(ctx, executionID)
}

func (t *Tracker) History(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.repo.ListExecutions(ctx, limit)
}

// Health summarises the system for monitoring consumers.
type Health struct {
	Status         string            `json:"status"`
	LastExecution  *Record           `json:"lastExecution,omitempty"`
	StaleCount     int64             `json:"staleCount"`
	RecentFailures []failure.Counter `json:"recentFailures"`
}

// GetHealth aggregates the last run, current staleness, and failing symbols.
// Status is "degraded" when anything is stale, failing, or the last run
// failed; "healthy" otherwise.
func (t *Tracker) GetHealth(ctx context.Context) (*Health, error) {
	last, err := t.repo.LastExecution(ctx)
	if err != nil {
		return nil, fmt.Errorf("last execution: %w", err)
	}

	var staleCount int64
	if t.staleness != nil {
		staleCount, err = t.staleness.StaleCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("stale count: %w", err)
		}
	}

	recent := []failure.Counter{}
	if t.failures != nil {
		recent, err = t.failures.Recent(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("recent failures: %w", err)
		}
	}

	status := "healthy"
	if staleCount > 0 || len(recent) > 0 || (last != nil && last.Status == StatusFailed) {
		status = "degraded"
	}

	return &Health{
		Status:         status,
		LastExecution:  last,
		StaleCount:     staleCount,
		RecentFailures: recent,
	}, nil
}
