package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/failure"
)

type mockRepo struct {
	mu     sync.Mutex
	nextID int64
	recs   map[int64]*Record
	units  map[int64]*UnitStatus
}

func newMockRepo() *mockRepo {
	return &mockRepo{recs: make(map[int64]*Record), units: make(map[int64]*UnitStatus)}
}

func (m *mockRepo) CreateExecution(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateExecution(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *mockRepo) GetExecution(_ context.Context, id int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRepo) LastExecution(_ context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *Record
	for _, rec := range m.recs {
		if last == nil || rec.ID > last.ID {
			last = rec
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (m *mockRepo) ListExecutions(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for id := m.nextID; id > 0 && len(out) < limit; id-- {
		if rec, ok := m.recs[id]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateUnit(_ context.Context, us *UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	us.ID = m.nextID
	cp := *us
	m.units[us.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateUnit(_ context.Context, us *UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *us
	m.units[us.ID] = &cp
	return nil
}

func (m *mockRepo) ListUnits(_ context.Context, executionID int64) ([]UnitStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UnitStatus
	for _, us := range m.units {
		if us.ExecutionID == executionID {
			out = append(out, *us)
		}
	}
	return out, nil
}

type stubStaleness struct{ count int64 }

func (s stubStaleness) StaleCount(context.Context) (int64, error) { return s.count, nil }

type stubFailures struct{ counters []failure.Counter }

func (s stubFailures) Recent(context.Context, int) ([]failure.Counter, error) {
	return s.counters, nil
}

func TestCreateFinalize_Watch(t *testing.T) {
	tracker := NewTracker(newMockRepo(), nil, nil)
	ctx := context.Background()

	rec, err := tracker.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("expected running, got %s", rec.Status)
	}
	if rec.UID == "" {
		t.Error("expected a uid")
	}

	ch, ok := tracker.Watch(rec.ID)
	if !ok {
		t.Fatal("expected an in-flight handle")
	}
	select {
	case <-ch:
		t.Fatal("handle closed before finalize")
	default:
	}

	rec.SuccessfulUnits = 2
	if err := tracker.Finalize(ctx, rec, StatusCompleted, ""); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("handle not closed after finalize")
	}
	if _, ok := tracker.Watch(rec.ID); ok {
		t.Error("expected handle to be released")
	}

	got, err := tracker.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Errorf("expected finalized record, got %+v", got)
	}
}

func TestAdvance_ForwardOnly(t *testing.T) {
	tracker := NewTracker(newMockRepo(), nil, nil)
	ctx := context.Background()

	rec, err := tracker.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	us, err := tracker.NewUnit(ctx, rec.ID, "AAPL", candle.Timeframe1d)
	if err != nil {
		t.Fatalf("new unit: %v", err)
	}
	if us.Status != UnitPending {
		t.Errorf("expected pending, got %s", us.Status)
	}

	if err := tracker.Advance(ctx, us, UnitInProgress); err != nil {
		t.Fatalf("advance to in_progress: %v", err)
	}
	if us.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}

	if err := tracker.Advance(ctx, us, UnitPending); err == nil {
		t.Error("expected regression to pending to be rejected")
	}

	if err := tracker.Advance(ctx, us, UnitCompleted); err != nil {
		t.Fatalf("advance to completed: %v", err)
	}
	if us.FinishedAt == nil {
		t.Error("expected finishedAt to be set")
	}
	if us.DurationSecs < 0 {
		t.Errorf("expected non-negative duration, got %f", us.DurationSecs)
	}

	// Terminal states stick.
	if err := tracker.Advance(ctx, us, UnitFailed); err == nil {
		t.Error("expected completed -> failed to be rejected")
	}
}

func TestGet_InvalidID(t *testing.T) {
	tracker := NewTracker(newMockRepo(), nil, nil)
	if _, err := tracker.Get(context.Background(), 0); err == nil {
		t.Error("expected error for id 0")
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		staleness  StalenessSource
		failures   FailureSource
		lastStatus Status
		want       string
	}{
		{
			name:       "healthy",
			staleness:  stubStaleness{count: 0},
			failures:   stubFailures{},
			lastStatus: StatusCompleted,
			want:       "healthy",
		},
		{
			name:       "stale data degrades",
			staleness:  stubStaleness{count: 2},
			failures:   stubFailures{},
			lastStatus: StatusCompleted,
			want:       "degraded",
		},
		{
			name:      "failing symbols degrade",
			staleness: stubStaleness{},
			failures: stubFailures{counters: []failure.Counter{
				{Symbol: "BTC-USD", ConsecutiveFailures: 3},
			}},
			lastStatus: StatusCompleted,
			want:       "degraded",
		},
		{
			name:       "failed run degrades",
			staleness:  stubStaleness{},
			failures:   stubFailures{},
			lastStatus: StatusFailed,
			want:       "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(newMockRepo(), tt.staleness, tt.failures)
			ctx := context.Background()

			rec, err := tracker.Create(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if err := tracker.Finalize(ctx, rec, tt.lastStatus, ""); err != nil {
				t.Fatal(err)
			}

			health, err := tracker.GetHealth(ctx)
			if err != nil {
				t.Fatalf("get health: %v", err)
			}
			if health.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, health.Status)
			}
			if health.LastExecution == nil || health.LastExecution.ID != rec.ID {
				t.Errorf("expected last execution %d, got %+v", rec.ID, health.LastExecution)
			}
		})
	}
}

func TestGetHealth_NoRuns(t *testing.T) {
	tracker := NewTracker(newMockRepo(), stubStaleness{}, stubFailures{})

	health, err := tracker.GetHealth(context.Background())
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy with no runs, got %s", health.Status)
	}
	if health.LastExecution != nil {
		t.Errorf("expected nil last execution, got %+v", health.LastExecution)
	}
}
