package freshness

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

type mockRepo struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func newMockRepo() *mockRepo {
	return &mockRepo{entries: make(map[string]Entry)}
}

func (m *mockRepo) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Symbol+"/"+string(e.Timeframe)] = e
	return nil
}

func (m *mockRepo) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StalenessSecs > out[j].StalenessSecs })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) StaleCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.entries {
		if e.Status == StatusStale || e.Status == StatusMissing {
			n++
		}
	}
	return n, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		staleness time.Duration
		count     int64
		want      Status
	}{
		{"recent data is fresh", 10 * time.Minute, 100, StatusFresh},
		{"under an hour is fresh", 59 * time.Minute, 100, StatusFresh},
		{"over an hour is aging", 2 * time.Hour, 100, StatusAging},
		{"under a day is aging", 23 * time.Hour, 100, StatusAging},
		{"a day or more is stale", 24 * time.Hour, 100, StatusStale},
		{"very old is stale", 30 * 24 * time.Hour, 100, StatusStale},
		{"no data overrides everything", 5 * time.Minute, 0, StatusMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.staleness, tt.count); got != tt.want {
				t.Errorf("Classify(%v, %d) = %s, want %s", tt.staleness, tt.count, got, tt.want)
			}
		})
	}
}

func TestCache_UpdateComputesStaleness(t *testing.T) {
	repo := newMockRepo()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	cache := NewCache(repo).WithClock(func() time.Time { return now })
	ctx := context.Background()

	e, err := cache.Update(ctx, "AAPL", candle.Timeframe1d, now.Add(-30*time.Minute), 250)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if e.Status != StatusFresh {
		t.Errorf("status: got %s, want fresh", e.Status)
	}
	if e.StalenessSecs != 1800 {
		t.Errorf("staleness: got %d, want 1800", e.StalenessSecs)
	}

	// Upsert is idempotent: updating the same key replaces the entry.
	e, err = cache.Update(ctx, "AAPL", candle.Timeframe1d, now.Add(-36*time.Hour), 250)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if e.Status != StatusStale {
		t.Errorf("status after re-update: got %s, want stale", e.Status)
	}
	if len(repo.entries) != 1 {
		t.Errorf("expected 1 entry after two updates of same key, got %d", len(repo.entries))
	}
}

func TestCache_Report(t *testing.T) {
	repo := newMockRepo()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	cache := NewCache(repo).WithClock(func() time.Time { return now })
	ctx := context.Background()

	seed := []struct {
		symbol    string
		lastPoint time.Time
		count     int64
	}{
		{"AAPL", now.Add(-10 * time.Minute), 100},
		{"MSFT", now.Add(-45 * time.Minute), 100},
		{"GOOG", now.Add(-3 * time.Hour), 100},
		{"TSLA", now.Add(-48 * time.Hour), 100},
		{"NEWCO", time.Time{}, 0},
	}
	for _, s := range seed {
		if _, err := cache.Update(ctx, s.symbol, candle.Timeframe1d, s.lastPoint, s.count); err != nil {
			t.Fatalf("update %s: %v", s.symbol, err)
		}
	}

	rep, err := cache.Report(ctx, 50)
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if rep.Summary[StatusFresh] != 2 || rep.Summary[StatusAging] != 1 ||
		rep.Summary[StatusStale] != 1 || rep.Summary[StatusMissing] != 1 {
		t.Errorf("summary: %+v", rep.Summary)
	}

	fresh := rep.Entries[StatusFresh]
	if len(fresh) != 2 {
		t.Fatalf("fresh entries: got %d", len(fresh))
	}
	// Within a group: staleness descending.
	if fresh[0].StalenessSecs < fresh[1].StalenessSecs {
		t.Error("fresh entries not ordered by staleness descending")
	}

	n, err := cache.StaleCount(ctx)
	if err != nil {
		t.Fatalf("stale count: %v", err)
	}
	if n != 2 { // stale + missing
		t.Errorf("stale count: got %d, want 2", n)
	}
}
