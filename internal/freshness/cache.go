package freshness

import (
	"context"
	"fmt"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

// Cache computes and persists freshness entries. The clock is injectable for
// tests.
type Cache struct {
	repo Repository
	now  func() time.Time
}

func NewCache(repo Repository) *Cache {
	return &Cache{repo: repo, now: time.Now}
}

// WithClock overrides the clock. Test hook.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Update recomputes the entry after a successful unit. lastPoint is the
// timestamp of the most recent stored data point; a zero lastPoint with a
// zero count classifies as missing.
func (c *Cache) Update(ctx context.Context, symbol string, tf candle.Timeframe, lastPoint time.Time, count int64) (Entry, error) {
	now := c.now().UTC()

	var staleness time.Duration
	if !lastPoint.IsZero() {
		staleness = now.Sub(lastPoint)
		if staleness < 0 {
			staleness = 0
		}
	}

	e := Entry{
		Symbol:         symbol,
		Timeframe:      tf,
		LastComputedAt: now,
		DataPointCount: count,
		StalenessSecs:  int64(staleness.Seconds()),
		Status:         Classify(staleness, count),
	}

	if err := c.repo.Upsert(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("upsert freshness: %w", err)
	}
	return e, nil
}

// Report groups entries by status, worst (most stale) first within each
// group, with per-status counts in the summary.
type Report struct {
	Summary map[Status]int     `json:"summary"`
	Entries map[Status][]Entry `json:"entries"`
}

func (c *Cache) Report(ctx context.Context, limit int) (*Report, error) {
	if limit <= 0 {
		limit = 100
	}

	entries, err := c.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list freshness: %w", err)
	}

	rep := &Report{
		Summary: make(map[Status]int),
		Entries: make(map[Status][]Entry),
	}
	// The repository returns staleness-descending order; grouping preserves it.
	for _, e := range entries {
		rep.Summary[e.Status]++
		rep.Entries[e.Status] = append(rep.Entries[e.Status], e)
	}
	return rep, nil
}

// StaleCount reports how many entries are currently stale or missing.
func (c *Cache) StaleCount(ctx context.Context) (int64, error) {
	return c.repo.StaleCount(ctx)
}
