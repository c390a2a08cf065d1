// Package failure maintains per-symbol consecutive-failure counters and the
// derived alert signal. Dispatching an actual alert is the caller's job.
package failure

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Counter struct {
	Symbol              string    `json:"symbol"`
	ConsecutiveFailures int64     `json:"consecutiveFailures"`
	LastStatus          string    `json:"lastStatus"`
	LastCheckedAt       time.Time `json:"lastCheckedAt"`
}

type Repository interface {
	// Record applies one success/failure observation atomically and returns
	// the resulting consecutive-failure count. Success resets the count to 0
	// in the same statement that records the observation.
	Record(ctx context.Context, symbol string, success bool, at time.Time) (int64, error)
	Get(ctx context.Context, symbol string) (*Counter, error)
	// Failing lists symbols with a non-zero count, worst first.
	Failing(ctx context.Context, limit int) ([]Counter, error)
}

type Result struct {
	ConsecutiveFailures int64 `json:"consecutiveFailures"`
	ShouldAlert         bool  `json:"shouldAlert"`
}

type Tracker struct {
	repo      Repository
	threshold int64
}

// NewTracker creates a tracker that signals an alert once a symbol reaches
// threshold consecutive failures. A threshold of 0 or less uses the default
// of 3.
func NewTracker(repo Repository, threshold int64) *Tracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Tracker{repo: repo, threshold: threshold}
}

func (t *Tracker) Record(ctx context.Context, symbol string, success bool) (Result, error) {
	count, err := t.repo.Record(ctx, symbol, success, time.Now().UTC())
	if err != nil {
		return Result{}, fmt.Errorf("record failure state: %w", err)
	}

	res := Result{
		ConsecutiveFailures: count,
		ShouldAlert:         !success && count >= t.threshold,
	}
	if res.ShouldAlert {
		slog.Warn("symbol failing repeatedly", "symbol", symbol, "consecutiveFailures", count)
	}
	return res, nil
}

func (t *Tracker) Recent(ctx context.Context, limit int) ([]Counter, error) {
	if limit <= 0 {
		limit = 10
	}
	return t.repo.Failing(ctx, limit)
}
