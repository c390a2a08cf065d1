// Package freshness maintains per-(symbol, timeframe) last-updated state and
// the derived staleness classification.
package freshness

import (
	"context"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

type Status string

const (
	StatusFresh   Status = "fresh"
	StatusAging   Status = "aging"
	StatusStale   Status = "stale"
	StatusMissing Status = "missing"
)

// Classify derives the status from staleness and the number of stored points.
// A unit with no data is always missing, regardless of staleness.
func Classify(staleness time.Duration, count int64) Status {
	if count == 0 {
		return StatusMissing
	}
	switch {
	case staleness < time.Hour:
		return StatusFresh
	case staleness < 24*time.Hour:
		return StatusAging
	default:
		return StatusStale
	}
}

type Entry struct {
	Symbol         string           `json:"symbol"`
	Timeframe      candle.Timeframe `json:"timeframe"`
	LastComputedAt time.Time        `json:"lastComputedAt"`
	DataPointCount int64            `json:"dataPointCount"`
	StalenessSecs  int64            `json:"stalenessSecs"`
	Status         Status           `json:"status"`
}

type Repository interface {
	// Upsert writes the entry idempotently, keyed on (symbol, timeframe).
	Upsert(ctx context.Context, e Entry) error
	// List returns entries ordered by staleness descending.
	List(ctx context.Context, limit int) ([]Entry, error)
	StaleCount(ctx context.Context) (int64, error)
}
