package candle

import (
	"context"
	"time"
)

// DuplicateGroup is a set of stored rows sharing one (symbol, timeframe, ts)
// key. KeepID is the most recently fetched row of the group.
type DuplicateGroup struct {
	Symbol    string
	Timeframe Timeframe
	Ts        time.Time
	IDs       []int64
	KeepID    int64
}

type Repository interface {
	// Upsert writes rows idempotently, keyed on (symbol, timeframe, ts), and
	// returns the number of rows that did not previously exist.
	Upsert(ctx context.Context, rows []Candle) (int64, error)
	Query(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]Candle, error)
	Latest(ctx context.Context, symbol string, tf Timeframe) (*Candle, error)
	Count(ctx context.Context, symbol string, tf Timeframe) (int64, error)
	FindDuplicates(ctx context.Context, symbol string, tf Timeframe) ([]DuplicateGroup, error)
	// Delete removes rows by id inside a single transaction.
	Delete(ctx context.Context, ids []int64) (int64, error)
}
