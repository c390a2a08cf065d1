// Package quality scans stored candles for gaps, outliers, staleness, and
// duplicates, and keeps an append-only anomaly audit log.
package quality

import (
	"context"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

type Kind string

const (
	KindGap       Kind = "gap"
	KindOutlier   Kind = "outlier"
	KindStaleness Kind = "staleness"
	KindDuplicate Kind = "duplicate"
)

// Anomaly is one append-only audit record.
type Anomaly struct {
	ID         int64            `json:"id"`
	Symbol     string           `json:"symbol"`
	Timeframe  candle.Timeframe `json:"timeframe"`
	Kind       Kind             `json:"kind"`
	DetectedAt time.Time        `json:"detectedAt"`
	Details    string           `json:"details"`
}

type AnomalyRepository interface {
	Append(ctx context.Context, a *Anomaly) error
	List(ctx context.Context, symbol string, limit int) ([]Anomaly, error)
}
