package quality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/freshness"
)

// Engine runs the quality checks over stored candles. The three scan checks
// are independent and order-insensitive; each hit is appended to the anomaly
// log.
type Engine struct {
	candles    candle.Repository
	anomalies  AnomalyRepository
	thresholds *ThresholdTable
	now        func() time.Time
}

func NewEngine(candles candle.Repository, anomalies AnomalyRepository, thresholds *ThresholdTable) *Engine {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Engine{
		candles:    candles,
		anomalies:  anomalies,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// WithClock overrides the clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Scan checks the window ending now for gaps, outliers, and staleness, and
// records each anomaly for audit.
func (e *Engine) Scan(ctx context.Context, symbol string, class candle.AssetClass, tf candle.Timeframe, window time.Duration) ([]Anomaly, error) {
	now := e.now().UTC()
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}

	rows, err := e.candles.Query(ctx, symbol, tf, now.Add(-window), now)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}

	th := e.thresholds.Resolve(class, tf)

	var found []Anomaly
	found = append(found, e.scanGaps(symbol, tf, rows, th, now)...)
	found = append(found, e.scanOutliers(symbol, tf, rows, th, now)...)

	stale, err := e.checkStaleness(ctx, symbol, tf, now)
	if err != nil {
		return nil, err
	}
	found = append(found, stale...)

	for i := range found {
		if err := e.anomalies.Append(ctx, &found[i]); err != nil {
			return nil, fmt.Errorf("append anomaly: %w", err)
		}
	}

	if len(found) > 0 {
		slog.Info("quality scan found anomalies", "symbol", symbol, "timeframe", tf, "count", len(found))
	}
	return found, nil
}

// scanGaps flags adjacent rows spaced further apart than the threshold.
func (e *Engine) scanGaps(symbol string, tf candle.Timeframe, rows []candle.Candle, th Thresholds, now time.Time) []Anomaly {
	maxGap := th.MaxGap
	if maxGap <= 0 {
		maxGap = 24 * time.Hour
	}

	var out []Anomaly
	for i := 1; i < len(rows); i++ {
		delta := rows[i].Ts.Sub(rows[i-1].Ts)
		if delta > maxGap {
			out = append(out, Anomaly{
				Symbol:     symbol,
				Timeframe:  tf,
				Kind:       KindGap,
				DetectedAt: now,
				Details: fmt.Sprintf("gap of %s between %s and %s (max %s)",
					delta, rows[i-1].Ts.Format(time.RFC3339), rows[i].Ts.Format(time.RFC3339), maxGap),
			})
		}
	}
	return out
}

// scanOutliers flags close-to-close moves beyond the percentage threshold.
func (e *Engine) scanOutliers(symbol string, tf candle.Timeframe, rows []candle.Candle, th Thresholds, now time.Time) []Anomaly {
	limit := th.OutlierPct
	if limit <= 0 {
		limit = 0.20
	}

	var out []Anomaly
	for i := 1; i < len(rows); i++ {
		prev := rows[i-1].Close
		if prev == 0 {
			continue
		}
		change := math.Abs(rows[i].Close-prev) / prev
		if change > limit {
			out = append(out, Anomaly{
				Symbol:     symbol,
				Timeframe:  tf,
				Kind:       KindOutlier,
				DetectedAt: now,
				Details: fmt.Sprintf("close moved %.1f%% at %s (%.4f -> %.4f, limit %.0f%%)",
					change*100, rows[i].Ts.Format(time.RFC3339), prev, rows[i].Close, limit*100),
			})
		}
	}
	return out
}

// checkStaleness delegates to the freshness classification; stale and missing
// outcomes are also logged as anomalies for audit continuity.
func (e *Engine) checkStaleness(ctx context.Context, symbol string, tf candle.Timeframe, now time.Time) ([]Anomaly, error) {
	count, err := e.candles.Count(ctx, symbol, tf)
	if err != nil {
		return nil, fmt.Errorf("count candles: %w", err)
	}

	var staleness time.Duration
	if count > 0 {
		latest, err := e.candles.Latest(ctx, symbol, tf)
		if err != nil {
			return nil, fmt.Errorf("latest candle: %w", err)
		}
		if latest != nil {
			staleness = now.Sub(latest.Ts)
		}
	}

	status := freshness.Classify(staleness, count)
	if status != freshness.StatusStale && status != freshness.StatusMissing {
		return nil, nil
	}

	return []Anomaly{{
		Symbol:     symbol,
		Timeframe:  tf,
		Kind:       KindStaleness,
		DetectedAt: now,
		Details:    fmt.Sprintf("data is %s (last point %s old, %d points)", status, staleness, count),
	}}, nil
}

// CleanupResult reports what a duplicate cleanup pass saw and did.
type CleanupResult struct {
	DuplicatesFound   int64 `json:"duplicatesFound"`
	DuplicatesRemoved int64 `json:"duplicatesRemoved"`
}

// CleanupDuplicates removes redundant rows sharing one (symbol, timeframe,
// ts) key, keeping the most recently fetched row of each group. The delete
// runs in a single transaction against the snapshot the groups were read
// from, so it is safe to run while the orchestrator inserts new rows. With
// dryRun the result reports what would be removed without deleting anything.
func (e *Engine) CleanupDuplicates(ctx context.Context, symbol string, tf candle.Timeframe, dryRun bool) (CleanupResult, error) {
	groups, err := e.candles.FindDuplicates(ctx, symbol, tf)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("find duplicates: %w", err)
	}

	var res CleanupResult
	var doomed []int64
	for _, g := range groups {
		for _, id := range g.IDs {
			if id != g.KeepID {
				res.DuplicatesFound++
				doomed = append(doomed, id)
			}
		}
	}

	if dryRun || len(doomed) == 0 {
		return res, nil
	}

	removed, err := e.candles.Delete(ctx, doomed)
	if err != nil {
		return res, fmt.Errorf("delete duplicates: %w", err)
	}
	res.DuplicatesRemoved = removed

	now := e.now().UTC()
	if err := e.anomalies.Append(ctx, &Anomaly{
		Symbol:     symbol,
		Timeframe:  tf,
		Kind:       KindDuplicate,
		DetectedAt: now,
		Details:    fmt.Sprintf("removed %d duplicate rows across %d timestamps", removed, len(groups)),
	}); err != nil {
		return res, fmt.Errorf("append anomaly: %w", err)
	}

	slog.Info("duplicate cleanup", "symbol", symbol, "timeframe", tf,
		"found", res.DuplicatesFound, "removed", res.DuplicatesRemoved)
	return res, nil
}

// Anomalies lists recent audit records, optionally filtered by symbol.
func (e *Engine) Anomalies(ctx context.Context, symbol string, limit int) ([]Anomaly, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.anomalies.List(ctx, symbol, limit)
}
