package quality

import (
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

// Thresholds are the anomaly cutoffs for one (asset class, timeframe)
// combination. A 20% close-to-close move is an outlier for daily large-cap
// equities but routine for one-minute crypto, so thresholds resolve per
// combination instead of one global constant.
type Thresholds struct {
	// MaxGap is the largest acceptable delta between temporally adjacent
	// rows before a gap anomaly is flagged.
	MaxGap time.Duration
	// OutlierPct flags any close-to-close move whose absolute fractional
	// change exceeds it.
	OutlierPct float64
}

type thresholdKey struct {
	class candle.AssetClass
	tf    candle.Timeframe
}

// ThresholdTable resolves thresholds with fallbacks: exact (class, timeframe)
// match, then per-class default, then the global default.
type ThresholdTable struct {
	exact    map[thresholdKey]Thresholds
	byClass  map[candle.AssetClass]Thresholds
	fallback Thresholds
}

// DefaultThresholds returns the stock table: 24h gap / 20% outlier globally,
// with looser outlier bounds for crypto and tighter gap bounds for intraday
// crypto timeframes.
func DefaultThresholds() *ThresholdTable {
	t := &ThresholdTable{
		exact:   make(map[thresholdKey]Thresholds),
		byClass: make(map[candle.AssetClass]Thresholds),
		fallback: Thresholds{
			MaxGap:     24 * time.Hour,
			OutlierPct: 0.20,
		},
	}
	// Crypto trades continuously: any gap beyond a few intervals is real.
	t.byClass[candle.AssetCrypto] = Thresholds{MaxGap: 24 * time.Hour, OutlierPct: 0.35}
	t.Set(candle.AssetCrypto, candle.Timeframe1m, Thresholds{MaxGap: 5 * time.Minute, OutlierPct: 0.50})
	t.Set(candle.AssetCrypto, candle.Timeframe5m, Thresholds{MaxGap: 25 * time.Minute, OutlierPct: 0.50})
	t.Set(candle.AssetCrypto, candle.Timeframe1h, Thresholds{MaxGap: 4 * time.Hour, OutlierPct: 0.40})
	// Daily equities close over weekends; allow three calendar days.
	t.Set(candle.AssetEquity, candle.Timeframe1d, Thresholds{MaxGap: 72 * time.Hour, OutlierPct: 0.20})
	return t
}

// Set installs an exact (class, timeframe) override.
func (t *ThresholdTable) Set(class candle.AssetClass, tf candle.Timeframe, th Thresholds) {
	t.exact[thresholdKey{class, tf}] = th
}

// SetClass installs a per-class default.
func (t *ThresholdTable) SetClass(class candle.AssetClass, th Thresholds) {
	t.byClass[class] = th
}

func (t *ThresholdTable) Resolve(class candle.AssetClass, tf candle.Timeframe) Thresholds {
	if th, ok := t.exact[thresholdKey{class, tf}]; ok {
		return th
	}
	if th, ok := t.byClass[class]; ok {
		return th
	}
	return t.fallback
}
