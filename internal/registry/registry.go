// Package registry provides the symbol registry that backfill runs read their
// work units from.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

// WorkUnit is one (symbol, timeframe) pair to process in a run. Units are
// read fresh from the registry at the start of every run.
type WorkUnit struct {
	Symbol     string            `json:"symbol"`
	AssetClass candle.AssetClass `json:"assetClass"`
	Timeframe  candle.Timeframe  `json:"timeframe"`
}

func (u WorkUnit) String() string {
	return fmt.Sprintf("%s/%s", u.Symbol, u.Timeframe)
}

type Registry interface {
	ListActive(ctx context.Context) ([]WorkUnit, error)
}

// Static is a fixed in-memory registry, used in tests and for bootstrapping.
type Static struct {
	units []WorkUnit
}

func NewStatic(units ...WorkUnit) *Static {
	return &Static{units: units}
}

func (s *Static) ListActive(_ context.Context) ([]WorkUnit, error) {
	out := make([]WorkUnit, len(s.units))
	copy(out, s.units)
	return out, nil
}

// ParseSeed parses a comma-separated list of "SYMBOL:asset_class:timeframe"
// triples, e.g. "AAPL:equity:1d,BTC-USD:crypto:1h".
func ParseSeed(s string) ([]WorkUnit, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var units []WorkUnit
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid seed entry %q, expected SYMBOL:asset_class:timeframe", part)
		}
		tf := candle.Timeframe(fields[2])
		if !tf.Valid() {
			return nil, fmt.Errorf("invalid timeframe %q in seed entry %q", fields[2], part)
		}
		units = append(units, WorkUnit{
			Symbol:     strings.ToUpper(fields[0]),
			AssetClass: candle.AssetClass(fields[1]),
			Timeframe:  tf,
		})
	}
	return units, nil
}
