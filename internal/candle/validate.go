package candle

import "fmt"

// ValidationError describes a single rejected row. Rejected rows are logged
// and skipped; they are never retried.
type ValidationError struct {
	Symbol string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candle for %s at index %d: %s", e.Symbol, e.Index, e.Reason)
}

// ValidateBatch splits a fetched batch into storable rows and per-row
// rejections. A malformed row does not poison the rest of the batch.
//
// Rejection criteria: high below low, a price or volume below zero, a
// timestamp that does not advance past the previous accepted row, or a
// timestamp already seen in the batch.
func ValidateBatch(rows []Candle) ([]Candle, []*ValidationError) {
	valid := make([]Candle, 0, len(rows))
	var rejected []*ValidationError

	seen := make(map[int64]bool, len(rows))
	lastTs := int64(0)

	for i, r := range rows {
		if reason := checkRow(r); reason != "" {
			rejected = append(rejected, &ValidationError{Symbol: r.Symbol, Index: i, Reason: reason})
			continue
		}

		ts := r.Ts.Unix()
		if seen[ts] {
			rejected = append(rejected, &ValidationError{Symbol: r.Symbol, Index: i, Reason: "duplicate timestamp in batch"})
			continue
		}
		if len(valid) > 0 && ts <= lastTs {
			rejected = append(rejected, &ValidationError{Symbol: r.Symbol, Index: i, Reason: "timestamp not monotonically increasing"})
			continue
		}

		seen[ts] = true
		lastTs = ts
		valid = append(valid, r)
	}

	return valid, rejected
}

func checkRow(r Candle) string {
	switch {
	case r.Ts.IsZero():
		return "zero timestamp"
	case r.High < r.Low:
		return "high below low"
	case r.Open < 0 || r.High < 0 || r.Low < 0 || r.Close < 0:
		return "negative price"
	case r.Volume < 0:
		return "negative volume"
	}
	return ""
}
