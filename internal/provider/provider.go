// Package provider defines the external market-data provider contract and the
// resilience wrapper (pacing, retries, counters) shared by every call site.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

// Provider fetches candles from an external source. Implementations are
// subject to provider-side rate limiting and transient failures and should
// classify errors with the Kind taxonomy below.
type Provider interface {
	Fetch(ctx context.Context, symbol string, tf candle.Timeframe, from, to time.Time) ([]candle.Candle, error)
}

type Kind int

const (
	// KindRateLimited marks provider throttling; retried with backoff.
	KindRateLimited Kind = iota
	// KindTransient marks recoverable failures (timeouts, 5xx); retried.
	KindTransient
	// KindFatal marks auth/bad-request class failures; never retried.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification from an error chain. The second return
// is false when the error did not originate from a provider.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
