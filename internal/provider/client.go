package provider

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

// Client wraps a Provider with pacing, retries, and request counters. All
// orchestrator units fetch through one shared Client so the limiter sees
// every dispatch.
type Client struct {
	provider Provider
	limiter  *Limiter
	retry    RetryPolicy

	totalRequests    atomic.Int64
	rateLimitedCount atomic.Int64
}

func NewClient(p Provider, limiter *Limiter, retry RetryPolicy) *Client {
	return &Client{provider: p, limiter: limiter, retry: retry}
}

// Fetch retrieves candles for one work unit's range. Rate-limited and
// transient errors are retried per the policy; fatal errors and retry
// exhaustion surface to the caller as a unit-level failure.
func (c *Client) Fetch(ctx context.Context, symbol string, tf candle.Timeframe, from, to time.Time) ([]candle.Candle, error) {
	var rows []candle.Candle

	err := c.retry.Run(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait only fails when ctx is done. Return the context error
			// unclassified so it stops the retry loop without counting as a
			// provider failure.
			return err
		}

		c.totalRequests.Add(1)
		out, err := c.provider.Fetch(ctx, symbol, tf, from, to)
		if err != nil {
			if kind, ok := KindOf(err); ok && kind == KindRateLimited {
				c.rateLimitedCount.Add(1)
			}
			return err
		}
		rows = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type Stats struct {
	TotalRequests    int64 `json:"totalRequests"`
	RateLimitedCount int64 `json:"rateLimitedCount"`
}

func (c *Client) Stats() Stats {
	return Stats{
		TotalRequests:    c.totalRequests.Load(),
		RateLimitedCount: c.rateLimitedCount.Load(),
	}
}
