package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries rate-limited and transient failures with exponential
// backoff and jitter. Fatal failures are surfaced immediately; exhausting the
// attempt ceiling surfaces the last error.
type RetryPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor applied to each delay, in [0, 1].
	// Desynchronizes concurrent retriers.
	Jitter float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    300 * time.Second,
		Jitter:      0.5,
	}
}

// Run invokes fn until it succeeds, returns a fatal error, the context is
// cancelled, or MaxAttempts invocations have failed.
func (p RetryPolicy) Run(ctx context.Context, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = p.MaxDelay
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0 // the attempt ceiling bounds us, not wall clock

	var bo backoff.BackOff = backoff.WithContext(exp, ctx)
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxAttempts-1)
	}

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var pe *Error
		if errors.As(err, &pe) && pe.Kind == KindFatal {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
