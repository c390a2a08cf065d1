package provider

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between dispatches. It is an explicit,
// constructible component: every call site shares one instance rather than a
// package-level singleton.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewLimiter allows at most maxRate dispatches per second. A rate of 0 or
// less disables pacing.
func NewLimiter(maxRate float64) *Limiter {
	var interval time.Duration
	if maxRate > 0 {
		interval = time.Duration(float64(time.Second) / maxRate)
	}
	return &Limiter{interval: interval}
}

// Wait blocks until this caller's dispatch slot arrives or ctx is cancelled.
// Slots are reserved under the lock, so concurrent callers are serialized at
// least interval apart regardless of how their sleeps interleave.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
