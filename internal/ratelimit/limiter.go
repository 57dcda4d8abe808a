// Package ratelimit implements fixed-window request limiting keyed by API
// key fingerprint.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	Limit   int
	Count   int
	ResetAt time.Time
}

// Remaining returns how many requests are left in the current window.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// RetryAfter returns the time until the window resets, rounded up to
// whole seconds and never less than one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	secs := (wait + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Limiter admits or rejects requests for a key.
// Implementations: MemoryLimiter, RedisLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
	Close() error
}
