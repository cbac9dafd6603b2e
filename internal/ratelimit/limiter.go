// Package ratelimit implements fixed-window attempt counters keyed by an
// arbitrary string (typically purpose plus client IP).
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one counted attempt.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when Allowed
}

// Limiter counts an attempt against key and reports whether it fits in the
// current window.  Every call counts, allowed or not.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(count int64, limit int, ttl time.Duration) Decision {
	d := Decision{Limit: limit, Allowed: count <= int64(limit)}
	if rem := int64(limit) - count; rem > 0 {
		d.Remaining = int(rem)
	}
	if !d.Allowed {
		d.RetryAfter = ttl
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}
