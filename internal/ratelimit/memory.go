package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	reset time.Time
}

// MemoryLimiter keeps counters in process.  It is used when Redis is not
// reachable at startup, so limits then apply per instance.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter(limit int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: w, windows: map[string]*window{}, now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		if len(l.windows) > 10000 {
			l.sweep(now)
		}
		w = &window{reset: now.Add(l.window)}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, l.limit, w.reset.Sub(now)), nil
}

// sweep drops expired windows.  Caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
}
