// Package ratelimit provides the fixed-window per-key limiter used for
// token issuance and token access. Rate limits are the only form of
// backpressure in the core: no queueing, no blocking waits.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter counts events per key in fixed windows. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
}

// New returns a limiter allowing limit events per key per window. A limit
// of zero or less disables the limiter (Allow always true).
func New(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{limit: limit, window: window, buckets: make(map[string]*bucket)}
}

// Allow records one event for key at time now and reports whether it fit
// within the window's limit. Denied events do not consume budget.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// Reset clears the window for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
