package gateway

import (
	"sync"
	"time"
)

// maxTrackedKeys bounds the rate limiter map so a flood of unique user
// ids cannot grow it without limit.
const maxTrackedKeys = 4096

// RateLimiter enforces a fixed-window per-key request cap. The
// detection webhook uses it so a chatty proximity source cannot burn
// the generation budget.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*rateEntry
}

type rateEntry struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a limiter allowing limit requests per key per
// minute. A non-positive limit disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		entries: make(map[string]*rateEntry),
	}
}

// Enabled reports whether the limiter enforces anything.
func (rl *RateLimiter) Enabled() bool { return rl.limit > 0 }

// Allow reports whether a request for key fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	e, ok := rl.entries[key]
	if !ok || now.Sub(e.windowStart) >= time.Minute {
		if !ok && len(rl.entries) >= maxTrackedKeys {
			rl.evictStale(now)
		}
		rl.entries[key] = &rateEntry{windowStart: now, count: 1}
		return true
	}

	if e.count >= rl.limit {
		return false
	}
	e.count++
	return true
}

// evictStale drops expired windows. If every entry is live it clears
// the map outright; losing counts is better than unbounded growth.
func (rl *RateLimiter) evictStale(now time.Time) {
	for k, e := range rl.entries {
		if now.Sub(e.windowStart) >= time.Minute {
			delete(rl.entries, k)
		}
	}
	if len(rl.entries) >= maxTrackedKeys {
		rl.entries = make(map[string]*rateEntry)
	}
}
