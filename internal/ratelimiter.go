package internal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by client, used to cap
// websocket upgrades and history reads per IP.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := trimBefore(r.hits[key], now.Add(-r.window))
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	r.prune(now)
	return true
}

// prune drops keys whose hits have all expired so idle clients do not pile up.
func (r *RateLimiter) prune(now time.Time) {
	if len(r.hits) < 1024 {
		return
	}
	windowStart := now.Add(-r.window)
	for key, slice := range r.hits {
		recent := trimBefore(slice, windowStart)
		if len(recent) == 0 {
			delete(r.hits, key)
			continue
		}
		r.hits[key] = recent
	}
}

func trimBefore(slice []time.Time, windowStart time.Time) []time.Time {
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	return slice[:idx]
}
