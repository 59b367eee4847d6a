package gateway

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
)

const defaultRateLimitEntries = 10000

// RateLimiter is a per-connection sliding window limiter. Windows live in an
// LRU so abandoned connections age out without a cleanup sweep.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clock       clockwork.Clock

	mu      sync.Mutex
	windows *lru.Cache
}

// NewRateLimiter allows maxRequests per window for each connection
func NewRateLimiter(maxRequests int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	windows, err := lru.New(defaultRateLimitEntries)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
		windows:     windows,
	}
}

// Allow records a request from connID and reports whether it is within the limit
func (r *RateLimiter) Allow(connID string) bool {
	if r == nil || r.maxRequests <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	var timestamps []time.Time
	if v, ok := r.windows.Get(connID); ok {
		timestamps = v.([]time.Time)
	}

	valid := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.windows.Add(connID, valid)
		return false
	}

	r.windows.Add(connID, append(valid, now))
	return true
}

// Remove drops the window for a closed connection
func (r *RateLimiter) Remove(connID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows.Remove(connID)
}
