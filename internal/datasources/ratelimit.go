package datasources

import (
	"sync"
	"time"
)

// SlidingWindowLimiter bounds how many requests may start inside a trailing
// window. Exceeding the limit fails immediately; nothing queues here.
type SlidingWindowLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests []time.Time
}

func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
	}
}

// Allow records and admits the request if the window has room.
func (l *SlidingWindowLimiter) Allow() bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	if len(l.requests) >= l.limit {
		return false
	}
	l.requests = append(l.requests, now)
	return true
}

// InWindow reports how many requests are currently inside the window.
func (l *SlidingWindowLimiter) InWindow() int {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	return len(l.requests)
}

// Utilization is the window fill fraction, for health surfaces.
func (l *SlidingWindowLimiter) Utilization() float64 {
	if l.limit <= 0 {
		return 0
	}
	return float64(l.InWindow()) / float64(l.limit)
}

// prune drops requests older than the window. Caller holds mu.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := l.requests[:0]
	for _, t := range l.requests {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.requests = keep
}
