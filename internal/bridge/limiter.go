package bridge

import (
	"sync"
	"time"
)

// slidingWindowLimiter is a single-writer, component-owned rate limiter
// (spec.md §4.4 "sliding window of W seconds; at most N requests per
// window", §9 "encapsulate as owned fields of the Bridge component" rather
// than the teacher's module-global state). Not safe for external mutation;
// only the AI Bridge calls Allow.
type slidingWindowLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	history []time.Time
}

func newSlidingWindowLimiter(window time.Duration, max int) *slidingWindowLimiter {
	return &slidingWindowLimiter{window: window, max: max}
}

// Allow reports whether a request at now may proceed, and records it if so.
func (l *slidingWindowLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.history[:0]
	for _, t := range l.history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.history = kept

	if len(l.history) >= l.max {
		return false
	}
	l.history = append(l.history, now)
	return true
}
