package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter allows a fixed number of attempts per source within a window.
type RateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clock:   time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *RateLimiter) Allow(_ context.Context, source string) (bool, error) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok || !b.resetAt.After(now) {
		l.buckets[source] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}
	if b.count >= l.limit {
		return false, nil
	}
	b.count++
	return true, nil
}
