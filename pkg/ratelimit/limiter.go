package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// SlidingWindowLimiter admits at most limit requests per key within any
// window of windowSize.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	limit      int
	windowSize time.Duration
	now        func() time.Time
}

type window struct {
	requests []time.Time
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:    make(map[string]*window),
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// Allow checks if a request is allowed and records it when it is.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists {
		w = &window{}
		l.windows[key] = w
	}

	now := l.now()
	w.requests = trim(w.requests, now.Add(-l.windowSize))
	if len(w.requests) >= l.limit {
		return false, nil
	}
	w.requests = append(w.requests, now)
	return true, nil
}

// Reset resets the rate limit for a key
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
	return nil
}

// Prune drops keys with no request inside the window and reports how many
// remain.
func (l *SlidingWindowLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now().Add(-l.windowSize)
	for key, w := range l.windows {
		w.requests = trim(w.requests, start)
		if len(w.requests) == 0 {
			delete(l.windows, key)
		}
	}
	return len(l.windows)
}

// RunPruner prunes every interval until ctx is done.
func (l *SlidingWindowLimiter) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// trim drops timestamps at or before start. Requests are appended in
// order, so the survivors are a suffix.
func trim(requests []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(start) {
		i++
	}
	return requests[i:]
}
