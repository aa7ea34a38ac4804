package evaluator

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter admits at most limit starts in any rolling window. Callers over
// quota block in Wait until the oldest admission leaves the window.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	starts []time.Time // admission times, oldest first
	now    func() time.Time
}

// NewWindowLimiter creates a limiter admitting limit starts per window. A
// non-positive limit admits everything.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// NewRequestsPerMinuteLimiter creates a limiter over a 60 second window.
func NewRequestsPerMinuteLimiter(rpm int) *WindowLimiter {
	return NewWindowLimiter(rpm, time.Minute)
}

// Wait blocks until a start is admitted or ctx is done.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	if l.limit <= 0 {
		return ctx.Err()
	}

	for {
		delay, ok := l.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records an admission if the window has room, otherwise it returns how
// long until the oldest admission expires.
func (l *WindowLimiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	expired := 0
	for expired < len(l.starts) && !l.starts[expired].After(cutoff) {
		expired++
	}
	l.starts = l.starts[expired:]

	if len(l.starts) < l.limit {
		l.starts = append(l.starts, now)
		return 0, true
	}
	return l.starts[0].Sub(cutoff), false
}

// Admitted returns the number of starts inside the current window.
func (l *WindowLimiter) Admitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.starts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
