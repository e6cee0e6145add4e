// Package ratelimit enforces the provider's calls-per-minute ceiling.
//
// The limiter keeps a rolling log of call timestamps and blocks until both
// conditions hold: the minimum inter-call spacing has elapsed, and fewer than
// callsPerMinute calls fall inside the rolling 60-second window. Spacing
// alone is not enough: bursty callers could otherwise exceed the window cap
// while keeping average spacing legal.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Window is the rolling period the provider meters against.
const Window = time.Minute

// rateLimitFloor is the minimum spacing adopted after a 429. Once the
// provider has pushed back, the limiter stays at or above this for the rest
// of its life; there is no decay back to the configured rate.
const rateLimitFloor = 15 * time.Second

// Limiter is a blocking sliding-window rate limiter for one provider.
// A single instance must be shared by all callers in-process that target the
// same API key, otherwise backoff state resets between calls.
type Limiter struct {
	mu             sync.Mutex
	callsPerMinute int
	minInterval    time.Duration
	calls          []time.Time
	total          int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter for the given calls-per-minute ceiling.
func New(callsPerMinute int) *Limiter {
	if callsPerMinute <= 0 {
		callsPerMinute = 1
	}
	return &Limiter{
		callsPerMinute: callsPerMinute,
		minInterval:    Window / time.Duration(callsPerMinute),
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

// Wait blocks until the next call is permitted, then records it.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		var wait time.Duration
		if n := len(l.calls); n > 0 {
			if since := now.Sub(l.calls[n-1]); since < l.minInterval {
				wait = l.minInterval - since
			}
		}
		if len(l.calls) >= l.callsPerMinute {
			// Oldest call must age out of the window before another is allowed.
			if w := Window - now.Sub(l.calls[0]); w > wait {
				wait = w
			}
		}

		if wait <= 0 {
			l.calls = append(l.calls, now)
			l.total++
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		// Small jitter avoids synchronized bursts across workers.
		jitter := time.Duration(rand.Int64N(int64(wait)/10 + 1))
		if err := l.sleep(ctx, wait+jitter); err != nil {
			return err
		}
	}
}

// OnRateLimit widens the minimum spacing after a 429. The new interval is the
// largest of the current interval, the server's wait hint, and the 15s floor.
func (l *Limiter) OnRateLimit(hint time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.minInterval
	if hint > next {
		next = hint
	}
	if rateLimitFloor > next {
		next = rateLimitFloor
	}
	l.minInterval = next
}

// MinInterval returns the current minimum spacing between calls.
func (l *Limiter) MinInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minInterval
}

// Calls returns the total number of permits issued over the limiter's life.
func (l *Limiter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// InWindow returns the number of recorded calls inside the rolling window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls)
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
