package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(callsPerMinute int) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(callsPerMinute)
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestWaitEnforcesSpacing(t *testing.T) {
	l, clock := newTestLimiter(5)
	ctx := context.Background()

	var stamps []time.Time
	for range 10 {
		require.NoError(t, l.Wait(ctx))
		stamps = append(stamps, clock.t)
	}

	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, 12*time.Second, "call %d too close to predecessor", i)
	}
}

func TestSlidingWindowNeverExceedsCap(t *testing.T) {
	l, _ := newTestLimiter(5)
	ctx := context.Background()

	// Issue many permits; after each, the rolling window must hold at most 5.
	for i := range 25 {
		require.NoError(t, l.Wait(ctx))
		assert.LessOrEqual(t, l.InWindow(), 5, "window overflow after call %d", i)
	}
	assert.Equal(t, 25, l.Calls())
}

func TestAverageSpacingConvergesUnderLoad(t *testing.T) {
	l, clock := newTestLimiter(6)
	ctx := context.Background()

	start := clock.t
	const calls = 60
	for range calls {
		require.NoError(t, l.Wait(ctx))
	}
	elapsed := clock.t.Sub(start)

	// 60 calls at 6/min need at least ~59 spacings of 10s; jitter adds up to 10%.
	avg := elapsed / (calls - 1)
	assert.GreaterOrEqual(t, avg, 10*time.Second)
	assert.Less(t, avg, 12*time.Second)
}

func TestOnRateLimitRaisesFloorPermanently(t *testing.T) {
	l, clock := newTestLimiter(30) // 2s spacing before backoff

	l.OnRateLimit(0)
	assert.Equal(t, 15*time.Second, l.MinInterval())

	// Subsequent successes never shrink the interval.
	ctx := context.Background()
	for range 5 {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Equal(t, 15*time.Second, l.MinInterval())

	// Spacing between calls reflects the widened interval.
	before := clock.t
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, clock.t.Sub(before), 15*time.Second)
}

func TestOnRateLimitHonorsServerHint(t *testing.T) {
	l, _ := newTestLimiter(5)

	l.OnRateLimit(45 * time.Second)
	assert.Equal(t, 45*time.Second, l.MinInterval())

	// A smaller hint later never lowers the interval.
	l.OnRateLimit(20 * time.Second)
	assert.Equal(t, 45*time.Second, l.MinInterval())
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx))
	cancel()
	err := l.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
