package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(limit int) (*SlidingWindowLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewSlidingWindowLimiter(limit, time.Minute)
	l.now = clock.now
	return l, clock
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(2)

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok, "third request inside the window")

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")

	clock.advance(time.Minute + time.Second)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok, "window slid past the earlier requests")
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(1)

	ok, _ := l.Allow(ctx, "a")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "a")
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "a"))
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
}

func TestSlidingWindowLimiter_Prune(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(5)

	_, _ = l.Allow(ctx, "old")
	clock.advance(45 * time.Second)
	_, _ = l.Allow(ctx, "new")
	clock.advance(30 * time.Second)

	assert.Equal(t, 1, l.Prune())
}

func TestSlidingWindowLimiter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l, _ := newLimiter(1)
	ok, err := l.Allow(ctx, "a")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
