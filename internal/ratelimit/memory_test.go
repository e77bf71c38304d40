package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMemory(limit int, window time.Duration) (*Memory, *clock) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(limit, window)
	m.now = c.now
	return m, c
}

func TestMemory_SixthAttemptRejected(t *testing.T) {
	m, _ := newTestMemory(5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := m.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d, err := m.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 15*time.Minute, d.RetryAfter)

	// other sources are unaffected
	d, err = m.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemory_SlidingWindow(t *testing.T) {
	m, c := newTestMemory(2, 10*time.Minute)
	ctx := context.Background()

	d, _ := m.Allow(ctx, "ip")
	require.True(t, d.Allowed)
	c.advance(4 * time.Minute)
	d, _ = m.Allow(ctx, "ip")
	require.True(t, d.Allowed)

	c.advance(5 * time.Minute)
	d, _ = m.Allow(ctx, "ip")
	require.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	// blocked attempts are not recorded, so the first hit ages out on schedule
	c.advance(time.Minute)
	d, _ = m.Allow(ctx, "ip")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestMemory_Sweep(t *testing.T) {
	m, c := newTestMemory(5, time.Minute)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old")
	c.advance(45 * time.Second)
	_, _ = m.Allow(ctx, "fresh")
	c.advance(30 * time.Second)

	dropped, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dropped)
	assert.Len(t, m.hits, 1)
	assert.Contains(t, m.hits, "fresh")
}

func TestMemory_Concurrent(t *testing.T) {
	m, _ := newTestMemory(50, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Allow(ctx, "shared")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
