package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStorage_IncrWithExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewWithClock(clock.Now)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrWithExpiry(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	clock.Advance(59 * time.Second)
	got, err := s.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	clock.Advance(time.Second)
	got, err = s.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestStorage_IncrIfEquals(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewWithClock(clock.Now)
	ctx := context.Background()

	_, ok, err := s.IncrIfEquals(ctx, "guard", "v", "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Set(ctx, "guard", "v", 10*time.Second))
	count, ok, err := s.IncrIfEquals(ctx, "guard", "v", "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), count)

	clock.Advance(10 * time.Second)
	_, ok, err = s.IncrIfEquals(ctx, "guard", "v", "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_SetNXAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "a", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "a", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "a"))
	_, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStorage_ConcurrentIncrement(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrWithExpiry(ctx, "k", time.Minute)
		}()
	}
	wg.Wait()

	value, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "100", value)
}
