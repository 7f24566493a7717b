package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowCounter_CountsAndResets(t *testing.T) {
	store, clock := newTestStore()
	counter, err := NewSlidingWindowCounter(store, NewKeyBuilder("test:", "secret"))
	require.NoError(t, err)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := counter.Increment(ctx, "api:203.0.113.5/32", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// a different key has its own window
	got, err := counter.Increment(ctx, "api:203.0.113.6/32", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	clock.Advance(time.Hour)
	got, err = counter.Increment(ctx, "api:203.0.113.5/32", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestSlidingWindowCounter_RejectsNonPositiveWindow(t *testing.T) {
	store, _ := newTestStore()
	counter, err := NewSlidingWindowCounter(store, NewKeyBuilder("", ""))
	require.NoError(t, err)

	_, err = counter.Increment(context.Background(), "k", 0)
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestSlidingWindowCounter_DropAndBlock(t *testing.T) {
	store, clock := newTestStore()
	counter, err := NewSlidingWindowCounter(store, NewKeyBuilder("", "s"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = counter.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, counter.Drop(ctx, "k"))
	got, err := counter.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	require.NoError(t, counter.Block(ctx, "k", 10*time.Second))
	blocked, err := counter.IsBlocked(ctx, "k")
	require.NoError(t, err)
	assert.True(t, blocked)

	clock.Advance(10 * time.Second)
	blocked, err = counter.IsBlocked(ctx, "k")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestKeyBuilder_HidesNames(t *testing.T) {
	keys := NewKeyBuilder("botdetection:", "s3cret")
	key := keys.Key("counter", "203.0.113.5/32")

	assert.NotContains(t, key, "203.0.113.5")
	assert.Equal(t, key, keys.Key("counter", "203.0.113.5/32"))
	assert.NotEqual(t, key, NewKeyBuilder("botdetection:", "other").Key("counter", "203.0.113.5/32"))
	assert.Regexp(t, `^botdetection:counter\[[0-9a-f]{64}\]$`, key)
}
