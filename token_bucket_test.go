package ankylogate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test cases for token bucket

func newTokenBucket(t *testing.T, capacity, tokensPerInterval int, refillRate time.Duration) *TokenBucketLimiter {
	t.Helper()
	tb, err := NewTokenBucketLimiter(TokenBucketConfig{
		Capacity:          capacity,
		TokensPerInterval: tokensPerInterval,
		RefillRate:        refillRate,
	})
	require.NoError(t, err)
	return tb
}

/*
capacity of 3 tokens refilled 2 at a time every second
the bucket starts full so 3 requests pass at once and the 4th is denied
*/
func TestTokenBucketBurst(t *testing.T) {
	tb := newTokenBucket(t, 3, 2, time.Second)

	for i := 0; i < 3; i++ {
		assert.Truef(t, tb.Record("199.999.999", at(0)), "request %d should be allowed", i+1)
	}
	assert.False(t, tb.Record("199.999.999", at(0)))
	assert.Equal(t, 750*time.Millisecond, tb.TimeUntilNextAllowed("199.999.999", at(0.25)))
}

func TestTokenBucketRefill(t *testing.T) {
	tb := newTokenBucket(t, 3, 2, time.Second)

	for i := 0; i < 3; i++ {
		require.True(t, tb.Record("u", at(0)))
	}
	require.False(t, tb.Record("u", at(0.5)))
	assert.Equal(t, 500*time.Millisecond, tb.TimeUntilNextAllowed("u", at(0.5)))

	// one interval adds two tokens
	assert.True(t, tb.Record("u", at(1)))
	assert.True(t, tb.Record("u", at(1.2)))
	assert.False(t, tb.Record("u", at(1.2)))
	assert.Equal(t, 800*time.Millisecond, tb.TimeUntilNextAllowed("u", at(1.2)))
}

func TestTokenBucketFullBucketIsForgotten(t *testing.T) {
	tb := newTokenBucket(t, 2, 1, time.Second)

	require.True(t, tb.Record("u", at(0)))
	require.True(t, tb.Record("u", at(0)))
	require.Equal(t, 1, tb.Len())

	assert.True(t, tb.Allowed("u", at(1)))
	assert.Equal(t, 1, tb.Len(), "one token short of capacity")
	assert.True(t, tb.Allowed("u", at(2)))
	assert.Equal(t, 0, tb.Len())
}

/*
refill every nanosecond, two tokens at a time, and come back centuries later
the bucket must come out full instead of wrapping around
*/
func TestTokenBucketLongIdleGap(t *testing.T) {
	tb := newTokenBucket(t, 3, 2, time.Nanosecond)

	for i := 0; i < 3; i++ {
		require.True(t, tb.Record("u", at(0)))
	}
	require.Equal(t, 1, tb.Len())

	later := at(0).Add(time.Duration(math.MaxInt64))
	assert.True(t, tb.Allowed("u", later))
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, time.Duration(0), tb.TimeUntilNextAllowed("u", later))
}

func TestTokenBucketInvalidConfig(t *testing.T) {
	for _, cfg := range []TokenBucketConfig{
		{Capacity: 0, TokensPerInterval: 1, RefillRate: time.Second},
		{Capacity: 1, TokensPerInterval: 0, RefillRate: time.Second},
		{Capacity: 1, TokensPerInterval: 1, RefillRate: 0},
	} {
		_, err := NewTokenBucketLimiter(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}
