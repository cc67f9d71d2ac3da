package ankylogate

import (
	"time"
)

// The following code block implements the Token Bucket Algoritm

type TokenBucketConfig struct {
	Capacity          int
	TokensPerInterval int
	RefillRate        time.Duration
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// TokenBucketLimiter lets each identity burst up to Capacity requests, then
// refills TokensPerInterval tokens every RefillRate.
type TokenBucketLimiter struct {
	capacity          int
	tokensPerInterval int
	refillRate        time.Duration
	store             *memoryStore[*tokenBucket]
}

func NewTokenBucketLimiter(config TokenBucketConfig, opts ...Option) (*TokenBucketLimiter, error) {
	if config.Capacity < 1 {
		return nil, newConfigError(PolicyTokenBucket, "capacity", "must be at least 1")
	}
	if config.TokensPerInterval < 1 {
		return nil, newConfigError(PolicyTokenBucket, "tokens_per_interval", "must be at least 1")
	}
	if config.RefillRate <= 0 {
		return nil, newConfigError(PolicyTokenBucket, "refill_rate", "must be positive")
	}

	return &TokenBucketLimiter{
		capacity:          config.Capacity,
		tokensPerInterval: config.TokensPerInterval,
		refillRate:        config.RefillRate,
		store:             newMemoryStore[*tokenBucket](buildStoreOptions(opts)),
	}, nil
}

// purge refills the identity's bucket up to now. A bucket back at capacity is
// the same as no bucket, so it gets deleted. Must be called with the shard locked.
func (tb *TokenBucketLimiter) purge(shard *storeShard[*tokenBucket], identity string, now time.Time) *tokenBucket {
	bucket, ok := shard.entries[identity]
	if !ok {
		return nil
	}

	// how many refill intervals have passed since the last refill
	elapsed := now.Sub(bucket.lastRefill)
	if elapsed > 0 {
		intervals := int(elapsed / tb.refillRate)
		// never add more than it takes to fill the bucket, a long idle gap
		// would otherwise overflow the token count
		needed := (tb.capacity - bucket.tokens + tb.tokensPerInterval - 1) / tb.tokensPerInterval
		if intervals > needed {
			intervals = needed
		}
		if intervals > 0 {
			bucket.tokens += intervals * tb.tokensPerInterval
			bucket.lastRefill = bucket.lastRefill.Add(time.Duration(intervals) * tb.refillRate)
		}
	}

	// cap tokens at capacity
	if bucket.tokens >= tb.capacity {
		delete(shard.entries, identity)
		return nil
	}
	return bucket
}

func (tb *TokenBucketLimiter) Allowed(identity string, now time.Time) bool {
	shard := tb.store.lock(identity)
	defer shard.mu.Unlock()

	bucket := tb.purge(shard, identity, now)
	return bucket == nil || bucket.tokens > 0
}

func (tb *TokenBucketLimiter) Record(identity string, now time.Time) bool {
	shard := tb.store.lock(identity)
	defer shard.mu.Unlock()

	bucket := tb.purge(shard, identity, now)
	if bucket == nil {
		shard.entries[identity] = &tokenBucket{
			tokens:     tb.capacity - 1,
			lastRefill: now,
		}
		return true
	}

	// if there are tokens available in the bucket, we take one out
	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

func (tb *TokenBucketLimiter) TimeUntilNextAllowed(identity string, now time.Time) time.Duration {
	shard := tb.store.lock(identity)
	defer shard.mu.Unlock()

	bucket := tb.purge(shard, identity, now)
	if bucket == nil || bucket.tokens > 0 {
		return 0
	}
	return clampWait(bucket.lastRefill.Add(tb.refillRate).Sub(now))
}

func (tb *TokenBucketLimiter) Sweep(now time.Time) int {
	return tb.store.sweep(func(shard *storeShard[*tokenBucket], identity string) {
		tb.purge(shard, identity, now)
	})
}

// Len is the number of identities whose bucket is not full.
func (tb *TokenBucketLimiter) Len() int {
	return tb.store.Len()
}
