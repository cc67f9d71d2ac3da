package ankylogate

import (
	"fmt"
	"time"
)

// Config selects a policy and carries the settings of all of them, only the
// fields of the chosen Policy are read.
type Config struct {
	Policy Policy
	// sliding window
	Window      time.Duration
	MaxRequests int
	// fixed interval
	MinInterval time.Duration
	// token bucket
	Capacity          int
	TokensPerInterval int
	RefillRate        time.Duration
	// lock partitions of the state store, 0 = default
	Shards int
}

// DefaultConfig is one message per user every 10 seconds on a sliding window.
func DefaultConfig() Config {
	return Config{
		Policy:            PolicySlidingWindow,
		Window:            10 * time.Second,
		MaxRequests:       1,
		MinInterval:       10 * time.Second,
		Capacity:          10,
		TokensPerInterval: 1,
		RefillRate:        time.Second,
	}
}

// New builds the limiter described by config.
func New(config Config) (RateLimiter, error) {
	if config.Shards < 0 {
		return nil, newConfigError(config.Policy, "shards", "must not be negative")
	}
	opts := []Option{WithShards(config.Shards)}

	var (
		limiter RateLimiter
		err     error
	)
	switch config.Policy {
	case PolicySlidingWindow:
		limiter, err = asLimiter(NewSlidingWindowLimiter(SlidingWindowConfig{
			Window:      config.Window,
			MaxRequests: config.MaxRequests,
		}, opts...))
	case PolicyFixedInterval:
		limiter, err = asLimiter(NewFixedIntervalThrottle(FixedIntervalConfig{
			MinInterval: config.MinInterval,
		}, opts...))
	case PolicyTokenBucket:
		limiter, err = asLimiter(NewTokenBucketLimiter(TokenBucketConfig{
			Capacity:          config.Capacity,
			TokensPerInterval: config.TokensPerInterval,
			RefillRate:        config.RefillRate,
		}, opts...))
	default:
		err = newConfigError("", "policy", fmt.Sprintf("unknown policy %q", config.Policy))
	}
	return limiter, err
}

// asLimiter keeps a failed constructor from leaking a typed nil into the interface
func asLimiter[L RateLimiter](l L, err error) (RateLimiter, error) {
	if err != nil {
		return nil, err
	}
	return l, nil
}
