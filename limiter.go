package ankylogate

import (
	"time"
)

// RateLimiter is the admission contract shared by every policy in this package.
// now is always supplied by the caller, limiters never read the wall clock.
type RateLimiter interface {
	// Allowed reports whether identity may act at now. Besides purging expired
	// state it does not change anything.
	Allowed(identity string, now time.Time) bool
	// Record admits identity at now if allowed and counts the admission.
	// A false return leaves the identity's state untouched.
	Record(identity string, now time.Time) bool
	// TimeUntilNextAllowed is how long identity has to wait from now. Never negative.
	TimeUntilNextAllowed(identity string, now time.Time) time.Duration
}

// Sizer reports how many identities currently hold limiter state
type Sizer interface {
	Len() int
}

type Policy string

const (
	PolicySlidingWindow Policy = "sliding_window"
	PolicyFixedInterval Policy = "fixed_interval"
	PolicyTokenBucket   Policy = "token_bucket"
)

// Clock is only used by the outer layers (middleware, drivers) to produce now.
type Clock func() time.Time

// SystemClock is the wall clock
func SystemClock() time.Time {
	return time.Now()
}

// clampWait keeps wait times from going negative when the caller's clock runs backwards
func clampWait(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

var (
	_ RateLimiter = (*SlidingWindowLimiter)(nil)
	_ RateLimiter = (*FixedIntervalThrottle)(nil)
	_ RateLimiter = (*TokenBucketLimiter)(nil)
	_ RateLimiter = (*TrackedLimiter)(nil)
	_ Sizer       = (*SlidingWindowLimiter)(nil)
	_ Sizer       = (*FixedIntervalThrottle)(nil)
	_ Sizer       = (*TokenBucketLimiter)(nil)
	_ Sweeper     = (*SlidingWindowLimiter)(nil)
	_ Sweeper     = (*FixedIntervalThrottle)(nil)
	_ Sweeper     = (*TokenBucketLimiter)(nil)
)
