package ankylogate

import (
	"time"
)

// TrackedLimiter wraps a RateLimiter and publishes an event for every Record.
// Allowed and TimeUntilNextAllowed are passed through untracked.
type TrackedLimiter struct {
	wrapped   RateLimiter
	policy    Policy
	endpoint  string
	publisher EventPublisher
}

func NewTrackedLimiter(limiter RateLimiter, policy Policy, publishers ...EventPublisher) *TrackedLimiter {
	return &TrackedLimiter{
		wrapped:   limiter,
		policy:    policy,
		publisher: Publishers(publishers),
	}
}

// ForEndpoint returns a copy whose events carry endpoint.
func (t *TrackedLimiter) ForEndpoint(endpoint string) *TrackedLimiter {
	cp := *t
	cp.endpoint = endpoint
	return &cp
}

func (t *TrackedLimiter) Allowed(identity string, now time.Time) bool {
	return t.wrapped.Allowed(identity, now)
}

func (t *TrackedLimiter) Record(identity string, now time.Time) bool {
	allowed := t.wrapped.Record(identity, now)

	event := RateLimitEvent{
		Identity:  identity,
		Policy:    t.policy,
		Endpoint:  t.endpoint,
		Action:    ActionAllowed,
		Timestamp: now.UnixNano(),
	}
	if !allowed {
		event.Action = ActionDenied
		event.RetryAfterMs = t.wrapped.TimeUntilNextAllowed(identity, now).Milliseconds()
	}
	t.publisher.Publish(event)

	return allowed
}

func (t *TrackedLimiter) TimeUntilNextAllowed(identity string, now time.Time) time.Duration {
	return t.wrapped.TimeUntilNextAllowed(identity, now)
}

// Len forwards to the wrapped limiter when it tracks its size, otherwise 0.
func (t *TrackedLimiter) Len() int {
	if s, ok := t.wrapped.(Sizer); ok {
		return s.Len()
	}
	return 0
}
