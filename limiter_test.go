package ankylogate

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limiterCase struct {
	name string
	new  func(t *testing.T) RateLimiter
}

// every policy configured so that a single admission blocks the identity for 10 seconds
func singleAdmissionPolicies() []limiterCase {
	return []limiterCase{
		{"sliding_window", func(t *testing.T) RateLimiter { return newSlidingWindow(t, 10*time.Second, 1) }},
		{"fixed_interval", func(t *testing.T) RateLimiter { return newFixedInterval(t, 10*time.Second) }},
		{"token_bucket", func(t *testing.T) RateLimiter { return newTokenBucket(t, 1, 1, 10*time.Second) }},
	}
}

func TestContractDenialDoesNotMutate(t *testing.T) {
	for _, tc := range singleAdmissionPolicies() {
		t.Run(tc.name, func(t *testing.T) {
			limiter := tc.new(t)

			require.True(t, limiter.Record("u", at(0)))
			before := limiter.TimeUntilNextAllowed("u", at(4))
			require.False(t, limiter.Allowed("u", at(4)))

			require.False(t, limiter.Record("u", at(4)))

			assert.False(t, limiter.Allowed("u", at(4)))
			assert.Equal(t, before, limiter.TimeUntilNextAllowed("u", at(4)))
		})
	}
}

func TestContractWaitTimeIsExact(t *testing.T) {
	for _, tc := range singleAdmissionPolicies() {
		t.Run(tc.name, func(t *testing.T) {
			limiter := tc.new(t)

			require.True(t, limiter.Record("u", at(0)))
			now := at(3.25)
			require.False(t, limiter.Record("u", now))

			wait := limiter.TimeUntilNextAllowed("u", now)
			require.Equal(t, 6750*time.Millisecond, wait)

			assert.False(t, limiter.Record("u", now.Add(wait-time.Nanosecond)))
			assert.True(t, limiter.Record("u", now.Add(wait)))
		})
	}
}

func TestContractUnknownIdentityIsAllowed(t *testing.T) {
	for _, tc := range singleAdmissionPolicies() {
		t.Run(tc.name, func(t *testing.T) {
			limiter := tc.new(t)

			assert.True(t, limiter.Allowed("nobody", at(0)))
			assert.Equal(t, time.Duration(0), limiter.TimeUntilNextAllowed("nobody", at(0)))
		})
	}
}

func TestContractMemoryReturnsToZero(t *testing.T) {
	for _, tc := range singleAdmissionPolicies() {
		t.Run(tc.name, func(t *testing.T) {
			limiter := tc.new(t)

			for i := 0; i < 100; i++ {
				require.True(t, limiter.Record(fmt.Sprintf("user-%d", i), at(float64(i)/10)))
			}
			require.Equal(t, 100, limiter.(Sizer).Len())

			limiter.(Sweeper).Sweep(at(30))
			assert.Equal(t, 0, limiter.(Sizer).Len())
		})
	}
}

func TestContractConcurrentSameIdentity(t *testing.T) {
	for _, tc := range singleAdmissionPolicies() {
		t.Run(tc.name, func(t *testing.T) {
			limiter := tc.new(t)
			now := at(0)

			var admitted atomic.Int64
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if limiter.Record("C", now) {
						admitted.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(1), admitted.Load())
		})
	}
}

func TestSlidingWindowConcurrentManyIdentities(t *testing.T) {
	sw, err := NewSlidingWindowLimiter(SlidingWindowConfig{Window: time.Minute, MaxRequests: 3}, WithShards(4))
	require.NoError(t, err)

	const identities = 50
	counts := make([]atomic.Int64, identities)

	var wg sync.WaitGroup
	for id := 0; id < identities; id++ {
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if sw.Record(fmt.Sprintf("id-%d", id), at(1)) {
					counts[id].Add(1)
				}
			}()
		}
	}
	wg.Wait()

	for id := range counts {
		assert.Equalf(t, int64(3), counts[id].Load(), "identity %d", id)
	}
	assert.Equal(t, identities, sw.Len())
}

// admissions inside any trailing window never exceed max requests
func TestSlidingWindowAdmissionBound(t *testing.T) {
	const (
		window      = 2 * time.Second
		maxRequests = 4
	)
	sw := newSlidingWindow(t, window, maxRequests)
	rng := rand.New(rand.NewPCG(1, 2))

	now := epoch
	var admitted []time.Time
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.IntN(300)) * time.Millisecond)
		if sw.Record("u", now) {
			admitted = append(admitted, now)
		}
	}
	require.NotEmpty(t, admitted)

	for i := range admitted {
		inWindow := 0
		for j := i; j < len(admitted) && admitted[j].Sub(admitted[i]) < window; j++ {
			inWindow++
		}
		require.LessOrEqualf(t, inWindow, maxRequests, "window starting at admission %d", i)
	}
}

// consecutive admissions are at least min interval apart
func TestFixedIntervalCooldownBound(t *testing.T) {
	const minInterval = 1500 * time.Millisecond
	ft := newFixedInterval(t, minInterval)
	rng := rand.New(rand.NewPCG(3, 4))

	now := epoch
	var last time.Time
	admissions := 0
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.IntN(400)) * time.Millisecond)
		if ft.Record("u", now) {
			if admissions > 0 {
				require.GreaterOrEqual(t, now.Sub(last), minInterval)
			}
			last = now
			admissions++
		}
	}
	assert.Greater(t, admissions, 1)
}
