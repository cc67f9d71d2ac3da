package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ankylogate "github.com/arryllopez/ankyloGate"
)

// virtualClock only moves when the simulation advances it
type virtualClock struct {
	now time.Time
}

func (v *virtualClock) Now() time.Time {
	return v.now
}

func (v *virtualClock) advance(d time.Duration) {
	if d > 0 {
		v.now = v.now.Add(d)
	}
}

type Result struct {
	Admitted int
	Denied   int
}

type simulation struct {
	limiter ankylogate.RateLimiter
	clock   *virtualClock
	rng     *rand.Rand
	logger  *zap.Logger
}

func newSimulation(limiter ankylogate.RateLimiter, policy ankylogate.Policy, seed uint64, logger *zap.Logger) *simulation {
	// every decision goes through a tracked limiter so it is logged the same way
	logged := ankylogate.PublisherFunc(func(ev ankylogate.RateLimitEvent) {
		fields := []zap.Field{zap.String("user", ev.Identity), zap.String("action", ev.Action)}
		if ev.Action == ankylogate.ActionDenied {
			fields = append(fields, zap.Duration("wait", time.Duration(ev.RetryAfterMs)*time.Millisecond))
		}
		logger.Debug("decision", fields...)
	})

	return &simulation{
		limiter: ankylogate.NewTrackedLimiter(limiter, policy, logged),
		clock:   &virtualClock{now: time.Unix(0, 0).UTC()},
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:  logger,
	}
}

// series sends count messages numbered from first, message n comes from user n%users+1
func (s *simulation) series(first, count, users int, minDelay, maxDelay time.Duration) Result {
	var result Result
	if users < 1 {
		users = 1
	}

	for id := first; id < first+count; id++ {
		user := fmt.Sprint(id%users + 1)
		now := s.clock.Now()

		admitted := s.limiter.Record(user, now)
		wait := s.limiter.TimeUntilNextAllowed(user, now)
		if admitted {
			result.Admitted++
		} else {
			result.Denied++
		}
		s.logger.Info("message",
			zap.Int("message", id),
			zap.String("user", user),
			zap.Bool("admitted", admitted),
			zap.Duration("wait", wait),
		)

		s.clock.advance(s.delay(minDelay, maxDelay))
	}
	return result
}

func (s *simulation) delay(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + time.Duration(s.rng.Int64N(int64(maxDelay-minDelay)))
}

// burst fires requests concurrent Record calls for identity at the same instant
func (s *simulation) burst(identity string, requests int) (Result, error) {
	now := s.clock.Now()
	var admitted atomic.Int64

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.limiter.Record(identity, now) {
				admitted.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	n := int(admitted.Load())
	return Result{Admitted: n, Denied: requests - n}, nil
}

func (s *simulation) tracked() int {
	if sizer, ok := s.limiter.(ankylogate.Sizer); ok {
		return sizer.Len()
	}
	return 0
}
