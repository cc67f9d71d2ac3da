package ankylogate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStats keeps decision counters in Redis so several processes can report
// into one place. It never takes part in admission.
//
//	<prefix>:total:<policy>   hash, field per action
//	<prefix>:denied:<policy>  sorted set, identity -> denial count, expires after ttl
type RedisStats struct {
	redisConnect *redis.Client
	prefix       string
	ttl          time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

type RedisStatsOption func(*RedisStats)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

func WithStatsLogger(logger *zap.Logger) RedisStatsOption {
	return func(s *RedisStats) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewRedisStats(client *redis.Client, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		redisConnect: client,
		prefix:       "ankylogate:stats",
		ttl:          24 * time.Hour,
		timeout:      500 * time.Millisecond,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) totalKey(policy Policy) string {
	return s.prefix + ":total:" + string(policy)
}

func (s *RedisStats) deniedKey(policy Policy) string {
	return s.prefix + ":denied:" + string(policy)
}

// Publish records the event. Redis failures are logged and dropped.
func (s *RedisStats) Publish(event RateLimitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn("record rate limit stats", zap.String("identity", event.Identity), zap.Error(err))
	}
}

func (s *RedisStats) Record(ctx context.Context, event RateLimitEvent) error {
	pipe := s.redisConnect.TxPipeline()
	pipe.HIncrBy(ctx, s.totalKey(event.Policy), event.Action, 1)
	if event.Action == ActionDenied {
		key := s.deniedKey(event.Policy)
		pipe.ZIncrBy(ctx, key, 1, event.Identity)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the decision counters of policy keyed by action.
func (s *RedisStats) Totals(ctx context.Context, policy Policy) (map[string]int64, error) {
	raw, err := s.redisConnect.HGetAll(ctx, s.totalKey(policy)).Result()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(raw))
	for action, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, err
		}
		totals[action] = n
	}
	return totals, nil
}

// TopDenied returns up to n identities with the most denials for policy.
func (s *RedisStats) TopDenied(ctx context.Context, policy Policy, n int64) ([]redis.Z, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.redisConnect.ZRevRangeWithScores(ctx, s.deniedKey(policy), 0, n-1).Result()
}

// Reset deletes the counters of policy.
func (s *RedisStats) Reset(ctx context.Context, policy Policy) error {
	return s.redisConnect.Del(ctx, s.totalKey(policy), s.deniedKey(policy)).Err()
}
