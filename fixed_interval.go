package ankylogate

import (
	"time"
)

type FixedIntervalConfig struct {
	MinInterval time.Duration
}

// FixedIntervalThrottle admits one request per identity per MinInterval.
// Only the last admission time is kept for each identity.
type FixedIntervalThrottle struct {
	minInterval time.Duration
	store       *memoryStore[time.Time]
}

func NewFixedIntervalThrottle(config FixedIntervalConfig, opts ...Option) (*FixedIntervalThrottle, error) {
	if config.MinInterval < 0 {
		return nil, newConfigError(PolicyFixedInterval, "min_interval", "must not be negative")
	}

	return &FixedIntervalThrottle{
		minInterval: config.MinInterval,
		store:       newMemoryStore[time.Time](buildStoreOptions(opts)),
	}, nil
}

// elapsed since the last admission, a clock that went backwards counts as zero
func elapsedSince(last, now time.Time) time.Duration {
	return clampWait(now.Sub(last))
}

// purge forgets identities whose cooldown is over, they behave exactly like
// identities never seen. Must be called with the shard locked.
func (ft *FixedIntervalThrottle) purge(shard *storeShard[time.Time], identity string, now time.Time) (time.Time, bool) {
	last, ok := shard.entries[identity]
	if !ok {
		return time.Time{}, false
	}
	if elapsedSince(last, now) >= ft.minInterval && !now.Before(last) {
		delete(shard.entries, identity)
		return time.Time{}, false
	}
	return last, true
}

func (ft *FixedIntervalThrottle) allowed(last time.Time, ok bool, now time.Time) bool {
	return !ok || elapsedSince(last, now) >= ft.minInterval
}

func (ft *FixedIntervalThrottle) Allowed(identity string, now time.Time) bool {
	shard := ft.store.lock(identity)
	defer shard.mu.Unlock()

	last, ok := ft.purge(shard, identity, now)
	return ft.allowed(last, ok, now)
}

func (ft *FixedIntervalThrottle) Record(identity string, now time.Time) bool {
	shard := ft.store.lock(identity)
	defer shard.mu.Unlock()

	last, ok := ft.purge(shard, identity, now)
	if !ft.allowed(last, ok, now) {
		return false
	}
	if ok && now.Before(last) {
		now = last
	}
	shard.entries[identity] = now
	return true
}

func (ft *FixedIntervalThrottle) TimeUntilNextAllowed(identity string, now time.Time) time.Duration {
	shard := ft.store.lock(identity)
	defer shard.mu.Unlock()

	last, ok := ft.purge(shard, identity, now)
	if ft.allowed(last, ok, now) {
		return 0
	}
	// measured from the stored admission even when now lies before it
	return clampWait(ft.minInterval - now.Sub(last))
}

func (ft *FixedIntervalThrottle) Sweep(now time.Time) int {
	return ft.store.sweep(func(shard *storeShard[time.Time], identity string) {
		ft.purge(shard, identity, now)
	})
}

// Len is the number of identities still cooling down as of the last access.
func (ft *FixedIntervalThrottle) Len() int {
	return ft.store.Len()
}
