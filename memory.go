package ankylogate

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// memoryStore maps identities to their limiter state. The map is split into
// shards so that identities living in different shards never wait on each other.
type memoryStore[S any] struct {
	shards []*storeShard[S]
	mask   uint64
}

type storeShard[S any] struct {
	mu      sync.Mutex
	entries map[string]S
}

// Option tunes the in-memory state store of a limiter.
type Option func(*storeOptions)

type storeOptions struct {
	shards int
}

// WithShards sets the number of lock partitions, rounded up to a power of two.
// Zero keeps the default.
func WithShards(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.shards = n
		}
	}
}

func buildStoreOptions(opts []Option) storeOptions {
	o := storeOptions{shards: defaultShards}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newMemoryStore[S any](opts storeOptions) *memoryStore[S] {
	n := 1
	for n < opts.shards {
		n <<= 1
	}

	m := &memoryStore[S]{
		shards: make([]*storeShard[S], n),
		mask:   uint64(n - 1),
	}
	for i := range m.shards {
		m.shards[i] = &storeShard[S]{entries: make(map[string]S)}
	}
	return m
}

// lock returns the shard owning identity with its mutex held.
// The caller must unlock it.
func (m *memoryStore[S]) lock(identity string) *storeShard[S] {
	shard := m.shards[xxhash.Sum64String(identity)&m.mask]
	shard.mu.Lock()
	return shard
}

func (m *memoryStore[S]) Len() int {
	total := 0
	for _, shard := range m.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

// sweep runs purge over every identity, one shard at a time, and returns how
// many identities were dropped.
func (m *memoryStore[S]) sweep(purge func(shard *storeShard[S], identity string)) int {
	removed := 0
	for _, shard := range m.shards {
		shard.mu.Lock()
		before := len(shard.entries)
		for identity := range shard.entries {
			purge(shard, identity)
		}
		removed += before - len(shard.entries)
		shard.mu.Unlock()
	}
	return removed
}

// Sweeper is implemented by limiters that can expire idle identities eagerly.
type Sweeper interface {
	Sweep(now time.Time) int
}

// StartJanitor sweeps s every interval until ctx is cancelled. Limiters already
// expire state on access; the janitor catches identities that never come back.
func StartJanitor(ctx context.Context, s Sweeper, clock Clock, every time.Duration) {
	if every <= 0 {
		return
	}
	if clock == nil {
		clock = SystemClock
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep(clock())
			}
		}
	}()
}
