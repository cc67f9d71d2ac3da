package ankylogate

import (
	"container/list"
	"time"
)

// The following block implements the sliding window algorithm

type SlidingWindowConfig struct {
	Window      time.Duration
	MaxRequests int
}

// SlidingWindowLimiter admits at most MaxRequests per identity in any trailing Window.
type SlidingWindowLimiter struct {
	window      time.Duration
	maxRequests int
	store       *memoryStore[*list.List] // deque of admission times per identity, oldest first
}

func NewSlidingWindowLimiter(config SlidingWindowConfig, opts ...Option) (*SlidingWindowLimiter, error) {
	if config.Window <= 0 {
		return nil, newConfigError(PolicySlidingWindow, "window", "must be positive")
	}
	if config.MaxRequests < 1 {
		return nil, newConfigError(PolicySlidingWindow, "max_requests", "must be at least 1")
	}

	return &SlidingWindowLimiter{
		window:      config.Window,
		maxRequests: config.MaxRequests,
		store:       newMemoryStore[*list.List](buildStoreOptions(opts)),
	}, nil
}

// purge drops every admission at or before now-window and deletes the log once
// it is empty. Must be called with the shard locked.
func (sw *SlidingWindowLimiter) purge(shard *storeShard[*list.List], identity string, now time.Time) *list.List {
	logs, ok := shard.entries[identity]
	if !ok {
		return nil
	}

	edgeTime := now.Add(-sw.window)

	// Remove outdated logs, they are ordered so only the head needs checking
	for logs.Len() > 0 {
		front := logs.Front()
		if front.Value.(time.Time).After(edgeTime) {
			break
		}
		logs.Remove(front)
	}

	if logs.Len() == 0 {
		delete(shard.entries, identity)
		return nil
	}
	return logs
}

func (sw *SlidingWindowLimiter) allowed(logs *list.List) bool {
	return logs == nil || logs.Len() < sw.maxRequests
}

func (sw *SlidingWindowLimiter) Allowed(identity string, now time.Time) bool {
	shard := sw.store.lock(identity)
	defer shard.mu.Unlock()

	return sw.allowed(sw.purge(shard, identity, now))
}

func (sw *SlidingWindowLimiter) Record(identity string, now time.Time) bool {
	shard := sw.store.lock(identity)
	defer shard.mu.Unlock()

	logs := sw.purge(shard, identity, now)
	if !sw.allowed(logs) {
		return false
	}

	if logs == nil {
		logs = list.New()
		shard.entries[identity] = logs
	} else if last := logs.Back().Value.(time.Time); now.Before(last) {
		// clock went backwards, keep the deque ordered
		now = last
	}
	logs.PushBack(now)
	return true
}

func (sw *SlidingWindowLimiter) TimeUntilNextAllowed(identity string, now time.Time) time.Duration {
	shard := sw.store.lock(identity)
	defer shard.mu.Unlock()

	logs := sw.purge(shard, identity, now)
	if sw.allowed(logs) {
		return 0
	}

	oldest := logs.Front().Value.(time.Time)
	return clampWait(sw.window - now.Sub(oldest))
}

// Sweep purges every identity against now
func (sw *SlidingWindowLimiter) Sweep(now time.Time) int {
	return sw.store.sweep(func(shard *storeShard[*list.List], identity string) {
		sw.purge(shard, identity, now)
	})
}

// Len is the number of identities with at least one admission inside the window
// as of the last access.
func (sw *SlidingWindowLimiter) Len() int {
	return sw.store.Len()
}
