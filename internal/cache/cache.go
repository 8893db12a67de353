// Package cache implements ServiceCache: the concurrent map from a
// service's cache identity to its memoized result, and the per-key
// exclusion protocol (CacheSlot) guaranteeing at-most-one instantiation
// attempt per key even under concurrent resolvers.
package cache

import "sync"

// Key identifies a cache slot. The cache treats it as an opaque string; the
// resolver builds it from a contracts.ServiceName.Key (declared or final
// contract stack) plus the identity of the configuration that produced it.
type Key = string

// Slot is one entry in the ServiceCache. Each slot owns its own mutex and
// condition variable so exactly one goroutine instantiates a given key at a
// time; concurrent requesters block on the condition variable until the
// owner releases the slot.
type Slot struct {
	mu           sync.Mutex
	cond         *sync.Cond
	instantiated bool
	acquired     bool
	service      any
}

func newSlot() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// AcquireResult is the outcome of AcquireInstantiateLock.
type AcquireResult struct {
	// Acquired is true when the caller now owns the slot's instantiate
	// lock and must call ReleaseInstantiateLock on every exit path.
	Acquired bool

	// Service holds the cached result when Acquired is false.
	Service any
}

// AcquireInstantiateLock attempts to become the single instantiating
// goroutine for this slot. If another goroutine is already instantiating
// it, this call blocks until that goroutine releases the slot, then
// returns the (already sealed) result without acquiring anything.
func (s *Slot) AcquireInstantiateLock() AcquireResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.acquired && !s.instantiated {
		s.cond.Wait()
	}

	if s.instantiated {
		return AcquireResult{Acquired: false, Service: s.service}
	}

	s.acquired = true
	return AcquireResult{Acquired: true}
}

// ReleaseInstantiateLock stores the sealed service (nil in
// analyze-dependencies-only mode), marks the slot instantiated, and wakes
// every waiter.
func (s *Slot) ReleaseInstantiateLock(service any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.service = service
	s.instantiated = true
	s.acquired = false
	s.cond.Broadcast()
}

// WaitForResolve blocks until the slot has been released and returns the
// sealed service.
func (s *Slot) WaitForResolve() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.instantiated {
		s.cond.Wait()
	}
	return s.service
}

// ServiceCache is the concurrent map from Key to Slot.
type ServiceCache struct {
	mu    sync.Mutex
	slots map[Key]*Slot
}

// New creates an empty ServiceCache.
func New() *ServiceCache {
	return &ServiceCache{slots: make(map[Key]*Slot)}
}

// GetOrCreate atomically inserts-if-absent and returns the slot for key.
func (c *ServiceCache) GetOrCreate(key Key) *Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.slots[key]; ok {
		return s
	}

	s := newSlot()
	c.slots[key] = s
	return s
}

// Peek returns the slot for key without creating one.
func (c *ServiceCache) Peek(key Key) (*Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	return s, ok
}

// Clear removes every slot. Existing Slot references held by in-flight
// resolutions remain valid; only future GetOrCreate calls are affected.
func (c *ServiceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = make(map[Key]*Slot)
}

// Len reports the number of cached keys.
func (c *ServiceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}
