// Package eventsourcing implements the event sourcing engine: replaying
// a workflow execution's event log to derive its current state, with a
// short-TTL in-process cache keyed by execution id.
package eventsourcing

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionState is the derived, in-memory projection of an execution's
// event log. Pure function output of replay; never mutated outside the
// engine.
type ExecutionState struct {
	ExecutionID  uuid.UUID
	Tenant       string
	CurrentState string
	Data         map[string]interface{}
	EventsApplied int
	IsComplete   bool
}

// Clone copies the state's Data map one level deep so callers cannot add,
// replace or delete a cached entry's keys by reference; nested maps and
// slices inside Data values are shared with the original.
func (s *ExecutionState) Clone() *ExecutionState {
	data := make(map[string]interface{}, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	return &ExecutionState{
		ExecutionID:   s.ExecutionID,
		Tenant:        s.Tenant,
		CurrentState:  s.CurrentState,
		Data:          data,
		EventsApplied: s.EventsApplied,
		IsComplete:    s.IsComplete,
	}
}

type cacheEntry struct {
	timestamp time.Time
	state     *ExecutionState
}

// Cache is the runtime-level executionId -> {timestamp, state} cache,
// guarded by an RWMutex so concurrent readers don't block each other
// while a rebuild is in flight.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry
	ttl     time.Duration
}

// NewCache builds a Cache with the given TTL (default 60s).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{entries: make(map[uuid.UUID]cacheEntry), ttl: ttl}
}

// Get returns a cached state if present and not expired.
func (c *Cache) Get(executionID uuid.UUID) (*ExecutionState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[executionID]
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) > c.ttl {
		return nil, false
	}
	return entry.state.Clone(), true
}

// Put stores a freshly derived state.
func (c *Cache) Put(executionID uuid.UUID, state *ExecutionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[executionID] = cacheEntry{timestamp: time.Now(), state: state.Clone()}
}

// Invalidate drops any cached entry for an execution.
func (c *Cache) Invalidate(executionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, executionID)
}
