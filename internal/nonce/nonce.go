// Package nonce implements the NonceGate from spec.md §4.2: a bounded,
// process-scoped dedup store tracking three states per message id
// (unseen, in-flight, final) so a redelivered id is never dispatched to
// the handler twice while the first delivery is still in flight or has
// already completed/failed within the gate's retention window.
package nonce

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default bounds satisfy spec.md §4.2's "fixed-size LRU of at least
// 10,000 entries with a TTL of at least one hour".
const (
	DefaultCapacity = 10_000
	DefaultTTL      = time.Hour
)

type state int

const (
	stateInFlight state = iota
	stateFinal
)

// Gate is a thread-safe, bounded, TTL'd dedup store.
type Gate struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, state]
}

// New creates a Gate bounded by capacity entries, each evicted after ttl.
func New(capacity int, ttl time.Duration) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{cache: expirable.NewLRU[string, state](capacity, nil, ttl)}
}

// Admit returns true if id was previously unseen (not present, or
// evicted since its last final transition), transitioning it to
// in-flight. Returns false if the id is already in-flight or final —
// the caller must treat this as a duplicate.
func (g *Gate) Admit(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.cache.Get(id); ok {
		return false
	}
	g.cache.Add(id, stateInFlight)
	return true
}

// Complete transitions id from in-flight to final(complete). A no-op if
// id isn't currently tracked (e.g. it was evicted mid-flight).
func (g *Gate) Complete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cache.Peek(id); !ok {
		return
	}
	g.cache.Add(id, stateFinal)
}

// Failed transitions id from in-flight to final(failed). Like Complete,
// a later redelivery is only admitted again once the gate evicts the
// entry (bounded by capacity or TTL).
func (g *Gate) Failed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Add(id, stateFinal)
}

// Len reports the current number of tracked ids, for observability.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Len()
}
