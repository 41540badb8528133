package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryTier is an in-process hot tier with native LRU eviction and an
// optional TTL fixed at construction. It satisfies HotTier.
type MemoryTier struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryTier creates a memory tier holding at most capacity items. A zero
// ttl disables time-based expiry; items then leave only through LRU eviction
// or deletion.
func NewMemoryTier(capacity int, ttl time.Duration) *MemoryTier {
	return &MemoryTier{
		lru: expirable.NewLRU[string, []byte](capacity, nil, ttl),
	}
}

// Get returns the stored bytes or ErrNotFound.
func (t *MemoryTier) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := t.lru.Get(key); ok {
		return v, nil
	}
	return nil, ErrNotFound
}

// Set stores value under key. The per-call ttl is ignored: expirable LRUs
// carry one TTL for the whole tier, set at construction.
func (t *MemoryTier) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	t.lru.Add(key, value)
	return nil
}

// Delete removes key.
func (t *MemoryTier) Delete(_ context.Context, key string) error {
	t.lru.Remove(key)
	return nil
}

// Size returns the current item count.
func (t *MemoryTier) Size() int {
	return t.lru.Len()
}

// Purge drops every entry. Used by tests and cache resets.
func (t *MemoryTier) Purge() {
	t.lru.Purge()
}
