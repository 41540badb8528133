// Package cache implements the two-tier (hot/cold) store backing lazy
// metadata attributes. The hot tier is a bounded, evicting, low-latency
// key-value store; the cold tier is durable and unbounded. Manager
// coordinates L1 -> L2 -> compute fallback with write-through population.
//
// Both tiers hold the same canonical JSON encoding of a value, so a value
// promoted from the cold tier round-trips losslessly into the hot tier.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a key is absent from a tier. Tiers must return it
// (possibly wrapped) for missing keys so the manager can distinguish a miss
// from a backend fault.
var ErrNotFound = errors.New("cache: key not found")

// HotTier (L1) is a bounded-capacity, low-latency key-value store. It must
// evict on its own when over capacity; the manager never evicts directly.
type HotTier interface {
	// Get returns the stored bytes or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means the tier's default
	// (or no expiry, for tiers whose TTL is fixed at construction).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Size returns the current item count.
	Size() int
}

// ColdTier (L2) is a durable, capacity-unbounded store. Entries never expire
// by time; they leave only via explicit invalidation.
type ColdTier interface {
	// Get returns the stored bytes or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Upsert stores value under key, keyed back to the owning entity and
	// property so invalidation can enumerate an entity's keys. Upserts are
	// idempotent whole-value replacements.
	Upsert(ctx context.Context, key, entityID, propertyName string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeysByEntity returns every cache key stored for the entity.
	ListKeysByEntity(ctx context.Context, entityID string) ([]string, error)
}

// ComputeFunc produces the value for one (entity, property) pair on a cache
// miss. It must be deterministic and return a JSON-serializable value; any
// error propagates directly to the Get caller.
type ComputeFunc func() (interface{}, error)
