package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// EvictionPolicy decides which key leaves a bounded tier when it is full.
// Implementations track usage through Touch and surrender one victim per
// Evict call. Policies are not safe for concurrent use; BoundedTier
// serializes access.
type EvictionPolicy interface {
	// Touch records a use of key, inserting it if new.
	Touch(key string)

	// Contains reports whether key is tracked.
	Contains(key string) bool

	// Remove forgets key without counting it as an eviction.
	Remove(key string)

	// Evict selects a victim, forgets it, and returns it.
	Evict() (string, bool)

	// Len returns the number of tracked keys.
	Len() int
}

// LRUPolicy is the default EvictionPolicy: least-recently-used ordering.
type LRUPolicy struct {
	lru *simplelru.LRU[string, struct{}]
}

// NewLRUPolicy creates an LRU policy sized for capacity keys.
func NewLRUPolicy(capacity int) (*LRUPolicy, error) {
	lru, err := simplelru.NewLRU[string, struct{}](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &LRUPolicy{lru: lru}, nil
}

// Touch records a use of key.
func (p *LRUPolicy) Touch(key string) { p.lru.Add(key, struct{}{}) }

// Contains reports whether key is tracked.
func (p *LRUPolicy) Contains(key string) bool { return p.lru.Contains(key) }

// Remove forgets key.
func (p *LRUPolicy) Remove(key string) { p.lru.Remove(key) }

// Evict removes and returns the least recently used key.
func (p *LRUPolicy) Evict() (string, bool) {
	key, _, ok := p.lru.RemoveOldest()
	return key, ok
}

// Len returns the number of tracked keys.
func (p *LRUPolicy) Len() int { return p.lru.Len() }

// BoundedTier wraps a hot-tier store that has no native eviction (a plain
// in-memory mapping, for instance) and enforces a capacity with an explicit
// EvictionPolicy. The wrapped store sees plain Get/Set/Delete traffic; the
// wrapper evicts a victim from it before every insert that would exceed
// capacity.
type BoundedTier struct {
	mu       sync.Mutex
	store    HotTier
	policy   EvictionPolicy
	capacity int
}

// WrapBounded bounds store at capacity items using policy. A nil policy
// selects LRU.
func WrapBounded(store HotTier, capacity int, policy EvictionPolicy) (*BoundedTier, error) {
	if policy == nil {
		var err error
		policy, err = NewLRUPolicy(capacity)
		if err != nil {
			return nil, err
		}
	}
	return &BoundedTier{
		store:    store,
		policy:   policy,
		capacity: capacity,
	}, nil
}

// Get reads from the wrapped store and refreshes the key's recency on a hit.
func (t *BoundedTier) Get(ctx context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	t.policy.Touch(key)
	return v, nil
}

// Set writes to the wrapped store, evicting one victim first if the insert
// would exceed capacity.
func (t *BoundedTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.policy.Contains(key) && t.policy.Len() >= t.capacity {
		if victim, ok := t.policy.Evict(); ok {
			if err := t.store.Delete(ctx, victim); err != nil {
				// The policy already forgot the victim; the orphaned
				// entry is unreachable through this wrapper.
				return err
			}
		}
	}

	if err := t.store.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	t.policy.Touch(key)
	return nil
}

// Delete removes key from the store and the policy.
func (t *BoundedTier) Delete(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.policy.Remove(key)
	return t.store.Delete(ctx, key)
}

// Size returns the wrapped store's item count.
func (t *BoundedTier) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Size()
}

// MapStore is an unbounded in-memory HotTier with per-item TTL. On its own it
// never evicts; wrap it with BoundedTier to cap it.
type MapStore struct {
	mu    sync.RWMutex
	items map[string]mapItem
}

type mapItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMapStore creates an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{items: make(map[string]mapItem)}
}

// Get returns the stored bytes or ErrNotFound. Expired entries read as absent.
func (s *MapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return item.value, nil
}

// Set stores value under key. A zero ttl means no expiry.
func (s *MapStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = mapItem{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *MapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Size returns the current item count, counting not-yet-reaped expired items.
func (s *MapStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
