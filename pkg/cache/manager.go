package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/colorwerkz/metacache/pkg/observability"
)

// ErrUnavailable is returned when both tiers fault and no compute function
// was supplied. A plain miss on healthy tiers is not unavailability; it is
// the distinct "absent" outcome.
var ErrUnavailable = errors.New("cache: all tiers unavailable")

const (
	// DefaultL1Timeout bounds each hot-tier access.
	DefaultL1Timeout = 2 * time.Second

	// DefaultL2Timeout bounds each cold-tier access.
	DefaultL2Timeout = 5 * time.Second
)

// ManagerConfig holds the tuning knobs of one manager instance.
type ManagerConfig struct {
	// L1Capacity is the hot tier's configured maximum item count. It is
	// used only for the heuristic eviction counter; the tier itself
	// enforces the bound.
	L1Capacity int `yaml:"l1_capacity" json:"l1_capacity" mapstructure:"l1_capacity"`

	// L1TTL, when non-zero, is applied to hot-tier writes. Cold-tier
	// entries never expire by time.
	L1TTL time.Duration `yaml:"l1_ttl" json:"l1_ttl" mapstructure:"l1_ttl"`

	L1Timeout time.Duration `yaml:"l1_timeout" json:"l1_timeout" mapstructure:"l1_timeout"`
	L2Timeout time.Duration `yaml:"l2_timeout" json:"l2_timeout" mapstructure:"l2_timeout"`

	// Nominal per-tier latencies feeding the expected-latency estimate.
	L1Latency      time.Duration `yaml:"l1_latency" json:"l1_latency" mapstructure:"l1_latency"`
	L2Latency      time.Duration `yaml:"l2_latency" json:"l2_latency" mapstructure:"l2_latency"`
	ComputeLatency time.Duration `yaml:"compute_latency" json:"compute_latency" mapstructure:"compute_latency"`

	Logger  observability.Logger        `yaml:"-" json:"-" mapstructure:"-"`
	Metrics observability.MetricsClient `yaml:"-" json:"-" mapstructure:"-"`
}

// Manager coordinates the two tiers behind a single Get entrypoint:
// L1 lookup, L2 lookup with promotion, then compute with write-through.
//
// Managers are safe for concurrent use. Concurrent computes for the same key
// are single-flighted within one manager instance only; independent managers
// sharing the cold tier may compute the same key concurrently. That is safe
// because every write is a keyed, idempotent, whole-value upsert, but it is
// a known limitation, not cross-process deduplication.
//
// A hot-tier entry may outlive a cold-tier invalidation performed by another
// process; that staleness window is bounded by L1TTL.
type Manager struct {
	l1  HotTier
	l2  ColdTier
	cfg ManagerConfig

	stats   stats
	flight  singleflight.Group
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewManager creates a manager over the given tiers. Both tiers are
// externally owned: the manager never closes them.
func NewManager(l1 HotTier, l2 ColdTier, cfg ManagerConfig) (*Manager, error) {
	if l1 == nil || l2 == nil {
		return nil, errors.New("cache: both tiers are required")
	}

	if cfg.L1Timeout == 0 {
		cfg.L1Timeout = DefaultL1Timeout
	}
	if cfg.L2Timeout == 0 {
		cfg.L2Timeout = DefaultL2Timeout
	}
	if cfg.L1Latency == 0 {
		cfg.L1Latency = DefaultL1Latency
	}
	if cfg.L2Latency == 0 {
		cfg.L2Latency = DefaultL2Latency
	}
	if cfg.ComputeLatency == 0 {
		cfg.ComputeLatency = DefaultComputeLatency
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}

	return &Manager{
		l1:      l1,
		l2:      l2,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Get returns the cached value for (entityID, propertyName), falling back
// L1 -> L2 -> compute. The boolean reports presence: (nil, false, nil) means
// the value is absent and no compute function was supplied.
//
// Tier faults (errors, timeouts, corrupt bytes) are recovered locally by
// falling through to the next tier; they surface only as latency and
// statistics. A compute error propagates unchanged.
func (m *Manager) Get(ctx context.Context, entityID, propertyName string, compute ComputeFunc) (interface{}, bool, error) {
	start := time.Now()
	m.stats.totalAccesses.Add(1)

	key := Key(entityID, propertyName)

	value, ok, l1Err := m.lookupHot(ctx, key)
	if ok {
		m.stats.l1Hits.Add(1)
		m.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
		return value, true, nil
	}

	value, ok, l2Err := m.lookupCold(ctx, key)
	if ok {
		m.stats.l2Hits.Add(1)
		m.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
		return value, true, nil
	}

	if compute == nil {
		m.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
		if l1Err != nil && l2Err != nil {
			return nil, false, fmt.Errorf("%w: l1: %v; l2: %v", ErrUnavailable, l1Err, l2Err)
		}
		return nil, false, nil
	}

	m.stats.misses.Add(1)
	value, err := m.computeAndStore(key, entityID, propertyName, compute)
	if err != nil {
		m.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
		return nil, false, err
	}
	m.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
	return value, true, nil
}

// lookupHot queries L1. It returns (value, true, nil) on a clean hit. A
// backend fault or corrupt entry is logged and reported as a miss, with the
// fault in the third return for unavailability accounting.
func (m *Manager) lookupHot(ctx context.Context, key string) (interface{}, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.L1Timeout)
	defer cancel()

	data, err := m.l1.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		m.logger.Warn("l1 lookup failed, falling through", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false, err
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		// Corrupt entry: self-heals when the next write-through replaces it.
		m.logger.Warn("l1 entry corrupt, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false, nil
	}
	return value, true, nil
}

// lookupCold queries L2 and promotes a hit into L1.
func (m *Manager) lookupCold(ctx context.Context, key string) (interface{}, bool, error) {
	lctx, cancel := context.WithTimeout(ctx, m.cfg.L2Timeout)
	defer cancel()

	data, err := m.l2.Get(lctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		m.logger.Warn("l2 lookup failed, falling through", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false, err
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		m.logger.Warn("l2 entry corrupt, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false, nil
	}

	m.writeHot(key, data)
	return value, true, nil
}

// computeAndStore invokes compute under a per-key single flight, writes the
// result through to both tiers, and returns the canonical (JSON round-trip)
// form of the value so every caller observes the same shape.
func (m *Manager) computeAndStore(key, entityID, propertyName string, compute ComputeFunc) (interface{}, error) {
	value, err, _ := m.flight.Do(key, func() (interface{}, error) {
		raw, err := compute()
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("cache: computed value not serializable: %w", err)
		}

		m.writeHot(key, data)
		m.writeCold(key, entityID, propertyName, data)

		var canonical interface{}
		if err := json.Unmarshal(data, &canonical); err != nil {
			return nil, fmt.Errorf("cache: canonicalize computed value: %w", err)
		}
		return canonical, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// writeHot populates L1. The tier evicts on its own; the manager only
// approximates an eviction count by observing that a write landed while the
// tier was already at capacity. Overwrites at capacity may over-count; the
// counter is heuristic, not authoritative.
func (m *Manager) writeHot(key string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.L1Timeout)
	defer cancel()

	before := m.l1.Size()
	if err := m.l1.Set(ctx, key, data, m.cfg.L1TTL); err != nil {
		m.logger.Warn("l1 write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if m.cfg.L1Capacity > 0 && before >= m.cfg.L1Capacity {
		m.stats.evictions.Add(1)
	}
}

// writeCold populates L2. Failure is logged and non-fatal: the value still
// serves from L1 and recomputes after eviction.
func (m *Manager) writeCold(key, entityID, propertyName string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.L2Timeout)
	defer cancel()

	if err := m.l2.Upsert(ctx, key, entityID, propertyName, data); err != nil {
		m.logger.Warn("l2 write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// Invalidate removes one (entityID, propertyName) value from both tiers.
// Invalidation is a best-effort hint: failures on either tier are logged,
// never surfaced, since absence in cache is always safe.
func (m *Manager) Invalidate(ctx context.Context, entityID, propertyName string) {
	m.invalidateKey(ctx, Key(entityID, propertyName))
}

// InvalidateEntity removes every cached value of the entity from both tiers.
// The key set is enumerated from the cold tier; hot-tier entries whose keys
// cannot be enumerated age out via TTL or eviction.
func (m *Manager) InvalidateEntity(ctx context.Context, entityID string) {
	lctx, cancel := context.WithTimeout(ctx, m.cfg.L2Timeout)
	keys, err := m.l2.ListKeysByEntity(lctx, entityID)
	cancel()
	if err != nil {
		m.logger.Warn("entity invalidation could not enumerate keys", map[string]interface{}{
			"entity_id": entityID,
			"error":     err.Error(),
		})
		return
	}

	for _, key := range keys {
		m.invalidateKey(ctx, key)
	}
}

func (m *Manager) invalidateKey(ctx context.Context, key string) {
	l1ctx, cancel := context.WithTimeout(ctx, m.cfg.L1Timeout)
	if err := m.l1.Delete(l1ctx, key); err != nil {
		m.logger.Warn("l1 invalidation failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	cancel()

	l2ctx, cancel := context.WithTimeout(ctx, m.cfg.L2Timeout)
	if err := m.l2.Delete(l2ctx, key); err != nil {
		m.logger.Warn("l2 invalidation failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	cancel()
}

// Statistics returns a snapshot of this manager's counters with derived
// hit-rate fractions and the weighted expected access latency.
func (m *Manager) Statistics() Statistics {
	return m.stats.snapshot(m.cfg.L1Latency, m.cfg.L2Latency, m.cfg.ComputeLatency)
}
