package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T, l1Capacity int) (*Manager, *MemoryTier, *SQLTier) {
	t.Helper()

	l1 := NewMemoryTier(l1Capacity, 0)
	l2 := setupSQLTier(t)

	mgr, err := NewManager(l1, l2, ManagerConfig{L1Capacity: l1Capacity})
	require.NoError(t, err)
	return mgr, l1, l2
}

func constCompute(v interface{}) ComputeFunc {
	return func() (interface{}, error) { return v, nil }
}

func TestNewManager(t *testing.T) {
	l1 := NewMemoryTier(10, 0)
	l2 := setupSQLTier(t)

	_, err := NewManager(nil, l2, ManagerConfig{})
	assert.Error(t, err)
	_, err = NewManager(l1, nil, ManagerConfig{})
	assert.Error(t, err)

	mgr, err := NewManager(l1, l2, ManagerConfig{})
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestManagerGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss Computes And Writes Through", func(t *testing.T) {
		mgr, l1, l2 := setupManager(t, 10)
		key := Key("e1", "color_distribution")

		value, found, err := mgr.Get(ctx, "e1", "color_distribution",
			constCompute(map[string]interface{}{"mean": 12.5, "std": 3.25}))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, map[string]interface{}{"mean": 12.5, "std": 3.25}, value)

		stats := mgr.Statistics()
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, int64(1), stats.TotalAccesses)

		// Both tiers now hold the canonical bytes.
		_, err = l1.Get(ctx, key)
		assert.NoError(t, err)
		_, err = l2.Get(ctx, key)
		assert.NoError(t, err)
	})

	t.Run("Second Get Hits L1 Without Recompute", func(t *testing.T) {
		mgr, _, _ := setupManager(t, 10)

		var calls atomic.Int64
		compute := func() (interface{}, error) {
			calls.Add(1)
			return "value", nil
		}

		_, _, err := mgr.Get(ctx, "e1", "histogram", compute)
		require.NoError(t, err)
		value, found, err := mgr.Get(ctx, "e1", "histogram", compute)
		require.NoError(t, err)

		assert.True(t, found)
		assert.Equal(t, "value", value)
		assert.Equal(t, int64(1), calls.Load())
		assert.Equal(t, int64(1), mgr.Statistics().L1Hits)
	})

	t.Run("L2 Hit Promotes Into L1", func(t *testing.T) {
		mgr, l1, l2 := setupManager(t, 10)
		key := Key("e1", "histogram")

		require.NoError(t, l2.Upsert(ctx, key, "e1", "histogram", []byte(`[1,2,3]`)))

		value, found, err := mgr.Get(ctx, "e1", "histogram", nil)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, value)
		assert.Equal(t, int64(1), mgr.Statistics().L2Hits)

		// Promotion verified: L1 now serves the key.
		data, err := l1.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(`[1,2,3]`), data)
	})

	t.Run("Absent Is Not An Error", func(t *testing.T) {
		mgr, _, _ := setupManager(t, 10)

		value, found, err := mgr.Get(ctx, "e1", "histogram", nil)
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("Compute Error Propagates", func(t *testing.T) {
		mgr, _, _ := setupManager(t, 10)
		boom := errors.New("image unreadable")

		_, found, err := mgr.Get(ctx, "e1", "histogram", func() (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, found)
	})

	t.Run("Corrupt L2 Entry Self Heals", func(t *testing.T) {
		mgr, _, l2 := setupManager(t, 10)
		key := Key("e1", "histogram")

		require.NoError(t, l2.Upsert(ctx, key, "e1", "histogram", []byte(`{not json`)))

		value, found, err := mgr.Get(ctx, "e1", "histogram", constCompute("fresh"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "fresh", value)
		assert.Equal(t, int64(1), mgr.Statistics().Misses)

		// The write-through replaced the corrupt bytes.
		data, err := l2.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(`"fresh"`), data)
	})

	t.Run("Concurrent Computes Single Flighted", func(t *testing.T) {
		mgr, _, _ := setupManager(t, 10)

		var invocations atomic.Int64
		compute := func() (interface{}, error) {
			time.Sleep(100 * time.Millisecond)
			return invocations.Add(1), nil
		}

		const callers = 8
		results := make([]interface{}, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, found, err := mgr.Get(ctx, "e1", "texture_metrics", compute)
				assert.NoError(t, err)
				assert.True(t, found)
				results[i] = v
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(1), invocations.Load())
		for i := 1; i < callers; i++ {
			assert.Equal(t, results[0], results[i])
		}
	})
}

func TestManagerInvalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("Invalidate Then Get Recomputes", func(t *testing.T) {
		mgr, l1, l2 := setupManager(t, 10)
		key := Key("e1", "histogram")

		var calls atomic.Int64
		compute := func() (interface{}, error) {
			calls.Add(1)
			return "v", nil
		}

		_, _, err := mgr.Get(ctx, "e1", "histogram", compute)
		require.NoError(t, err)

		mgr.Invalidate(ctx, "e1", "histogram")

		_, err = l1.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = l2.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)

		_, _, err = mgr.Get(ctx, "e1", "histogram", compute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), calls.Load())
	})

	t.Run("InvalidateEntity Clears Every Property", func(t *testing.T) {
		mgr, _, l2 := setupManager(t, 10)

		for _, prop := range []string{"histogram", "texture", "distribution"} {
			_, _, err := mgr.Get(ctx, "e1", prop, constCompute(prop))
			require.NoError(t, err)
		}
		_, _, err := mgr.Get(ctx, "e2", "histogram", constCompute("other"))
		require.NoError(t, err)

		mgr.InvalidateEntity(ctx, "e1")

		keys, err := l2.ListKeysByEntity(ctx, "e1")
		require.NoError(t, err)
		assert.Empty(t, keys)

		// Other entities are untouched.
		keys, err = l2.ListKeysByEntity(ctx, "e2")
		require.NoError(t, err)
		assert.Len(t, keys, 1)

		_, found, err := mgr.Get(ctx, "e1", "histogram", nil)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestManagerStatistics(t *testing.T) {
	ctx := context.Background()

	t.Run("Zero Accesses", func(t *testing.T) {
		mgr, _, _ := setupManager(t, 10)
		stats := mgr.Statistics()
		assert.Equal(t, int64(0), stats.TotalAccesses)
		assert.Equal(t, 0.0, stats.L1HitRate)
		assert.Equal(t, 0.0, stats.ExpectedLatencyMS)
	})

	t.Run("Exact Hit Rates", func(t *testing.T) {
		mgr, l1, _ := setupManager(t, 100)

		// M=2 misses.
		_, _, err := mgr.Get(ctx, "e1", "p1", constCompute("v1"))
		require.NoError(t, err)
		_, _, err = mgr.Get(ctx, "e1", "p2", constCompute("v2"))
		require.NoError(t, err)

		// H1=3 hot-tier hits.
		for i := 0; i < 2; i++ {
			_, _, err = mgr.Get(ctx, "e1", "p1", nil)
			require.NoError(t, err)
		}
		_, _, err = mgr.Get(ctx, "e1", "p2", nil)
		require.NoError(t, err)

		// H2=1 cold-tier hit: drop p1 from L1 only.
		require.NoError(t, l1.Delete(ctx, Key("e1", "p1")))
		_, _, err = mgr.Get(ctx, "e1", "p1", nil)
		require.NoError(t, err)

		stats := mgr.Statistics()
		require.Equal(t, int64(6), stats.TotalAccesses)
		assert.Equal(t, float64(3)/6, stats.L1HitRate)
		assert.Equal(t, float64(1)/6, stats.L2HitRate)
		assert.Equal(t, float64(2)/6, stats.MissRate)
		assert.InDelta(t, 1.0, stats.L1HitRate+stats.L2HitRate+stats.MissRate, 1e-9)

		// E[T] = 0.5*1ms + (1/6)*10ms + (1/3)*300ms with default hints.
		assert.InDelta(t, 0.5+10.0/6+100.0, stats.ExpectedLatencyMS, 1e-9)
	})

	t.Run("Eviction Counter With L2 Retention", func(t *testing.T) {
		mgr, l1, l2 := setupManager(t, 2)

		for _, prop := range []string{"histogram", "distribution", "texture"} {
			_, _, err := mgr.Get(ctx, "e1", prop, constCompute(prop))
			require.NoError(t, err)
		}

		stats := mgr.Statistics()
		assert.Equal(t, int64(1), stats.Evictions)
		assert.Equal(t, 2, l1.Size())

		// The cold tier retains all three keys indefinitely.
		keys, err := l2.ListKeysByEntity(ctx, "e1")
		require.NoError(t, err)
		assert.Len(t, keys, 3)
	})
}

// failingHot is a hot tier whose backend is down.
type failingHot struct{}

func (failingHot) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingHot) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingHot) Delete(context.Context, string) error { return errors.New("connection refused") }
func (failingHot) Size() int                            { return 0 }

// failingCold is a cold tier whose backend is down.
type failingCold struct{}

func (failingCold) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingCold) Upsert(context.Context, string, string, string, []byte) error {
	return errors.New("connection refused")
}
func (failingCold) Delete(context.Context, string) error { return errors.New("connection refused") }
func (failingCold) ListKeysByEntity(context.Context, string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestManagerFaultTolerance(t *testing.T) {
	ctx := context.Background()

	t.Run("L1 Fault Falls Through To L2", func(t *testing.T) {
		l2 := setupSQLTier(t)
		mgr, err := NewManager(failingHot{}, l2, ManagerConfig{})
		require.NoError(t, err)

		key := Key("e1", "histogram")
		require.NoError(t, l2.Upsert(ctx, key, "e1", "histogram", []byte(`"v"`)))

		value, found, err := mgr.Get(ctx, "e1", "histogram", nil)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "v", value)
		assert.Equal(t, int64(1), mgr.Statistics().L2Hits)
	})

	t.Run("Both Tiers Fault With Compute Still Serves", func(t *testing.T) {
		mgr, err := NewManager(failingHot{}, failingCold{}, ManagerConfig{})
		require.NoError(t, err)

		value, found, err := mgr.Get(ctx, "e1", "histogram", constCompute("computed"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "computed", value)
	})

	t.Run("Both Tiers Fault Without Compute Is Unavailable", func(t *testing.T) {
		mgr, err := NewManager(failingHot{}, failingCold{}, ManagerConfig{})
		require.NoError(t, err)

		_, found, err := mgr.Get(ctx, "e1", "histogram", nil)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.False(t, found)
	})

	t.Run("Invalidation Never Fails", func(t *testing.T) {
		mgr, err := NewManager(failingHot{}, failingCold{}, ManagerConfig{})
		require.NoError(t, err)

		// Both calls log and return; nothing to assert beyond no panic.
		mgr.Invalidate(ctx, "e1", "histogram")
		mgr.InvalidateEntity(ctx, "e1")
	})
}
