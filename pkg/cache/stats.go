package cache

import (
	"sync/atomic"
	"time"
)

// Nominal per-tier access latencies used for the expected-latency estimate.
// They are hints for capacity planning, not measurements.
const (
	DefaultL1Latency      = 1 * time.Millisecond
	DefaultL2Latency      = 10 * time.Millisecond
	DefaultComputeLatency = 300 * time.Millisecond
)

// stats holds the live counters of one manager. Each manager owns its own
// instance so multiple managers in a process never cross-contaminate counts.
type stats struct {
	l1Hits        atomic.Int64
	l2Hits        atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	totalAccesses atomic.Int64
}

// Statistics is a point-in-time snapshot of a manager's counters with the
// derived hit-rate fractions and the weighted expected access latency.
type Statistics struct {
	L1Hits        int64 `json:"l1_hits"`
	L2Hits        int64 `json:"l2_hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	TotalAccesses int64 `json:"total_accesses"`

	L1HitRate float64 `json:"l1_hit_rate"`
	L2HitRate float64 `json:"l2_hit_rate"`
	MissRate  float64 `json:"miss_rate"`

	// ExpectedLatencyMS = L1HitRate*T_L1 + L2HitRate*T_L2 + MissRate*T_compute,
	// with the nominal per-tier latencies configured on the manager.
	ExpectedLatencyMS float64 `json:"expected_latency_ms"`
}

func (s *stats) snapshot(l1Lat, l2Lat, computeLat time.Duration) Statistics {
	out := Statistics{
		L1Hits:        s.l1Hits.Load(),
		L2Hits:        s.l2Hits.Load(),
		Misses:        s.misses.Load(),
		Evictions:     s.evictions.Load(),
		TotalAccesses: s.totalAccesses.Load(),
	}

	if out.TotalAccesses == 0 {
		return out
	}

	total := float64(out.TotalAccesses)
	out.L1HitRate = float64(out.L1Hits) / total
	out.L2HitRate = float64(out.L2Hits) / total
	out.MissRate = float64(out.Misses) / total

	msPer := float64(time.Millisecond)
	out.ExpectedLatencyMS = out.L1HitRate*float64(l1Lat)/msPer +
		out.L2HitRate*float64(l2Lat)/msPer +
		out.MissRate*float64(computeLat)/msPer

	return out
}
