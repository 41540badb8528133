package metadata

import (
	"sync"
	"sync/atomic"
	"time"
)

// slotState is the lifecycle of a lazy attribute on one instance.
type slotState int

const (
	stateUnset slotState = iota
	stateComputing
	stateSet
)

// flight is one in-progress computation. Waiters block on done and then read
// val/err, so every concurrent caller of a first access observes the result
// of the single physical invocation.
type flight struct {
	done chan struct{}
	val  interface{}
	err  error
}

// lazySlot is an explicit once-cell: tri-state {Unset, Computing, Set} with
// its own lock. A slot transitions Unset -> Computing -> Set exactly once on
// success; a failed compute returns the slot to Unset so a later call may
// retry, and all waiters of the failed flight receive its error.
type lazySlot struct {
	mu      sync.Mutex
	state   slotState
	value   interface{}
	fn      ComputeFunc
	current *flight

	computedAt  time.Time
	accessCount atomic.Int64
}

func newLazySlot(fn ComputeFunc) *lazySlot {
	return &lazySlot{fn: fn}
}

func (s *lazySlot) get() (interface{}, error) {
	s.accessCount.Add(1)

	s.mu.Lock()
	switch s.state {
	case stateSet:
		v := s.value
		s.mu.Unlock()
		return v, nil

	case stateComputing:
		f := s.current
		s.mu.Unlock()
		<-f.done
		return f.val, f.err
	}

	// Unset: this caller leads the flight.
	f := &flight{done: make(chan struct{})}
	s.state = stateComputing
	s.current = f
	s.mu.Unlock()

	f.val, f.err = s.fn()

	s.mu.Lock()
	if f.err != nil {
		s.state = stateUnset
	} else {
		s.state = stateSet
		s.value = f.val
		s.computedAt = time.Now()
	}
	s.current = nil
	s.mu.Unlock()
	close(f.done)

	return f.val, f.err
}

func (s *lazySlot) diagnostics() FieldDiagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FieldDiagnostics{
		Computed:    s.state == stateSet,
		ComputedAt:  s.computedAt,
		AccessCount: s.accessCount.Load(),
	}
}
