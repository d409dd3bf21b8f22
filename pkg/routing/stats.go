package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// FailoverStats counts failover outcomes using atomic operations.
// A nil *FailoverStats ignores all updates.
type FailoverStats struct {
	// walks is the number of Execute calls that tried at least one instance
	walks atomic.Int64

	// failovers is the number of attempts that moved on to the next instance
	failovers atomic.Int64

	// exhausted is the number of walks where every instance failed
	exhausted atomic.Int64

	// terminal is the number of walks ended by a non-failover error
	terminal atomic.Int64

	// servedByFallback counts successes from an instance other than the first
	servedByFallback atomic.Int64

	// perAlias tracks failovers for each alias
	perAlias sync.Map // map[string]*atomic.Int64

	lastResetTime time.Time
	mu            sync.RWMutex
}

// NewFailoverStats creates a stats tracker.
func NewFailoverStats() *FailoverStats {
	return &FailoverStats{lastResetTime: time.Now()}
}

func (s *FailoverStats) recordSuccess(alias string, index int) {
	if s == nil {
		return
	}
	s.walks.Add(1)
	if index > 0 {
		s.servedByFallback.Add(1)
	}
}

func (s *FailoverStats) recordFailover(alias string) {
	if s == nil {
		return
	}
	s.failovers.Add(1)
	val, _ := s.perAlias.LoadOrStore(alias, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func (s *FailoverStats) recordTerminal(alias string) {
	if s == nil {
		return
	}
	s.walks.Add(1)
	s.terminal.Add(1)
}

func (s *FailoverStats) recordExhausted(alias string) {
	if s == nil {
		return
	}
	s.walks.Add(1)
	s.exhausted.Add(1)
}

// Snapshot is a point-in-time copy of FailoverStats.
type Snapshot struct {
	Walks            int64
	Failovers        int64
	Exhausted        int64
	Terminal         int64
	ServedByFallback int64
	PerAlias         map[string]int64
	LastResetTime    time.Time
}

// Snapshot returns the current counters.
func (s *FailoverStats) Snapshot() Snapshot {
	snap := Snapshot{
		Walks:            s.walks.Load(),
		Failovers:        s.failovers.Load(),
		Exhausted:        s.exhausted.Load(),
		Terminal:         s.terminal.Load(),
		ServedByFallback: s.servedByFallback.Load(),
		PerAlias:         make(map[string]int64),
	}
	s.perAlias.Range(func(key, value any) bool {
		snap.PerAlias[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	s.mu.RLock()
	snap.LastResetTime = s.lastResetTime
	s.mu.RUnlock()
	return snap
}

// Reset zeroes all counters.
func (s *FailoverStats) Reset() {
	s.walks.Store(0)
	s.failovers.Store(0)
	s.exhausted.Store(0)
	s.terminal.Store(0)
	s.servedByFallback.Store(0)
	s.perAlias.Range(func(key, _ any) bool {
		s.perAlias.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
