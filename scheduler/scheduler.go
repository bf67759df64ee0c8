// Package scheduler selects, for each outgoing chunk, which configured
// path it should travel over, according to a pluggable strategy, and owns
// the authoritative path set (spec.md §3, §4.6).
package scheduler

import (
	"sync"

	"github.com/sirupsen/logrus"
	mpath "github.com/vidmesh/mpfec/path"
)

// Strategy selects the path-selection policy.
type Strategy int

const (
	RoundRobin Strategy = iota
	WeightedRoundRobin
	LowestRTT
	LowestLoss
	Adaptive
)

// highLossThreshold and highLossStreak implement spec.md §4.5's liveness
// rule: 3 consecutive intervals with loss_rate >= 0.9 marks a path inactive.
const (
	highLossThreshold = 0.9
	highLossStreak    = 3
)

// Scheduler owns the path set and current metrics under a single mutex;
// selection and metric updates are never interleaved (spec.md §4.6, §5).
type Scheduler struct {
	mu       sync.Mutex
	order    []string // insertion order of path keys
	paths    map[string]*mpath.Path
	streaks  map[string]int
	strategy Strategy
	rrIndex  int
	log      *logrus.Entry
}

// New constructs an empty Scheduler using the given default strategy.
func New(strategy Strategy, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		paths:    make(map[string]*mpath.Path),
		streaks:  make(map[string]int),
		strategy: strategy,
		log:      log.WithField("component", "scheduler"),
	}
}

// SetStrategy changes the active strategy.
func (s *Scheduler) SetStrategy(strategy Strategy) {
	s.mu.Lock()
	s.strategy = strategy
	s.mu.Unlock()
}

// Strategy returns the active strategy.
func (s *Scheduler) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// AddPath adds p to the scheduler if it isn't already present (idempotent
// on (ip, port) per spec.md §4.6).
func (s *Scheduler) AddPath(p *mpath.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.Key()
	if _, exists := s.paths[key]; exists {
		return
	}
	s.paths[key] = p
	s.streaks[key] = 0
	s.order = append(s.order, key)
}

// RemovePath removes the path identified by (ip, port), if present.
func (s *Scheduler) RemovePath(ip string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mpath.New(ip, port).Key()
	if _, exists := s.paths[key]; !exists {
		return
	}
	delete(s.paths, key)
	delete(s.streaks, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// UpdatePathMetrics updates the metrics for the identified path and applies
// the liveness state machine (spec.md §4.5/§4.6). It is idempotent on
// unknown paths (no-op).
func (s *Scheduler) UpdatePathMetrics(ip string, port int, m mpath.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mpath.New(ip, port).Key()
	p, exists := s.paths[key]
	if !exists {
		return
	}
	p.SetMetrics(m)

	if m.LossRate >= highLossThreshold {
		s.streaks[key]++
		if s.streaks[key] >= highLossStreak {
			if p.IsActive() {
				s.log.WithField("remote", key).Warn("path marked inactive after sustained high loss")
			}
			p.SetActive(false)
		}
	} else {
		s.streaks[key] = 0
	}
}

// RecordReceipt marks a successful inbound chunk for the identified path,
// reactivating it per spec.md §4.5 ("returns to active once a successful
// receive arrives").
func (s *Scheduler) RecordReceipt(ip string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mpath.New(ip, port).Key()
	p, exists := s.paths[key]
	if !exists {
		return
	}
	p.RecordReceipt()
	if !p.IsActive() {
		s.log.WithField("remote", key).Info("path reactivated after successful receive")
	}
	p.SetActive(true)
	s.streaks[key] = 0
}

// HasActivePaths reports whether any path is currently active.
func (s *Scheduler) HasActivePaths() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.order {
		if s.paths[k].IsActive() {
			return true
		}
	}
	return false
}

// Paths returns a snapshot slice of every configured path, in insertion
// order.
func (s *Scheduler) Paths() []mpath.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mpath.Snapshot, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.paths[k].Snapshot())
	}
	return out
}

// PathCount returns the number of configured paths.
func (s *Scheduler) PathCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// NextPath selects a path according to the active strategy. It returns
// (nil, false) if no active path exists.
func (s *Scheduler) NextPath() (*mpath.Path, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activePathsLocked()
	if len(active) == 0 {
		return nil, false
	}

	switch s.strategy {
	case RoundRobin:
		return s.roundRobinLocked(active), true
	case WeightedRoundRobin:
		return s.weightedRoundRobinLocked(active), true
	case LowestRTT:
		return s.lowestRTTLocked(active), true
	case LowestLoss:
		return s.lowestLossLocked(active), true
	default:
		return s.adaptiveLocked(active), true
	}
}

func (s *Scheduler) activePathsLocked() []*mpath.Path {
	active := make([]*mpath.Path, 0, len(s.order))
	for _, k := range s.order {
		if p := s.paths[k]; p.IsActive() {
			active = append(active, p)
		}
	}
	return active
}
