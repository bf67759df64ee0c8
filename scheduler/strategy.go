package scheduler

import (
	"math/rand"

	mpath "github.com/vidmesh/mpfec/path"
)

// roundRobinLocked walks s.order starting at rrIndex, advancing past
// inactive slots, and gives up after one full pass over all configured
// paths (mirrors original_source's round_robin_select, generalized to the
// full path count rather than a fixed 2x bound).
func (s *Scheduler) roundRobinLocked(active []*mpath.Path) *mpath.Path {
	n := len(s.order)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := s.rrIndex % n
		s.rrIndex++
		p := s.paths[s.order[idx]]
		if p.IsActive() {
			return p
		}
	}
	// Every path was inactive at the moment of the pass; active is
	// guaranteed non-empty by NextPath, so fall back to it directly.
	return active[0]
}

// weightedRoundRobinLocked samples an active path proportional to its
// weight = 1/(rtt+1) * (1-loss) * (1+bandwidth/100), per spec.md §4.6.
func (s *Scheduler) weightedRoundRobinLocked(active []*mpath.Path) *mpath.Path {
	weights := make([]float64, len(active))
	sum := 0.0
	for i, p := range active {
		w := pathWeight(p.Metrics())
		weights[i] = w
		sum += w
	}

	if sum <= 0 {
		// All weights degenerate to zero: fall back to a uniform draw.
		return active[rand.Intn(len(active))]
	}

	draw := rand.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if draw <= acc {
			return active[i]
		}
	}
	return active[len(active)-1]
}

func pathWeight(m mpath.Metrics) float64 {
	rttWeight := 1.0 / (m.RTTMillis + 1.0)
	lossWeight := 1.0 - m.LossRate
	bandwidthWeight := m.BandwidthMbps / 100.0
	return rttWeight * lossWeight * (1.0 + bandwidthWeight)
}

// lowestRTTLocked picks the active path with the smallest RTT; ties break
// on loss then on insertion order.
func (s *Scheduler) lowestRTTLocked(active []*mpath.Path) *mpath.Path {
	best := active[0]
	bestM := best.Metrics()
	for _, p := range active[1:] {
		m := p.Metrics()
		if m.RTTMillis < bestM.RTTMillis ||
			(m.RTTMillis == bestM.RTTMillis && m.LossRate < bestM.LossRate) {
			best, bestM = p, m
		}
	}
	return best
}

// lowestLossLocked picks the active path with the smallest loss rate; ties
// break on RTT then on insertion order.
func (s *Scheduler) lowestLossLocked(active []*mpath.Path) *mpath.Path {
	best := active[0]
	bestM := best.Metrics()
	for _, p := range active[1:] {
		m := p.Metrics()
		if m.LossRate < bestM.LossRate ||
			(m.LossRate == bestM.LossRate && m.RTTMillis < bestM.RTTMillis) {
			best, bestM = p, m
		}
	}
	return best
}

// adaptiveLocked minimizes score = rtt * (1 + 10*loss), the default
// strategy (spec.md §4.6).
func (s *Scheduler) adaptiveLocked(active []*mpath.Path) *mpath.Path {
	best := active[0]
	bestScore := adaptiveScore(best.Metrics())
	for _, p := range active[1:] {
		score := adaptiveScore(p.Metrics())
		if score < bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

func adaptiveScore(m mpath.Metrics) float64 {
	return m.RTTMillis * (1.0 + 10.0*m.LossRate)
}
