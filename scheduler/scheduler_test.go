package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mpath "github.com/vidmesh/mpfec/path"
)

func newTestPaths(n int) []*mpath.Path {
	paths := make([]*mpath.Path, n)
	for i := range paths {
		paths[i] = mpath.New("10.0.0.1", 9000+i)
	}
	return paths
}

func TestRoundRobinFairness(t *testing.T) {
	s := New(RoundRobin, nil)
	paths := newTestPaths(4)
	for _, p := range paths {
		s.AddPath(p)
	}

	counts := make(map[string]int)
	const rounds = 100
	for i := 0; i < rounds*len(paths); i++ {
		p, ok := s.NextPath()
		require.True(t, ok)
		counts[p.Key()]++
	}

	for _, p := range paths {
		c := counts[p.Key()]
		assert.InDelta(t, rounds, c, 1, "path %s got %d selections", p.Key(), c)
	}
}

func TestAdaptiveScoreLossPenalty(t *testing.T) {
	base := adaptiveScore(mpath.Metrics{RTTMillis: 50, LossRate: 0})
	lossy := adaptiveScore(mpath.Metrics{RTTMillis: 50, LossRate: 0.5})
	assert.GreaterOrEqual(t, lossy, base*5)
}

func TestAdaptiveSwitchesAwayFromLossyPath(t *testing.T) {
	s := New(Adaptive, nil)
	bad := mpath.New("10.0.0.1", 9000)
	good := mpath.New("10.0.0.2", 9001)
	s.AddPath(bad)
	s.AddPath(good)

	s.UpdatePathMetrics(bad.IP(), bad.Port(), mpath.Metrics{RTTMillis: 40, LossRate: 0})
	s.UpdatePathMetrics(good.IP(), good.Port(), mpath.Metrics{RTTMillis: 50, LossRate: 0})

	p, ok := s.NextPath()
	require.True(t, ok)
	assert.Equal(t, bad.Key(), p.Key(), "lower RTT should win while loss is equal")

	s.UpdatePathMetrics(bad.IP(), bad.Port(), mpath.Metrics{RTTMillis: 40, LossRate: 0.5})

	p, ok = s.NextPath()
	require.True(t, ok)
	assert.Equal(t, good.Key(), p.Key(), "adaptive score should switch away once loss rises")
}

func TestNextPathNoActivePaths(t *testing.T) {
	s := New(Adaptive, nil)
	p := mpath.New("10.0.0.1", 9000)
	s.AddPath(p)
	p.SetActive(false)

	_, ok := s.NextPath()
	assert.False(t, ok)
}

func TestLivenessThreeConsecutiveHighLossIntervals(t *testing.T) {
	s := New(Adaptive, nil)
	p := mpath.New("10.0.0.1", 9000)
	s.AddPath(p)

	for i := 0; i < 2; i++ {
		s.UpdatePathMetrics(p.IP(), p.Port(), mpath.Metrics{LossRate: 0.95})
		assert.True(t, p.IsActive())
	}
	s.UpdatePathMetrics(p.IP(), p.Port(), mpath.Metrics{LossRate: 0.95})
	assert.False(t, p.IsActive())

	s.RecordReceipt(p.IP(), p.Port())
	assert.True(t, p.IsActive())
}

func TestAddPathIdempotent(t *testing.T) {
	s := New(RoundRobin, nil)
	p1 := mpath.New("10.0.0.1", 9000)
	p2 := mpath.New("10.0.0.1", 9000)
	s.AddPath(p1)
	s.AddPath(p2)
	assert.Equal(t, 1, s.PathCount())
}

func TestLowestRTTAndLowestLoss(t *testing.T) {
	s := New(LowestRTT, nil)
	a := mpath.New("10.0.0.1", 9000)
	b := mpath.New("10.0.0.2", 9001)
	s.AddPath(a)
	s.AddPath(b)
	s.UpdatePathMetrics(a.IP(), a.Port(), mpath.Metrics{RTTMillis: 100})
	s.UpdatePathMetrics(b.IP(), b.Port(), mpath.Metrics{RTTMillis: 10})

	p, ok := s.NextPath()
	require.True(t, ok)
	assert.Equal(t, b.Key(), p.Key())

	s.SetStrategy(LowestLoss)
	s.UpdatePathMetrics(a.IP(), a.Port(), mpath.Metrics{LossRate: 0.01})
	s.UpdatePathMetrics(b.IP(), b.Port(), mpath.Metrics{LossRate: 0.2})
	p, ok = s.NextPath()
	require.True(t, ok)
	assert.Equal(t, a.Key(), p.Key())
}
