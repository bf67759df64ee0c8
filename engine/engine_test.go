package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	frames map[uint32][]byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{frames: make(map[uint32][]byte)}
}

func (s *recordingSink) OnFrameReady(payload []byte, frameID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.frames[frameID] = cp
}

func (s *recordingSink) get(frameID uint32) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.frames[frameID]
	return p, ok
}

func testConfig(t *testing.T, n int) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PayloadSize = 256
	cfg.K = 4
	cfg.R = 2
	cfg.JitterWindowMs = 200
	cfg.FlushIntervalMs = 10
	cfg.ReceiveQueueCapacity = 64
	for i := 0; i < n; i++ {
		cfg.Paths = append(cfg.Paths, PathConfig{IP: "127.0.0.1", Port: 0})
	}
	return cfg
}

func TestConfigValidateRejectsNoPaths(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConfigValidateRejectsBadK(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.K = 0
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConfigValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.SchedulerStrategy = "bogus"
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfiguration)
}

// twoEnginePair binds two engines to loopback addresses and wires each
// one's configured remote path to the other's bound port, exercising the
// full send -> network -> collector -> sink path end to end.
func twoEnginePair(t *testing.T) (*Engine, *recordingSink, *Engine, *recordingSink) {
	t.Helper()
	cfgA := testConfig(t, 1)
	cfgB := testConfig(t, 1)
	sinkA := newRecordingSink()
	sinkB := newRecordingSink()

	engA, err := New(cfgA, sinkA, nil)
	require.NoError(t, err)
	engB, err := New(cfgB, sinkB, nil)
	require.NoError(t, err)

	require.NoError(t, engA.Start())
	require.NoError(t, engB.Start())

	// Point each engine's sole path at the other's bound ephemeral port.
	var resA, resB *pathResources
	for _, r := range engA.resources {
		resA = r
	}
	for _, r := range engB.resources {
		resB = r
	}
	require.NotNil(t, resA)
	require.NotNil(t, resB)

	bAddr := resB.endpoint.LocalAddr()
	aAddr := resA.endpoint.LocalAddr()
	resA.endpoint.SetRemoteAddr(bAddr)
	resB.endpoint.SetRemoteAddr(aAddr)

	return engA, sinkA, engB, sinkB
}

func TestEngineEndToEndSubmitAndReceive(t *testing.T) {
	engA, _, engB, sinkB := twoEnginePair(t)
	defer engA.Stop()
	defer engB.Stop()

	frame := make([]byte, 900)
	for i := range frame {
		frame[i] = byte(i)
	}
	require.NoError(t, engA.SubmitFrame(frame, 42))

	require.Eventually(t, func() bool {
		_, ok := sinkB.get(42)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := sinkB.get(42)
	assert.Equal(t, frame, got[:len(frame)])
}

func TestEngineStartUnwindsOnBadPath(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Paths = append(cfg.Paths, PathConfig{IP: "not-an-ip", Port: 9999})
	sink := newRecordingSink()

	eng, err := New(cfg, sink, nil)
	require.NoError(t, err)

	err = eng.Start()
	assert.Error(t, err)
	assert.False(t, eng.running.Load())
}

func TestSubmitFrameDropsWithNoActivePath(t *testing.T) {
	cfg := testConfig(t, 1)
	sink := newRecordingSink()
	eng, err := New(cfg, sink, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Start())
	defer eng.Stop()

	for _, res := range eng.resources {
		res.p.SetActive(false)
	}

	require.NoError(t, eng.SubmitFrame(make([]byte, 100), 1))
	assert.Greater(t, eng.SendDropCount(), uint64(0))
}
