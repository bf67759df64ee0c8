// Package engine wires the transport/scheduling core together: it owns the
// path set, endpoints, monitors, scheduler and collector, and exposes
// start/stop plus a frame-submission entry point (spec.md §4.8).
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vidmesh/mpfec/chunk"
	"github.com/vidmesh/mpfec/collector"
	"github.com/vidmesh/mpfec/endpoint"
	"github.com/vidmesh/mpfec/fec"
	mpath "github.com/vidmesh/mpfec/path"
	"github.com/vidmesh/mpfec/scheduler"
	"github.com/vidmesh/mpfec/slicer"
)

// FrameSink is the engine-to-consumer contract: on_frame_ready. It MUST NOT
// block (spec.md §6).
type FrameSink interface {
	OnFrameReady(payload []byte, frameID uint32)
}

// FrameSource is the optional producer-to-engine contract used when the
// engine drives its own processing thread instead of the embedding program
// calling SubmitFrame directly (spec.md §4.8's "producer-driving thread").
type FrameSource interface {
	NextFrame() (payload []byte, frameID uint32, ok bool)
}

// CollectorStats mirrors collector.Collector's running counters for the
// metrics-export contract (spec.md §4.9).
type CollectorStats struct {
	FramesDropped   uint64
	FramesSkipped   uint64
	DuplicateChunks uint64
}

// Stats is a point-in-time snapshot suitable for a periodic metrics
// exporter (spec.md §4.9).
type Stats struct {
	Paths     []mpath.Snapshot
	Collector CollectorStats
	Strategy  scheduler.Strategy
}

type pathResources struct {
	p        *mpath.Path
	monitor  *mpath.Monitor
	endpoint *endpoint.Endpoint
}

// Engine is the top-level lifecycle object. Zero value is not usable; build
// one with New.
type Engine struct {
	cfg Config
	log *logrus.Entry

	rttSampler mpath.RTTSampler
	source     FrameSource
	sink       FrameSink

	scheduler *scheduler.Scheduler
	collector *collector.Collector

	mu        sync.Mutex
	resources map[string]*pathResources

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	sendDropCount atomic.Uint64
	decodeErrCount atomic.Uint64
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithRTTSampler injects an RTT sampling capability (spec.md §6's
// programmatic rtt_sampler option).
func WithRTTSampler(s mpath.RTTSampler) Option {
	return func(e *Engine) { e.rttSampler = s }
}

// WithFrameSource enables the engine's internal producer-driving thread.
func WithFrameSource(s FrameSource) Option {
	return func(e *Engine) { e.source = s }
}

// New constructs an Engine from a validated Config and a consumer sink.
// It does not start any goroutines or bind any sockets; call Start for that.
func New(cfg Config, sink FrameSink, log *logrus.Entry, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink must not be nil", ErrConfiguration)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.Logger.SetLevel(lvl)
	}

	strategy, err := parseStrategy(cfg.SchedulerStrategy)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		log:       log.WithField("component", "engine"),
		sink:      sink,
		scheduler: scheduler.New(strategy, log),
		resources: make(map[string]*pathResources),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start creates all endpoints (binding sockets), starts path monitors, the
// collector flusher, endpoint receive loops, and (if configured) the
// internal producer thread. Partial initialization failure unwinds
// everything already created and returns the error (spec.md §4.8).
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	e.collector = collector.New(
		collectorSinkAdapter{e.sink},
		e.cfg.PayloadSize,
		time.Duration(e.cfg.JitterWindowMs)*time.Millisecond,
		time.Duration(e.cfg.FlushIntervalMs)*time.Millisecond,
		e.log,
	)

	created := make([]*pathResources, 0, len(e.cfg.Paths))
	for _, pc := range e.cfg.Paths {
		res, err := e.createPathResources(pc)
		if err != nil {
			e.unwind(created)
			e.mu.Lock()
			e.resources = make(map[string]*pathResources)
			e.mu.Unlock()
			e.scheduler = scheduler.New(e.scheduler.Strategy(), e.log)
			e.running.Store(false)
			return fmt.Errorf("engine: starting path %s:%d: %w", pc.IP, pc.Port, err)
		}
		created = append(created, res)
		e.mu.Lock()
		e.resources[res.p.Key()] = res
		e.mu.Unlock()
		e.scheduler.AddPath(res.p)
	}

	e.collector.Start()
	for _, res := range created {
		res.monitor.Start()
		res.endpoint.Start()
	}

	e.stopCh = make(chan struct{})
	for _, res := range created {
		e.wg.Add(1)
		go e.dispatchLoop(res)
	}

	if e.source != nil {
		e.wg.Add(1)
		go e.produceLoop()
	}

	e.log.WithField("paths", len(created)).Info("engine started")
	return nil
}

func (e *Engine) createPathResources(pc PathConfig) (*pathResources, error) {
	p := mpath.New(pc.IP, pc.Port)
	ep, err := endpoint.New(p, chunk.WireSize(e.cfg.PayloadSize), e.cfg.ReceiveQueueCapacity, e.log)
	if err != nil {
		return nil, err
	}
	mon := mpath.NewMonitor(p, mpath.DefaultUpdateInterval, e.rttSampler, e.scheduler.UpdatePathMetrics, e.log)
	return &pathResources{p: p, monitor: mon, endpoint: ep}, nil
}

// unwind stops any resources already brought up during a failed Start,
// in reverse creation order (spec.md §4.8's "unwinds everything already
// created").
func (e *Engine) unwind(created []*pathResources) {
	for i := len(created) - 1; i >= 0; i-- {
		created[i].monitor.Stop()
		created[i].endpoint.Stop()
	}
}

// Stop signals all loops to exit, joins them in reverse startup order, and
// closes sockets.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	e.wg.Wait()

	e.mu.Lock()
	resources := make([]*pathResources, 0, len(e.resources))
	for _, res := range e.resources {
		resources = append(resources, res)
	}
	e.mu.Unlock()

	for _, res := range resources {
		res.endpoint.Stop()
		res.monitor.Stop()
	}
	e.collector.Stop()
	e.log.Info("engine stopped")
}

// SubmitFrame slices frame into K data chunks, produces R parity chunks,
// and dispatches all K+R chunks through the scheduler (spec.md §4.8's send
// direction). Bytes are never mutated. It returns ErrNotRunning when the
// engine is not started.
func (e *Engine) SubmitFrame(frame []byte, frameID uint32) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	dataChunks, err := slicer.Slice(frameID, frame, e.cfg.K, e.cfg.R, e.cfg.PayloadSize)
	if err != nil {
		return fmt.Errorf("engine: slicing frame %d: %w", frameID, err)
	}

	allChunks := dataChunks
	if e.cfg.R > 0 {
		coder, err := fec.NewCoder(int(e.cfg.K), int(e.cfg.R), e.cfg.PayloadSize)
		if err != nil {
			return fmt.Errorf("engine: constructing coder for frame %d: %w", frameID, err)
		}
		dataShards := make([][]byte, e.cfg.K)
		for i, c := range dataChunks {
			dataShards[i] = c.Payload
		}
		parityShards, err := coder.Encode(dataShards)
		if err != nil {
			return fmt.Errorf("engine: encoding frame %d: %w", frameID, err)
		}
		for i, payload := range parityShards {
			allChunks = append(allChunks, &chunk.Chunk{
				FrameID:   frameID,
				ChunkID:   e.cfg.K + uint16(i),
				K:         e.cfg.K,
				R:         e.cfg.R,
				ChunkSize: uint16(len(payload)),
				FrameSize: uint32(len(frame)),
				Payload:   payload,
			})
		}
	}

	for _, c := range allChunks {
		e.dispatch(c)
	}
	return nil
}

func (e *Engine) dispatch(c *chunk.Chunk) {
	p, ok := e.scheduler.NextPath()
	if !ok {
		e.sendDropCount.Add(1)
		e.log.WithField("frame_id", c.FrameID).Warn("no active path, dropping chunk")
		return
	}
	e.mu.Lock()
	res, ok := e.resources[p.Key()]
	e.mu.Unlock()
	if !ok {
		e.sendDropCount.Add(1)
		return
	}
	res.endpoint.Send(chunk.Serialize(c, e.cfg.PayloadSize))
}

// dispatchLoop drains one endpoint's receive queue into the collector,
// deserializing each datagram and recording receipts for scheduler
// liveness (spec.md §4.8's receive direction).
func (e *Engine) dispatchLoop(res *pathResources) {
	defer e.wg.Done()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			for _, raw := range res.endpoint.PollReceive(0) {
				c, err := chunk.Deserialize(raw, e.cfg.PayloadSize)
				if err != nil {
					e.decodeErrCount.Add(1)
					e.log.WithError(err).Debug("dropping undecodable chunk")
					continue
				}
				e.scheduler.RecordReceipt(res.p.IP(), res.p.Port())
				e.collector.PushChunk(c)
			}
		}
	}
}

func (e *Engine) produceLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}
		payload, frameID, ok := e.source.NextFrame()
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err := e.SubmitFrame(payload, frameID); err != nil {
			e.log.WithError(err).WithField("frame_id", frameID).Warn("submit failed")
		}
	}
}

// DecodeErrorCount returns the number of datagrams dropped as undecodable.
func (e *Engine) DecodeErrorCount() uint64 { return e.decodeErrCount.Load() }

// SendDropCount returns the number of chunks dropped for lack of an active
// path.
func (e *Engine) SendDropCount() uint64 { return e.sendDropCount.Load() }

// Stats returns a point-in-time snapshot of path and collector counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Paths: e.scheduler.Paths(),
		Collector: CollectorStats{
			FramesDropped:   e.collector.DroppedCount(),
			FramesSkipped:   e.collector.SkippedCount(),
			DuplicateChunks: e.collector.DuplicateCount(),
		},
		Strategy: e.scheduler.Strategy(),
	}
}

// collectorSinkAdapter adapts an engine FrameSink to collector.FrameSink so
// the two packages don't need an import cycle to share the same shape.
type collectorSinkAdapter struct{ sink FrameSink }

func (a collectorSinkAdapter) OnFrameReady(payload []byte, frameID uint32) {
	a.sink.OnFrameReady(payload, frameID)
}
