// Package collector reassembles frames from chunks arriving out of order
// and possibly with loss, triggering FEC reconstruction when needed and
// emitting completed frames to a sink in ascending frame_id order with a
// bounded stall (spec.md §4.7).
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vidmesh/mpfec/chunk"
	"github.com/vidmesh/mpfec/fec"
	"github.com/vidmesh/mpfec/slicer"
)

// DefaultJitterWindow bounds how long the collector waits for a gap in the
// frame_id sequence to fill before skipping it (spec.md §4.7).
const DefaultJitterWindow = 50 * time.Millisecond

// DefaultFlushInterval is how often the collector sweeps for stale frames
// and stalled pending emissions.
const DefaultFlushInterval = 25 * time.Millisecond

// FrameSink receives reassembled frames in ascending frame_id order. It
// MUST NOT block (spec.md §6).
type FrameSink interface {
	OnFrameReady(payload []byte, frameID uint32)
}

type pendingFrame struct {
	payload     []byte
	completedAt time.Time
}

// Collector reassembles chunks into frames. One Collector serves one
// logical stream (a single k/r configuration may vary per frame; the FEC
// coder cache keys on the pair actually seen).
type Collector struct {
	mu            sync.Mutex
	buffers       map[uint32]*frameBuffer
	pending       map[uint32]pendingFrame
	coders        map[[2]uint16]*fec.Coder
	hasEmittedAny bool
	nextExpected  uint32
	lastEmitted   uint32

	sink          FrameSink
	payloadSize   int
	jitterWindow  time.Duration
	flushInterval time.Duration

	droppedCount   atomic.Uint64
	skippedCount   atomic.Uint64
	duplicateCount atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	log     *logrus.Entry
}

// New creates a Collector for a stream whose chunks all carry payloadSize
// bytes. jitterWindow/flushInterval fall back to the package defaults when
// <= 0; payloadSize falls back to chunk.DefaultPayloadSize when <= 0.
func New(sink FrameSink, payloadSize int, jitterWindow, flushInterval time.Duration, log *logrus.Entry) *Collector {
	if payloadSize <= 0 {
		payloadSize = chunk.DefaultPayloadSize
	}
	if jitterWindow <= 0 {
		jitterWindow = DefaultJitterWindow
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{
		buffers:       make(map[uint32]*frameBuffer),
		pending:       make(map[uint32]pendingFrame),
		coders:        make(map[[2]uint16]*fec.Coder),
		sink:          sink,
		payloadSize:   payloadSize,
		jitterWindow:  jitterWindow,
		flushInterval: flushInterval,
		log:           log.WithField("component", "collector"),
	}
}

// Start launches the background flusher goroutine.
func (c *Collector) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.flushLoop()
}

// Stop halts the flusher goroutine.
func (c *Collector) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
}

// DroppedCount returns the number of frames dropped as unrecoverable.
func (c *Collector) DroppedCount() uint64 { return c.droppedCount.Load() }

// SkippedCount returns the number of frame_ids skipped over after a
// jitter-window stall.
func (c *Collector) SkippedCount() uint64 { return c.skippedCount.Load() }

// DuplicateCount returns the number of chunks discarded as duplicates of
// an already-present chunk_id slot.
func (c *Collector) DuplicateCount() uint64 { return c.duplicateCount.Load() }

// PushChunk ingests one chunk, reconstructing and/or emitting the frame it
// belongs to once enough chunks have arrived.
func (c *Collector) PushChunk(ch *chunk.Chunk) {
	now := time.Now()

	c.mu.Lock()
	if c.hasEmittedAny && idLessEq(ch.FrameID, c.lastEmitted) {
		// Chunk for an already-emitted or already-skipped-past frame.
		c.mu.Unlock()
		return
	}

	fb, ok := c.buffers[ch.FrameID]
	if !ok {
		fb = newFrameBuffer(ch.FrameID, ch.K, ch.R, now)
		c.buffers[ch.FrameID] = fb
	}
	before := fb.totalPresent
	fb.insert(ch)
	if fb.totalPresent == before {
		c.duplicateCount.Add(1)
	}

	if !fb.readyForReconstruction() {
		c.mu.Unlock()
		return
	}

	delete(c.buffers, ch.FrameID)
	coder, err := c.coderFor(fb.k, fb.r)
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).WithField("frame_id", ch.FrameID).Error("fec coder unavailable")
		c.droppedCount.Add(1)
		return
	}

	payload, err := reconstruct(fb, coder)
	if err != nil {
		c.log.WithError(err).WithField("frame_id", ch.FrameID).Warn("reconstruction failed")
		c.droppedCount.Add(1)
		return
	}

	c.mu.Lock()
	c.handleCompletedLocked(ch.FrameID, payload)
	c.mu.Unlock()
}

// coderFor returns a cached *fec.Coder for the (k, r) pair, creating one on
// first use. Coders are stateless beyond k/r/payloadSize so sharing across
// frames with the same shape is safe.
func (c *Collector) coderFor(k, r uint16) (*fec.Coder, error) {
	key := [2]uint16{k, r}
	if coder, ok := c.coders[key]; ok {
		return coder, nil
	}
	coder, err := fec.NewCoder(int(k), int(r), c.payloadSize)
	if err != nil {
		return nil, err
	}
	c.coders[key] = coder
	return coder, nil
}

// reconstruct decodes fb's slots into the original frame payload. Each data
// shard is trimmed to its real length via slicer.Unslice rather than
// emitted at the full padded payload size; a shard FEC had to reconstruct
// carries no chunk_size of its own, so its real length is re-derived from
// fb.frameSize and fb.k with slicer.ChunkSizes, the same math Slice used to
// assign it in the first place (spec.md §4.7).
func reconstruct(fb *frameBuffer, coder *fec.Coder) ([]byte, error) {
	total := int(fb.k) + int(fb.r)
	shards := make([][]byte, total)
	present := make([]bool, total)
	for i, ch := range fb.slots {
		if ch != nil {
			shards[i] = ch.Payload
			present[i] = true
		}
	}
	decoded, err := coder.Decode(shards, present)
	if err != nil {
		return nil, err
	}

	sizes := slicer.ChunkSizes(int(fb.frameSize), fb.k)
	dataChunks := make([]*chunk.Chunk, fb.k)
	for i := range dataChunks {
		dataChunks[i] = &chunk.Chunk{ChunkSize: sizes[i], Payload: decoded[i]}
	}
	return slicer.Unslice(dataChunks), nil
}

// handleCompletedLocked implements the ascending-emission rule: drop as a
// straggler if already passed, emit immediately and drain pending if next
// in line, else buffer until the flusher resolves the gap (spec.md §4.7).
func (c *Collector) handleCompletedLocked(frameID uint32, payload []byte) {
	if c.hasEmittedAny && idLessEq(frameID, c.lastEmitted) {
		return
	}
	if !c.hasEmittedAny {
		c.nextExpected = frameID
	}

	if frameID == c.nextExpected {
		c.emitLocked(frameID, payload)
		c.drainPendingLocked()
		return
	}

	c.pending[frameID] = pendingFrame{payload: payload, completedAt: time.Now()}
}

func (c *Collector) emitLocked(frameID uint32, payload []byte) {
	c.hasEmittedAny = true
	c.lastEmitted = frameID
	c.nextExpected = frameID + 1
	c.sink.OnFrameReady(payload, frameID)
}

// drainPendingLocked emits any pending frames that have become contiguous
// with nextExpected after an emission.
func (c *Collector) drainPendingLocked() {
	for {
		pf, ok := c.pending[c.nextExpected]
		if !ok {
			return
		}
		delete(c.pending, c.nextExpected)
		c.emitLocked(c.nextExpected, pf.payload)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

type reconstructionJob struct {
	fb    *frameBuffer
	coder *fec.Coder
}

func (c *Collector) sweep() {
	now := time.Now()

	var toDrop []uint32
	var toReconstruct []reconstructionJob
	c.mu.Lock()
	for id, fb := range c.buffers {
		if now.Sub(fb.firstArrival) < c.jitterWindow {
			continue
		}
		if fb.recoverable() {
			// coderFor touches c.coders, which is only ever mutated under
			// c.mu, so it must be resolved before the unlock below.
			coder, err := c.coderFor(fb.k, fb.r)
			delete(c.buffers, id)
			if err != nil {
				toDrop = append(toDrop, id)
				continue
			}
			toReconstruct = append(toReconstruct, reconstructionJob{fb: fb, coder: coder})
		} else {
			toDrop = append(toDrop, id)
			delete(c.buffers, id)
		}
	}
	var staleFrameID uint32
	staleFound := false
	if len(c.pending) > 0 {
		for id, pf := range c.pending {
			if now.Sub(pf.completedAt) >= c.jitterWindow && (!staleFound || idLess(id, staleFrameID)) {
				staleFrameID, staleFound = id, true
			}
		}
	}
	c.mu.Unlock()

	for _, id := range toDrop {
		c.droppedCount.Add(1)
		c.log.WithField("frame_id", id).Warn("frame dropped: unrecoverable after jitter window")
	}

	for _, job := range toReconstruct {
		fb, coder := job.fb, job.coder
		payload, err := reconstruct(fb, coder)
		if err != nil {
			c.droppedCount.Add(1)
			continue
		}
		c.mu.Lock()
		c.handleCompletedLocked(fb.frameID, payload)
		c.mu.Unlock()
	}

	if staleFound {
		c.resolveStalePending(staleFrameID)
	}
}

// resolveStalePending skips the gap up to the oldest stalled pending
// frame, recording each skipped id, then emits it and drains further
// contiguous pending frames (spec.md §4.7's bounded-stall rule).
func (c *Collector) resolveStalePending(frameID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pf, ok := c.pending[frameID]
	if !ok {
		return
	}
	delete(c.pending, frameID)

	if !c.hasEmittedAny {
		c.nextExpected = frameID
	}
	for c.nextExpected != frameID {
		c.log.WithField("frame_id", c.nextExpected).Debug("skipping frame_id after jitter window stall")
		c.skippedCount.Add(1)
		c.nextExpected++
	}
	c.emitLocked(frameID, pf.payload)
	c.drainPendingLocked()
}

// idLess reports whether a precedes b under the 32-bit modular sequence
// ordering used for frame_id wraparound comparisons (spec.md §4.7).
func idLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func idLessEq(a, b uint32) bool {
	return a == b || idLess(a, b)
}
