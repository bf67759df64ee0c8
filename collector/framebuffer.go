package collector

import (
	"time"

	"github.com/vidmesh/mpfec/chunk"
)

// frameBuffer is a sparse array of k+r chunk slots for one frame, indexed
// by chunk_id (spec.md §3's FrameBuffer). The collector exclusively owns
// FrameBuffers; nothing else holds a reference once a chunk has been
// ingested (spec.md §3 Ownership).
type frameBuffer struct {
	frameID      uint32
	k, r         uint16
	frameSize    uint32
	slots        []*chunk.Chunk
	dataPresent  int
	totalPresent int
	firstArrival time.Time
}

func newFrameBuffer(frameID uint32, k, r uint16, now time.Time) *frameBuffer {
	return &frameBuffer{
		frameID:      frameID,
		k:            k,
		r:            r,
		slots:        make([]*chunk.Chunk, int(k)+int(r)),
		firstArrival: now,
	}
}

// insert adds c to its slot if empty (duplicates are idempotent: first
// wins, later discarded silently — spec.md §3).
func (fb *frameBuffer) insert(c *chunk.Chunk) {
	if int(c.ChunkID) >= len(fb.slots) {
		return
	}
	if fb.slots[c.ChunkID] != nil {
		return
	}
	fb.slots[c.ChunkID] = c
	fb.frameSize = c.FrameSize
	fb.totalPresent++
	if !c.IsParity() {
		fb.dataPresent++
	}
}

// readyForReconstruction reports whether the buffer meets either
// completion condition from spec.md §4.7: all k data chunks present (no
// FEC needed), or k total chunks present with at least one data chunk
// missing (FEC required).
func (fb *frameBuffer) readyForReconstruction() bool {
	k := int(fb.k)
	if fb.dataPresent >= k {
		return true
	}
	return fb.totalPresent >= k && fb.dataPresent < k
}

// recoverable reports whether at least k chunks (of any kind) are present,
// the minimum needed to attempt reconstruction during the flusher sweep.
func (fb *frameBuffer) recoverable() bool {
	return fb.totalPresent >= int(fb.k)
}
