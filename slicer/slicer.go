// Package slicer cuts a frame payload into K equal-share data chunks and
// reassembles a frame from its K data chunks.
package slicer

import (
	"errors"

	"github.com/vidmesh/mpfec/chunk"
)

// ErrPayloadTooLarge is returned when the per-chunk share required to fit
// the frame into k chunks exceeds the configured payload size.
var ErrPayloadTooLarge = errors.New("slicer: frame does not fit in k chunks of the configured payload size")

// ErrInvalidK is returned when k is zero.
var ErrInvalidK = errors.New("slicer: k must be >= 1")

// Slice splits frame into k data Chunks (chunk_id 0..k-1), each carrying a
// payload of exactly payloadSize bytes (zero-padded on the right). r is
// carried through as the frame's configured parity count so every chunk of
// the frame agrees on k/r, per the chunk wire invariants.
func Slice(frameID uint32, frame []byte, k, r uint16, payloadSize int) ([]*chunk.Chunk, error) {
	if k == 0 {
		return nil, ErrInvalidK
	}

	share := ceilDiv(len(frame), int(k))
	if share > payloadSize {
		return nil, ErrPayloadTooLarge
	}

	sizes := ChunkSizes(len(frame), k)
	chunks := make([]*chunk.Chunk, k)
	for i := uint16(0); i < k; i++ {
		start := int(i) * share
		n := int(sizes[i])

		payload := make([]byte, payloadSize)
		if n > 0 {
			copy(payload, frame[start:start+n])
		}

		chunks[i] = &chunk.Chunk{
			FrameID:   frameID,
			ChunkID:   i,
			K:         k,
			R:         r,
			ChunkSize: sizes[i],
			FrameSize: uint32(len(frame)),
			Payload:   payload,
		}
	}
	return chunks, nil
}

// ChunkSizes returns the real per-chunk payload length Slice assigns to
// each of the k data chunks for a frameSize-byte frame: share bytes
// (ceilDiv(frameSize, k)) per chunk in order until the frame runs out; the
// chunk where it runs out may be shorter, and any chunks after it are 0.
// Reconstruction uses this to recover a FEC-decoded data shard's true
// length, since the wire format only carries chunk_size on chunks that
// actually arrived; frameSize is carried redundantly on every chunk
// (chunk.Chunk.FrameSize) so it survives regardless of which ones do.
func ChunkSizes(frameSize int, k uint16) []uint16 {
	share := ceilDiv(frameSize, int(k))
	sizes := make([]uint16, k)
	for i := 0; i < int(k); i++ {
		start := i * share
		end := start + share
		if end > frameSize {
			end = frameSize
		}
		if start < frameSize {
			sizes[i] = uint16(end - start)
		}
	}
	return sizes
}

// Unslice reassembles the original frame payload from the k data chunks,
// indexed by chunk_id (0..k-1), in ascending order. dataChunks must contain
// exactly k non-nil entries.
func Unslice(dataChunks []*chunk.Chunk) []byte {
	total := 0
	for _, c := range dataChunks {
		total += int(c.ChunkSize)
	}
	out := make([]byte, 0, total)
	for _, c := range dataChunks {
		out = append(out, c.Payload[:c.ChunkSize]...)
	}
	return out
}

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}
