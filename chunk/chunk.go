// Package chunk defines the wire-format fragment exchanged in a single UDP
// datagram: a fixed 16-byte little-endian header followed by a fixed-size
// payload.
package chunk

import "errors"

// HeaderSize is the on-wire size of the fixed chunk header in bytes:
// frame_id(4) | chunk_id(2) | k(2) | r(2) | chunk_size(2) | frame_size(4).
const HeaderSize = 16

// DefaultPayloadSize is the spec default payload byte count per chunk.
const DefaultPayloadSize = 1000

var (
	// ErrShortBuffer is returned when a buffer is too small to hold a header.
	ErrShortBuffer = errors.New("chunk: buffer shorter than header")
	// ErrInvalidChunkID is returned when chunk_id >= k+r.
	ErrInvalidChunkID = errors.New("chunk: chunk_id out of range for k+r")
	// ErrInvalidChunkSize is returned when chunk_size exceeds the configured payload size.
	ErrInvalidChunkSize = errors.New("chunk: chunk_size exceeds payload size")
)

// Chunk is the atomic unit carried in one UDP datagram.
type Chunk struct {
	FrameID uint32
	ChunkID uint16
	K       uint16
	R       uint16
	// ChunkSize is this chunk's real payload length, valid only for the
	// chunk that carries it; a chunk reconstructed by FEC from other
	// chunks has no ChunkSize of its own (see FrameSize).
	ChunkSize uint16
	// FrameSize is the original frame's total byte length, carried
	// redundantly on every chunk of the frame (data and parity alike, the
	// same way K and R are), so a data chunk's real size can be re-derived
	// via slicer.ChunkSizes even when that chunk itself never arrived and
	// had to be reconstructed.
	FrameSize uint32
	Payload   []byte // always len(Payload) == configured payload size
}

// IsParity reports whether this chunk carries parity (as opposed to data).
func (c *Chunk) IsParity() bool {
	return c.ChunkID >= c.K
}

// WireSize returns the datagram size for a given payload size.
func WireSize(payloadSize int) int {
	return HeaderSize + payloadSize
}
