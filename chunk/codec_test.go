package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payloadSize := 32
	payload := make([]byte, payloadSize)
	copy(payload, []byte("hello-world"))

	c := &Chunk{FrameID: 42, ChunkID: 3, K: 8, R: 2, ChunkSize: 11, FrameSize: 90, Payload: payload}
	wire := Serialize(c, payloadSize)
	require.Len(t, wire, HeaderSize+payloadSize)

	got, err := Deserialize(wire, payloadSize)
	require.NoError(t, err)
	assert.Equal(t, c.FrameID, got.FrameID)
	assert.Equal(t, c.ChunkID, got.ChunkID)
	assert.Equal(t, c.K, got.K)
	assert.Equal(t, c.R, got.R)
	assert.Equal(t, c.ChunkSize, got.ChunkSize)
	assert.Equal(t, c.FrameSize, got.FrameSize)
	assert.Equal(t, c.Payload, got.Payload)
}

func TestDeserializeShortBuffer(t *testing.T) {
	_, err := Deserialize(make([]byte, HeaderSize-1), 100)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDeserializeInvalidChunkID(t *testing.T) {
	c := &Chunk{FrameID: 1, ChunkID: 10, K: 8, R: 2, ChunkSize: 0, Payload: make([]byte, 16)}
	wire := Serialize(c, 16)
	_, err := Deserialize(wire, 16)
	assert.ErrorIs(t, err, ErrInvalidChunkID)
}

func TestDeserializeInvalidChunkSize(t *testing.T) {
	c := &Chunk{FrameID: 1, ChunkID: 0, K: 8, R: 2, ChunkSize: 200, Payload: make([]byte, 16)}
	wire := Serialize(c, 16)
	_, err := Deserialize(wire, 16)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestDeserializeLeadingLittleEndian(t *testing.T) {
	// frame_id = 1 should occupy the first (low-order) byte only.
	buf := make([]byte, HeaderSize+4)
	buf[0] = 1
	buf[6] = 8 // k = 8
	buf[8] = 2 // r = 2
	got, err := Deserialize(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.FrameID)
	assert.Equal(t, uint16(8), got.K)
	assert.Equal(t, uint16(2), got.R)
}
