package chunk

import "encoding/binary"

// Serialize writes c's header and payload into a freshly allocated buffer of
// exactly HeaderSize+payloadSize bytes. The payload is copied/truncated to
// payloadSize; callers are expected to have already sized c.Payload that way.
func Serialize(c *Chunk, payloadSize int) []byte {
	buf := make([]byte, HeaderSize+payloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.FrameID)
	binary.LittleEndian.PutUint16(buf[4:6], c.ChunkID)
	binary.LittleEndian.PutUint16(buf[6:8], c.K)
	binary.LittleEndian.PutUint16(buf[8:10], c.R)
	binary.LittleEndian.PutUint16(buf[10:12], c.ChunkSize)
	binary.LittleEndian.PutUint32(buf[12:16], c.FrameSize)
	copy(buf[HeaderSize:], c.Payload)
	return buf
}

// Deserialize parses buf into a Chunk whose payload is exactly payloadSize
// bytes (zero-padded if buf carries fewer trailing bytes than that). It
// rejects buffers shorter than the header and header values that violate
// the wire invariants (chunk_id < k+r, chunk_size <= payloadSize). Beyond
// the one payload-buffer allocation, Deserialize does not allocate.
func Deserialize(buf []byte, payloadSize int) (*Chunk, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortBuffer
	}

	frameID := binary.LittleEndian.Uint32(buf[0:4])
	chunkID := binary.LittleEndian.Uint16(buf[4:6])
	k := binary.LittleEndian.Uint16(buf[6:8])
	r := binary.LittleEndian.Uint16(buf[8:10])
	chunkSize := binary.LittleEndian.Uint16(buf[10:12])
	frameSize := binary.LittleEndian.Uint32(buf[12:16])

	if uint32(chunkID) >= uint32(k)+uint32(r) {
		return nil, ErrInvalidChunkID
	}
	if int(chunkSize) > payloadSize {
		return nil, ErrInvalidChunkSize
	}

	payload := make([]byte, payloadSize)
	copy(payload, buf[HeaderSize:])

	return &Chunk{
		FrameID:   frameID,
		ChunkID:   chunkID,
		K:         k,
		R:         r,
		ChunkSize: chunkSize,
		FrameSize: frameSize,
		Payload:   payload,
	}, nil
}
