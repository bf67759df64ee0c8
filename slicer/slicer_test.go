package slicer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payloadSize = 16

func TestSliceUnsliceRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 15, 16, 17, 100, 8 * payloadSize, 8*payloadSize + 3}
	for _, n := range lengths {
		frame := bytes.Repeat([]byte{0xAB}, n)
		for i := range frame {
			frame[i] = byte(i)
		}

		k := uint16(8)
		// grow k until the frame fits, mirroring a caller that sizes k to
		// the frame.
		for {
			share := ceilDiv(len(frame), int(k))
			if share <= payloadSize {
				break
			}
			k++
		}

		chunks, err := Slice(1, frame, k, 2, payloadSize)
		require.NoError(t, err)
		require.Len(t, chunks, int(k))

		got := Unslice(chunks)
		assert.Equal(t, frame, got, "length=%d k=%d", n, k)
	}
}

func TestSliceEmptyFrame(t *testing.T) {
	chunks, err := Slice(1, nil, 4, 2, payloadSize)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.Equal(t, uint16(0), c.ChunkSize)
		assert.Equal(t, payloadSize, len(c.Payload))
	}
}

func TestSliceTooLarge(t *testing.T) {
	frame := make([]byte, payloadSize*4+1)
	_, err := Slice(1, frame, 4, 2, payloadSize)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestSliceInvalidK(t *testing.T) {
	_, err := Slice(1, []byte("x"), 0, 2, payloadSize)
	assert.ErrorIs(t, err, ErrInvalidK)
}
