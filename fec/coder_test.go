package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payloadSize = 32

func sampleShards(k int) [][]byte {
	shards := make([][]byte, k)
	for i := range shards {
		shards[i] = make([]byte, payloadSize)
		for j := range shards[i] {
			shards[i][j] = byte(i*31 + j)
		}
	}
	return shards
}

func TestEncodeDecodeNoErasures(t *testing.T) {
	k, r := 4, 2
	c, err := NewCoder(k, r, payloadSize)
	require.NoError(t, err)

	data := sampleShards(k)
	parity, err := c.Encode(data)
	require.NoError(t, err)
	require.Len(t, parity, r)

	all := append(append([][]byte{}, data...), parity...)
	present := make([]bool, k+r)
	for i := range present {
		present[i] = true
	}

	recovered, err := c.Decode(all, present)
	require.NoError(t, err)
	assert.Equal(t, data, recovered)
}

func TestFECRecoveryAllErasurePatternsUpToR(t *testing.T) {
	k, r := 4, 2
	c, err := NewCoder(k, r, payloadSize)
	require.NoError(t, err)

	data := sampleShards(k)
	parity, err := c.Encode(data)
	require.NoError(t, err)
	all := append(append([][]byte{}, data...), parity...)

	n := k + r
	for mask := 0; mask < (1 << n); mask++ {
		erased := popcount(mask)
		if erased > r {
			continue
		}
		shards := make([][]byte, n)
		present := make([]bool, n)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				present[i] = false
				shards[i] = nil
			} else {
				present[i] = true
				shards[i] = all[i]
			}
		}

		recovered, err := c.Decode(shards, present)
		require.NoError(t, err, "mask=%d", mask)
		assert.Equal(t, data, recovered, "mask=%d", mask)
	}
}

func TestFECInsufficientChunks(t *testing.T) {
	k, r := 4, 2
	c, err := NewCoder(k, r, payloadSize)
	require.NoError(t, err)

	data := sampleShards(k)
	parity, err := c.Encode(data)
	require.NoError(t, err)
	all := append(append([][]byte{}, data...), parity...)

	// erase r+1 = 3 data chunks: only 3 of k+r=6 remain, below k=4.
	present := []bool{false, false, false, true, true, true}
	shards := make([][]byte, len(all))
	for i, ok := range present {
		if ok {
			shards[i] = all[i]
		}
	}

	_, err = c.Decode(shards, present)
	assert.ErrorIs(t, err, ErrInsufficientChunks)
}

func TestCanDecode(t *testing.T) {
	c, err := NewCoder(4, 2, payloadSize)
	require.NoError(t, err)
	assert.True(t, c.CanDecode([]int{0, 1}))
	assert.False(t, c.CanDecode([]int{0, 1, 2}))
}

func popcount(x int) int {
	n := 0
	for x != 0 {
		n += x & 1
		x >>= 1
	}
	return n
}
