// Package fec implements the systematic Reed-Solomon erasure coder over
// GF(2^8) used to recover missing chunks of a frame. It wraps
// github.com/klauspost/reedsolomon, which builds a Vandermonde-derived
// generator matrix deterministically (same parameters -> same matrix on
// every machine) and performs the field arithmetic correctly.
package fec

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

var (
	// ErrInsufficientChunks is returned when fewer than k chunks are present.
	ErrInsufficientChunks = errors.New("fec: fewer than k chunks present, cannot decode")
	// ErrSingularMatrix is returned when the present-chunk subset yields a
	// degenerate (non-invertible) subgenerator matrix. klauspost/reedsolomon's
	// Vandermonde-derived matrix guarantees any k-of-(k+r) rows are linearly
	// independent, so this is unreachable through this coder in practice; it
	// is kept as a distinct sentinel for API conformance with spec.md §4.3.
	ErrSingularMatrix = errors.New("fec: present chunk subset yields a singular matrix")
)

// Coder encodes/decodes frames split into k data shards with r parity
// shards, each shard exactly payloadSize bytes.
type Coder struct {
	k, r        int
	payloadSize int
	enc         reedsolomon.Encoder
}

// NewCoder validates (k, r) per spec.md §4.3 (k>=1, r>=0, k+r<=256) and
// constructs the backing Reed-Solomon encoder.
func NewCoder(k, r, payloadSize int) (*Coder, error) {
	if k < 1 {
		return nil, fmt.Errorf("fec: k must be >= 1, got %d", k)
	}
	if r < 0 {
		return nil, fmt.Errorf("fec: r must be >= 0, got %d", r)
	}
	if k+r > 256 {
		return nil, fmt.Errorf("fec: k+r must be <= 256, got %d", k+r)
	}

	if r == 0 {
		// reedsolomon.New requires at least 1 parity shard; a zero-parity
		// configuration is systematic-only (no recovery possible), so the
		// coder just performs the identity pass-through.
		return &Coder{k: k, r: r, payloadSize: payloadSize}, nil
	}

	enc, err := reedsolomon.New(k, r)
	if err != nil {
		return nil, fmt.Errorf("fec: constructing reed-solomon encoder: %w", err)
	}
	return &Coder{k: k, r: r, payloadSize: payloadSize, enc: enc}, nil
}

// K returns the configured data-shard count.
func (c *Coder) K() int { return c.k }

// R returns the configured parity-shard count.
func (c *Coder) R() int { return c.r }

// PayloadSize returns the fixed per-shard size this coder was built for.
func (c *Coder) PayloadSize() int { return c.payloadSize }

// Encode produces r parity shards for the given k data shards (each
// exactly payloadSize bytes). Data shards are left unmodified (systematic).
func (c *Coder) Encode(dataShards [][]byte) ([][]byte, error) {
	if len(dataShards) != c.k {
		return nil, fmt.Errorf("fec: expected %d data shards, got %d", c.k, len(dataShards))
	}
	if c.r == 0 {
		return nil, nil
	}

	shards := make([][]byte, c.k+c.r)
	copy(shards, dataShards)
	for i := c.k; i < c.k+c.r; i++ {
		shards[i] = make([]byte, c.payloadSize)
	}

	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fec: encode: %w", err)
	}
	return shards[c.k:], nil
}

// Decode recovers the k data shards given a sparse shards slice of length
// k+r (present[i] == false or shards[i] == nil marks an erasure). The fast
// path returns the data shards directly when none of them are missing.
func (c *Coder) Decode(shards [][]byte, present []bool) ([][]byte, error) {
	if len(shards) != c.k+c.r || len(present) != c.k+c.r {
		return nil, fmt.Errorf("fec: expected %d shards, got %d", c.k+c.r, len(shards))
	}

	presentCount := 0
	dataMissing := false
	for i, ok := range present {
		if ok && shards[i] != nil {
			presentCount++
		} else if i < c.k {
			dataMissing = true
		}
	}
	if presentCount < c.k {
		return nil, ErrInsufficientChunks
	}

	if !dataMissing {
		out := make([][]byte, c.k)
		copy(out, shards[:c.k])
		return out, nil
	}

	if c.r == 0 {
		// No parity to reconstruct from; data is missing and unrecoverable.
		return nil, ErrInsufficientChunks
	}

	work := make([][]byte, c.k+c.r)
	for i, ok := range present {
		if ok {
			work[i] = shards[i]
		}
	}

	if err := c.enc.ReconstructData(work); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return nil, ErrInsufficientChunks
		}
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}

	out := make([][]byte, c.k)
	copy(out, work[:c.k])
	return out, nil
}

// CanDecode reports whether the given erasure pattern (missing chunk_ids)
// still permits recovery, i.e. at most r chunks out of k+r are missing.
func (c *Coder) CanDecode(erasures []int) bool {
	return len(erasures) <= c.r
}
