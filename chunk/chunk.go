// Package chunk decodes compressed integer sample chunks into
// normalized float and raw integer sample blocks for the player.
//
// Decoding runs off the real-time thread; decoded blocks are handed to
// the player by ownership transfer and the decoder keeps no reference.
package chunk

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCorrupt reports a chunk payload that failed to decompress or had a
// truncated sample array. Corrupt chunks are never silently replaced by
// silence; only explicit missing markers are.
var ErrCorrupt = errors.New("chunk: corrupt payload")

// Chunk is one compressed sample block of a data series, tagged with
// its sequence index, or a marker for a block known to be absent.
type Chunk struct {
	Index int
	Data  []byte

	// Missing marks a gap in the series. ExpectedSamples carries the
	// length the block would have had; Data is ignored.
	Missing         bool
	ExpectedSamples int
}

// Missing returns a marker chunk for an absent block of the given length.
func Missing(index, expectedSamples int) Chunk {
	return Chunk{Index: index, Missing: true, ExpectedSamples: expectedSamples}
}

// Range is the session-global normalization range of the raw integer
// samples.
type Range struct {
	Min, Max int32
}

// Block is a decoded chunk: normalized floats in [-1, 1] and the raw
// integers, always of equal length.
type Block struct {
	Index  int
	Floats []float64
	Ints   []int32
}

// Decode turns one chunk into a Block using the session normalization
// range.
//
// A missing chunk yields zero-filled float and integer arrays of the
// expected length without attempting decompression. A present chunk is
// zlib-inflated to little-endian int32 samples and normalized as
// 2*(x-min)/(max-min) - 1.
func Decode(c Chunk, r Range) (Block, error) {
	if c.Missing {
		if c.ExpectedSamples < 0 {
			return Block{}, fmt.Errorf("chunk %d: expected sample count must be >= 0: %d",
				c.Index, c.ExpectedSamples)
		}

		return Block{
			Index:  c.Index,
			Floats: make([]float64, c.ExpectedSamples),
			Ints:   make([]int32, c.ExpectedSamples),
		}, nil
	}

	raw, err := inflate(c.Data)
	if err != nil {
		return Block{}, fmt.Errorf("chunk %d: %w: %w", c.Index, ErrCorrupt, err)
	}

	if len(raw)%4 != 0 {
		return Block{}, fmt.Errorf("chunk %d: %w: payload length %d is not a whole number of samples",
			c.Index, ErrCorrupt, len(raw))
	}

	n := len(raw) / 4
	ints := make([]int32, n)
	floats := make([]float64, n)

	span := float64(r.Max) - float64(r.Min)
	if span <= 0 {
		span = 1
	}

	for i := 0; i < n; i++ {
		x := int32(binary.LittleEndian.Uint32(raw[i*4:]))
		ints[i] = x
		floats[i] = 2*(float64(x)-float64(r.Min))/span - 1
	}

	return Block{Index: c.Index, Floats: floats, Ints: ints}, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	return out, nil
}
