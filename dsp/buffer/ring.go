// Package buffer provides the growable ring buffer backing the
// real-time player.
package buffer

import "fmt"

const minRingCapacity = 16

// Ring is a circular float64 buffer that grows by doubling before any
// write could overflow.
//
// Samples are retained from the last Reset onward, so the read index
// can be repositioned backwards (selection looping, seeks) as long as
// the target has been written at least once. Growth performs a single
// linear copy preserving FIFO order and re-derives both indices.
//
// The invariant Len() == (WriteIndex() - ReadIndex()) mod Cap() holds
// after every operation.
//
// Ring is not safe for concurrent use; the player owns it exclusively
// on the render goroutine.
type Ring struct {
	data         []float64
	readIndex    int
	writeIndex   int
	size         int
	totalWritten int
}

// NewRing returns a Ring with at least the given initial capacity.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be > 0: %d", capacity)
	}

	if capacity < minRingCapacity {
		capacity = minRingCapacity
	}

	return &Ring{data: make([]float64, capacity)}, nil
}

// Cap returns the current capacity in samples.
func (r *Ring) Cap() int { return len(r.data) }

// Len returns the number of samples readable from the read index.
func (r *Ring) Len() int { return r.size }

// ReadIndex returns the current read slot.
func (r *Ring) ReadIndex() int { return r.readIndex }

// WriteIndex returns the current write slot.
func (r *Ring) WriteIndex() int { return r.writeIndex }

// TotalWritten returns the number of samples written since the last Reset.
func (r *Ring) TotalWritten() int { return r.totalWritten }

// Write appends block, growing the buffer first if it would overflow.
func (r *Ring) Write(block []float64) {
	if len(block) == 0 {
		return
	}

	if need := r.totalWritten + len(block); need > len(r.data) {
		r.grow(need)
	}

	for _, v := range block {
		r.data[r.writeIndex] = v

		r.writeIndex++
		if r.writeIndex == len(r.data) {
			r.writeIndex = 0
		}
	}

	r.size += len(block)
	r.totalWritten += len(block)
}

// At returns the sample offset positions past the read index, without
// consuming it. offset must be in [0, Len()).
func (r *Ring) At(offset int) float64 {
	i := r.readIndex + offset
	for i >= len(r.data) {
		i -= len(r.data)
	}

	return r.data[i]
}

// Advance consumes n samples. n is clamped to Len().
func (r *Ring) Advance(n int) {
	if n > r.size {
		n = r.size
	}

	if n <= 0 {
		return
	}

	r.readIndex += n
	for r.readIndex >= len(r.data) {
		r.readIndex -= len(r.data)
	}

	r.size -= n
}

// SeekTo repositions the read index at an absolute sample position in
// [0, TotalWritten()] and recomputes the readable size against it.
func (r *Ring) SeekTo(sample int) error {
	if sample < 0 || sample > r.totalWritten {
		return fmt.Errorf("ring seek target out of range [0, %d]: %d", r.totalWritten, sample)
	}

	r.readIndex = sample % len(r.data)
	r.size = r.totalWritten - sample

	return nil
}

// Reset discards all contents and rewinds both indices.
func (r *Ring) Reset() {
	r.readIndex = 0
	r.writeIndex = 0
	r.size = 0
	r.totalWritten = 0
}

func (r *Ring) grow(need int) {
	newCap := len(r.data) * 2
	for newCap < need {
		newCap *= 2
	}

	grown := make([]float64, newCap)

	// Samples since Reset never wrap: growth always happens before the
	// write index could collide with sample 0, so the live region is
	// the prefix [0, totalWritten).
	copy(grown, r.data[:r.totalWritten])

	r.data = grown
	r.writeIndex = r.totalWritten % newCap
	r.readIndex = (r.totalWritten - r.size) % newCap
}
