package stretch

import (
	"testing"
)

func TestInputQueueReadsAcrossChunkBoundaries(t *testing.T) {
	q := newInputQueue(8)

	src := make([]float64, 30)
	for i := range src {
		src[i] = float64(i)
	}

	q.load(src)

	if q.length() != 30 {
		t.Fatalf("length = %d, want 30", q.length())
	}

	dst := make([]float64, 12)
	if !q.read(dst, 5) {
		t.Fatal("read(5) reported end of source")
	}

	for i, v := range dst {
		if v != float64(5+i) {
			t.Fatalf("dst[%d] = %v, want %v", i, v, 5+i)
		}
	}
}

func TestInputQueueZeroPadsPastEnd(t *testing.T) {
	q := newInputQueue(8)
	q.load([]float64{1, 2, 3, 4, 5})

	dst := make([]float64, 8)
	if !q.read(dst, 3) {
		t.Fatal("read(3) reported end of source")
	}

	want := []float64{4, 5, 0, 0, 0, 0, 0, 0}
	for i, w := range want {
		if dst[i] != w {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], w)
		}
	}

	if q.read(dst, 5) {
		t.Fatal("read at the end must report false")
	}

	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want 0 past the end", i, v)
		}
	}
}

func TestInputQueueDiscardReleasesConsumedChunks(t *testing.T) {
	q := newInputQueue(8)

	src := make([]float64, 32)
	for i := range src {
		src[i] = float64(i)
	}

	q.load(src)
	q.discardBefore(17)

	if q.first != 2 {
		t.Fatalf("first live chunk = %d, want 2", q.first)
	}

	if q.chunks[0] != nil || q.chunks[1] != nil {
		t.Fatal("released chunks must be nil")
	}

	// Reads behind the released region yield silence, reads ahead stay
	// intact.
	dst := make([]float64, 4)
	if !q.read(dst, 14) {
		t.Fatal("read(14) reported end of source")
	}

	want := []float64{0, 0, 16, 17}
	for i, w := range want {
		if dst[i] != w {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], w)
		}
	}

	// Reloading restores the full source for backward seeks.
	q.load(src)

	if !q.read(dst, 0) {
		t.Fatal("read(0) after reload reported end of source")
	}

	for i := range dst {
		if dst[i] != float64(i) {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], i)
		}
	}
}
