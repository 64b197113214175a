package chunk

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func deflateInt32(t *testing.T, samples []int32) []byte {
	t.Helper()

	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(s))
	}

	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatal(err)
	}

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func TestDecodeNormalizes(t *testing.T) {
	r := Range{Min: -1000, Max: 1000}
	c := Chunk{Index: 3, Data: deflateInt32(t, []int32{-1000, 0, 500, 1000})}

	b, err := Decode(c, r)
	if err != nil {
		t.Fatal(err)
	}

	if b.Index != 3 {
		t.Fatalf("Index=%d, want 3", b.Index)
	}

	want := []float64{-1, 0, 0.5, 1}
	for i, w := range want {
		if math.Abs(b.Floats[i]-w) > 1e-12 {
			t.Fatalf("Floats[%d]=%v, want %v", i, b.Floats[i], w)
		}
	}

	wantInts := []int32{-1000, 0, 500, 1000}
	for i, w := range wantInts {
		if b.Ints[i] != w {
			t.Fatalf("Ints[%d]=%d, want %d", i, b.Ints[i], w)
		}
	}
}

func TestMissingChunkYieldsSilence(t *testing.T) {
	// The normalization range must not matter for missing chunks.
	ranges := []Range{
		{Min: -1, Max: 1},
		{Min: 0, Max: 1 << 20},
		{Min: -5000, Max: -100},
	}

	for _, r := range ranges {
		b, err := Decode(Missing(7, 250), r)
		if err != nil {
			t.Fatal(err)
		}

		if len(b.Floats) != 250 || len(b.Ints) != 250 {
			t.Fatalf("lengths %d/%d, want 250/250", len(b.Floats), len(b.Ints))
		}

		for i := range b.Floats {
			if b.Floats[i] != 0 || b.Ints[i] != 0 {
				t.Fatalf("range %+v sample %d not silent", r, i)
			}
		}
	}
}

func TestDecodeCorruptPayloadPropagates(t *testing.T) {
	_, err := Decode(Chunk{Index: 1, Data: []byte{0xde, 0xad, 0xbe, 0xef}}, Range{Min: 0, Max: 1})
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeTruncatedSamples(t *testing.T) {
	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := Decode(Chunk{Index: 2, Data: buf.Bytes()}, Range{Min: 0, Max: 1})
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeDegenerateRange(t *testing.T) {
	// min == max must not divide by zero.
	b, err := Decode(Chunk{Index: 0, Data: deflateInt32(t, []int32{5, 5})}, Range{Min: 5, Max: 5})
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range b.Floats {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Floats[%d]=%v, want finite", i, v)
		}
	}
}
