package stretch

import (
	"math"
	"testing"
)

func TestSpectralStretchEndsWithExpectedDuration(t *testing.T) {
	const rate = 44100.0

	p, err := NewSpectral(rate,
		WithStretchFactor(4),
		WithWindowSize(1024),
		WithSeed(5),
	)
	if err != nil {
		t.Fatal(err)
	}

	src := sineBuffer(t, rate, 440, 44100)

	if err := p.Load(src); err != nil {
		t.Fatal(err)
	}

	if err := p.Play(); err != nil {
		t.Fatal(err)
	}

	out, events := renderUntilEnded(t, p, 400_000)

	if n := countEvents(events, EventEnded); n != 1 {
		t.Fatalf("ended events = %d, want 1", n)
	}

	dur := float64(lastAudible(out)) / rate
	if dur < 3 || dur > 5 {
		t.Fatalf("output duration = %.2f s, want about 4 s", dur)
	}

	if level := rms(out[44100 : 2*44100]); level < 0.05 {
		t.Fatalf("rms = %v, want audible signal", level)
	}
}

func TestSpectralSeekSuppressesUnderSummedOutput(t *testing.T) {
	const rate = 44100.0

	p, err := NewSpectral(rate, WithWindowSize(1024), WithSeed(5))
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Load(constBuffer(0.5, 44100)); err != nil {
		t.Fatal(err)
	}

	if err := p.Seek(0.25); err != nil {
		t.Fatal(err)
	}

	if err := p.Play(); err != nil {
		t.Fatal(err)
	}

	fadeLen := int(math.Round(defaultFadeSeconds * rate))
	out := renderN(p, fadeLen+8192)

	// Past the fade-in, the first emitted samples must already carry
	// full overlap coverage: a constant source keeps its level instead
	// of ramping up from an under-summed head.
	head := rms(out[fadeLen : fadeLen+1024])
	tail := rms(out[fadeLen+4096 : fadeLen+8192])

	if tail < 0.1 {
		t.Fatalf("steady rms = %v, want audible signal", tail)
	}

	if head < 0.5*tail {
		t.Fatalf("head rms = %v vs steady %v, output ramps up from an under-summed head", head, tail)
	}
}

func TestSpectralParameterValidation(t *testing.T) {
	p, err := NewSpectral(44100)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.SetWindowSize(1000); err == nil {
		t.Error("SetWindowSize(1000) expected error")
	}

	if err := p.SetOverlap(1); err == nil {
		t.Error("SetOverlap(1) expected error")
	}

	if err := p.SetWindowSize(2048); err != nil {
		t.Errorf("SetWindowSize(2048) = %v", err)
	}
}
