package player

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-sonify/dsp/filter/biquad"
	"github.com/cwbudde/algo-sonify/dsp/filter/onepole"
	"github.com/cwbudde/algo-sonify/dsp/interp"
	"github.com/cwbudde/algo-sonify/dsp/signal"
)

const testRate = 8000.0

func sine(t *testing.T, freqHz float64, samples int) []float64 {
	t.Helper()

	gen, err := signal.NewGenerator(testRate)
	if err != nil {
		t.Fatal(err)
	}

	s, err := gen.Sine(freqHz, 1, samples)
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func ramp(t *testing.T, start, end float64, samples int) []float64 {
	t.Helper()

	gen, err := signal.NewGenerator(testRate)
	if err != nil {
		t.Fatal(err)
	}

	s, err := gen.Ramp(start, end, samples)
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func renderAll(t *testing.T, p *Player, n, block int) ([]float32, []Event) {
	t.Helper()

	out := make([]float32, 0, n)
	buf := make([]float32, block)

	var events []Event

	for len(out) < n {
		want := block
		if r := n - len(out); r < want {
			want = r
		}

		p.Render(buf[:want])
		out = append(out, buf[:want]...)
		events = append(events, drain(p)...)
	}

	return out, events
}

func drain(p *Player) []Event {
	var events []Event

	for {
		select {
		case e := <-p.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0

	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}

	return n
}

func TestNewRejectsInvalidSampleRate(t *testing.T) {
	for _, rate := range []float64{0, -44100, math.NaN(), math.Inf(1)} {
		if _, err := New(rate); err == nil {
			t.Errorf("New(%v) expected error", rate)
		}
	}
}

func TestOrderedBlocksRenderInSequence(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	src := sine(t, 440, 3000)

	for i := 0; i < 3; i++ {
		block := make([]float64, 1000)
		copy(block, src[i*1000:(i+1)*1000])

		if err := p.Write(block); err != nil {
			t.Fatal(err)
		}
	}

	got, events := renderAll(t, p, 3000, 128)

	// Speed 1.0 is a direct copy through the DC-blocking highpass, so
	// the output must match the same filter applied to the
	// concatenated source.
	hp, err := onepole.NewHighpass(9, testRate)
	if err != nil {
		t.Fatal(err)
	}

	for i, x := range src {
		want := float32(hp.ProcessSample(x))
		if got[i] != want {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want)
		}
	}

	if n := countEvents(events, EventStarted); n != 1 {
		t.Fatalf("started events = %d, want 1", n)
	}

	if n := countEvents(events, EventPosition); n == 0 {
		t.Fatal("expected periodic position events")
	}

	if p.PositionSamples() != 3000 {
		t.Fatalf("position = %d, want 3000", p.PositionSamples())
	}
}

func TestSelectionLoopFiresOncePerLap(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 220, 40000)); err != nil {
		t.Fatal(err)
	}

	if err := p.SetSelection(2.0, 5.0, true); err != nil {
		t.Fatal(err)
	}

	// First pass 0s..5s, one full lap of the 3 s selection, then half a
	// lap so the run ends mid-selection.
	total := 40000 + 24000 + 12000
	_, events := renderAll(t, p, total, 512)

	if n := countEvents(events, EventSelectionLoop); n != 2 {
		t.Fatalf("selection loop events = %d, want 2", n)
	}

	if n := countEvents(events, EventSelectionEndApproaching); n != 2 {
		t.Fatalf("approaching events = %d, want 2 (one per boundary pass)", n)
	}

	if n := countEvents(events, EventSelectionEndReached); n != 0 {
		t.Fatalf("end-reached events = %d, want 0 while looping", n)
	}

	if p.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", p.State())
	}

	pos := p.PositionSamples()
	if pos < 16000 || pos >= 40000 {
		t.Fatalf("position %d outside selection [16000, 40000)", pos)
	}
}

func TestSelectionEndWithoutLoopPauses(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 220, 16000)); err != nil {
		t.Fatal(err)
	}

	if err := p.SetSelection(0.5, 1.0, false); err != nil {
		t.Fatal(err)
	}

	_, events := renderAll(t, p, 16000, 512)

	if n := countEvents(events, EventSelectionEndReached); n != 1 {
		t.Fatalf("end-reached events = %d, want 1", n)
	}

	if p.State() != StatePaused {
		t.Fatalf("state = %v, want paused", p.State())
	}

	if pos := p.PositionSamples(); pos != 8000 {
		t.Fatalf("position = %d, want 8000", pos)
	}
}

func TestUnderrunStallsWithoutFinishing(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 440, 100)); err != nil {
		t.Fatal(err)
	}

	got, events := renderAll(t, p, 300, 64)

	for i := 100; i < 300; i++ {
		if got[i] != 0 {
			t.Fatalf("sample %d = %v, want silence during underrun", i, got[i])
		}
	}

	if n := countEvents(events, EventFinished); n != 0 {
		t.Fatalf("finished events = %d, want 0 before data complete", n)
	}

	if p.State() != StatePlaying {
		t.Fatalf("state = %v, want playing during underrun", p.State())
	}

	// The stalled read position must not advance.
	if pos := p.PositionSamples(); pos != 100 {
		t.Fatalf("position = %d, want 100", pos)
	}
}

func TestDataCompleteDrainFinishesExactlyOnce(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 440, 100)); err != nil {
		t.Fatal(err)
	}

	if err := p.DataComplete(100); err != nil {
		t.Fatal(err)
	}

	_, events := renderAll(t, p, 400, 64)

	if n := countEvents(events, EventFinished); n != 1 {
		t.Fatalf("finished events = %d, want 1", n)
	}

	if p.State() != StateFinished {
		t.Fatalf("state = %v, want finished", p.State())
	}

	// Further callbacks must stay silent and not refire.
	_, more := renderAll(t, p, 200, 64)
	if n := countEvents(more, EventFinished); n != 0 {
		t.Fatalf("finished refired %d times", n)
	}
}

func TestPauseResumeKeepsPosition(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 440, 2000)); err != nil {
		t.Fatal(err)
	}

	renderAll(t, p, 500, 128)

	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}

	got, _ := renderAll(t, p, 256, 128)
	for i, v := range got {
		if v != 0 {
			t.Fatalf("sample %d = %v, want silence while paused", i, v)
		}
	}

	if pos := p.PositionSamples(); pos != 500 {
		t.Fatalf("position = %d, want 500 after pause", pos)
	}

	if err := p.Resume(); err != nil {
		t.Fatal(err)
	}

	renderAll(t, p, 100, 128)

	if pos := p.PositionSamples(); pos != 600 {
		t.Fatalf("position = %d, want 600 after resume", pos)
	}
}

func TestSeekClampsToKnownData(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(ramp(t, 0, 1, 1000)); err != nil {
		t.Fatal(err)
	}

	renderAll(t, p, 10, 10)

	if err := p.Seek(5000); err != nil {
		t.Fatal(err)
	}

	renderAll(t, p, 1, 1)

	if pos := p.PositionSamples(); pos > 1000 {
		t.Fatalf("position = %d, want clamped to 1000", pos)
	}

	if err := p.Seek(200); err != nil {
		t.Fatal(err)
	}

	p.Render(make([]float32, 1))

	if pos := p.PositionSamples(); pos != 201 {
		t.Fatalf("position = %d, want 201 after seek to 200", pos)
	}

	if err := p.Seek(-1); err == nil {
		t.Fatal("expected error for negative seek")
	}
}

func TestSeekIntoSelectionBeyondWrittenData(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	block := make([]float64, 1000)
	for i := range block {
		block[i] = 0.5
	}

	if err := p.Write(block); err != nil {
		t.Fatal(err)
	}

	// Selection [4000, 16000) lies entirely past the 1000 written
	// samples; the seek target sits inside the selection but outside the
	// ring.
	if err := p.SetSelection(0.5, 2.0, false); err != nil {
		t.Fatal(err)
	}

	if err := p.Seek(10000); err != nil {
		t.Fatal(err)
	}

	got, _ := renderAll(t, p, 128, 64)

	// The seek must land at the end of the written data and stall there,
	// not replay sample 0 under the requested position.
	if pos := p.PositionSamples(); pos != 1000 {
		t.Fatalf("position = %d, want 1000", pos)
	}

	if n := p.BufferedSamples(); n != 0 {
		t.Fatalf("buffered = %d, want 0 after seek to the write frontier", n)
	}

	for i, v := range got {
		if v != 0 {
			t.Fatalf("sample %d = %v, want silence while stalled", i, v)
		}
	}
}

func TestUnitySpeedFastPathMatchesInterpolationPath(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	src := sine(t, 440, 4000)

	if err := p.Write(append([]float64(nil), src...)); err != nil {
		t.Fatal(err)
	}

	// A half-speed stint of 200 outputs consumes exactly 100 source
	// samples, so the read position returns to an integer boundary
	// before speed goes back to 1.0.
	if err := p.SetSpeed(0.5); err != nil {
		t.Fatal(err)
	}

	stint, _ := renderAll(t, p, 200, 64)

	if err := p.SetSpeed(1.0); err != nil {
		t.Fatal(err)
	}

	got, _ := renderAll(t, p, 500, 128)

	// Reference chain: the interpolation path evaluated sample by
	// sample, through the same filters in the same order.
	hp, err := onepole.NewHighpass(9, testRate)
	if err != nil {
		t.Fatal(err)
	}

	lp := biquad.NewSection(biquad.Lowpass(testRate/2*0.5, 1/math.Sqrt2, testRate))

	pos := 0.0

	for k, g := range stint {
		i := int(pos)
		x := interp.Linear(src[i], src[i+1], pos-float64(i))

		if want := float32(lp.ProcessSample(hp.ProcessSample(x))); g != want {
			t.Fatalf("stint sample %d = %v, want %v", k, g, want)
		}

		pos += 0.5
	}

	// At speed 1.0 every fractional offset is zero, so the interpolation
	// formula degenerates to a direct copy and the fast path must emit
	// byte-identical samples.
	for k, g := range got {
		i := int(pos)
		x := interp.Linear(src[i], src[i+1], 0)

		if want := float32(hp.ProcessSample(x)); g != want {
			t.Fatalf("unity sample %d = %v, want %v", k, g, want)
		}

		pos++
	}
}

func TestHalfSpeedConsumesHalfTheInput(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 440, 4000)); err != nil {
		t.Fatal(err)
	}

	if err := p.SetSpeed(0.5); err != nil {
		t.Fatal(err)
	}

	renderAll(t, p, 2000, 128)

	if pos := p.PositionSamples(); pos != 1000 {
		t.Fatalf("position = %d, want 1000 after 2000 half-speed samples", pos)
	}
}

func TestHalfSpeedAttenuatesHighBand(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	// 3900 Hz lands on the 0.5-speed cutoff of 2000 Hz once the halved
	// read speed halves the perceived frequency, so the Butterworth
	// lowpass must attenuate it visibly.
	if err := p.Write(sine(t, 3900, 8000)); err != nil {
		t.Fatal(err)
	}

	if err := p.SetSpeed(0.5); err != nil {
		t.Fatal(err)
	}

	got, _ := renderAll(t, p, 8000, 256)

	var peak float64
	for _, v := range got[4000:] {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}

	if peak > 0.8 {
		t.Fatalf("peak = %v, want attenuation below 0.8", peak)
	}
}

func TestInvalidControlArguments(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.SetSpeed(0); err == nil {
		t.Error("SetSpeed(0) expected error")
	}

	if err := p.SetSpeed(math.NaN()); err == nil {
		t.Error("SetSpeed(NaN) expected error")
	}

	if err := p.SetSelection(-1, 2, false); err == nil {
		t.Error("negative selection start expected error")
	}

	if err := p.SetSelection(2, 2, false); err == nil {
		t.Error("empty selection expected error")
	}

	if err := p.DataComplete(-1); err == nil {
		t.Error("negative total expected error")
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	p, err := New(testRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 440, 1000)); err != nil {
		t.Fatal(err)
	}

	renderAll(t, p, 500, 128)

	if err := p.Reset(); err != nil {
		t.Fatal(err)
	}

	p.Render(make([]float32, 1))

	if p.State() != StateIdle {
		t.Fatalf("state = %v, want idle", p.State())
	}

	if pos := p.PositionSamples(); pos != 0 {
		t.Fatalf("position = %d, want 0", pos)
	}

	if n := p.BufferedSamples(); n != 0 {
		t.Fatalf("buffered = %d, want 0", n)
	}
}

func TestStartThresholdDefersPlayback(t *testing.T) {
	p, err := New(testRate, WithStartThreshold(1000))
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Write(sine(t, 440, 400)); err != nil {
		t.Fatal(err)
	}

	p.Render(make([]float32, 64))

	if p.State() != StateBuffering {
		t.Fatalf("state = %v, want buffering below threshold", p.State())
	}

	if err := p.Write(sine(t, 440, 700)); err != nil {
		t.Fatal(err)
	}

	_, events := renderAll(t, p, 64, 64)

	if p.State() != StatePlaying {
		t.Fatalf("state = %v, want playing past threshold", p.State())
	}

	if n := countEvents(events, EventStarted); n != 1 {
		t.Fatalf("started events = %d, want 1", n)
	}
}
