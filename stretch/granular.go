package stretch

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-sonify/dsp/window"
)

const (
	defaultGrainSize = 2048
	defaultScatter   = 0.1

	// defaultGrainOverlap spaces grains at grainSize/4.
	defaultGrainOverlap = 0.75
)

// Granular reads the source in fixed-size Hann-windowed grains and
// overlap-adds them into an output ring at a cadence decoupled from the
// source read position. Grain start positions are jittered to avoid
// audible periodicity; pitch is preserved.
type Granular struct {
	processor
}

// NewGranular creates a granular stretch processor.
func NewGranular(sampleRate float64, opts ...Option) (*Granular, error) {
	cfg := defaultConfig()
	cfg.overlap = defaultGrainOverlap

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	eng := &granularEngine{
		factor:  cfg.factor,
		overlap: cfg.overlap,
		scatter: cfg.scatter,
		rng:     rand.New(rand.NewSource(cfg.seed)),
	}
	eng.setGrainSize(cfg.grainSize)

	proc, err := newProcessor(sampleRate, eng, cfg)
	if err != nil {
		return nil, err
	}

	return &Granular{processor: proc}, nil
}

// SetGrainSize updates the grain length in samples. The engine rebuilds
// its window and output ring on the render goroutine when the command
// is applied, which allocates; resizing mid-playback is not glitch-free.
func (g *Granular) SetGrainSize(n int) error {
	if n < 2 {
		return fmt.Errorf("grain size must be >= 2: %d", n)
	}

	return g.sendParam(paramGrainSize, float64(n))
}

// SetScatter updates the grain start jitter as a fraction of the grain
// size.
func (g *Granular) SetScatter(v float64) error {
	if v < 0 || v >= 1 || math.IsNaN(v) {
		return fmt.Errorf("scatter must be in [0, 1): %f", v)
	}

	return g.sendParam(paramScatter, v)
}

// SetOverlap updates the grain overlap fraction.
func (g *Granular) SetOverlap(v float64) error {
	if v < 0 || v >= 1 || math.IsNaN(v) {
		return fmt.Errorf("overlap must be in [0, 1): %f", v)
	}

	return g.sendParam(paramOverlap, v)
}

type granularEngine struct {
	src []float64

	grainSize int
	overlap   float64
	scatter   float64
	factor    float64
	gain      float64

	hann []float64
	rng  *rand.Rand

	// Overlap-add ring. Samples before writeC carry their final sum;
	// consumed slots are zeroed for reuse.
	ring   []float64
	readC  int64
	writeC int64

	srcPos float64
}

func (e *granularEngine) setGrainSize(n int) {
	e.grainSize = n
	e.hann = window.Generate(window.TypeHann, n)
	e.ring = make([]float64, nextPowerOfTwo(2*n))
	e.readC = 0
	e.writeC = 0
	e.updateGain()
}

func (e *granularEngine) updateGain() {
	// Compensates energy buildup from overlapping grains.
	e.gain = math.Sqrt((1 - e.overlap) * 2)
}

func (e *granularEngine) interval() int {
	iv := int(float64(e.grainSize) * (1 - e.overlap))
	if iv < 1 {
		iv = 1
	}

	return iv
}

func (e *granularEngine) reload(src []float64) {
	e.src = src
	e.jump(0)
}

func (e *granularEngine) jump(sample float64) {
	if max := float64(len(e.src)); sample > max {
		sample = max
	}

	e.srcPos = sample
	e.clearRing()
}

func (e *granularEngine) clearRing() {
	for i := range e.ring {
		e.ring[i] = 0
	}

	e.readC = 0
	e.writeC = 0
}

func (e *granularEngine) available() int {
	return int(e.writeC - e.readC)
}

func (e *granularEngine) exhausted() bool {
	return len(e.src) == 0 || int(e.srcPos)+e.grainSize > len(e.src)
}

func (e *granularEngine) fill(dst []float64) {
	capMask := int64(len(e.ring) - 1)

	for i := range dst {
		for e.available() == 0 && !e.exhausted() {
			e.synthesizeGrain()
		}

		if e.available() == 0 {
			dst[i] = 0
			continue
		}

		slot := e.readC & capMask
		dst[i] = e.ring[slot]
		e.ring[slot] = 0
		e.readC++
	}
}

// synthesizeGrain extracts one jittered, Hann-windowed grain and
// overlap-adds it at the write cursor. The write cursor advances by the
// grain interval; the source position advances by interval/factor,
// which is what produces the stretch.
func (e *granularEngine) synthesizeGrain() {
	start := int(e.srcPos)

	if jitter := int(float64(e.grainSize) * e.scatter); jitter > 0 {
		start += e.rng.Intn(2*jitter+1) - jitter
	}

	if start < 0 {
		start = 0
	}

	if max := len(e.src) - e.grainSize; start > max {
		start = max
	}

	capMask := int64(len(e.ring) - 1)

	for i := 0; i < e.grainSize; i++ {
		slot := (e.writeC + int64(i)) & capMask
		e.ring[slot] += e.src[start+i] * e.hann[i] * e.gain
	}

	iv := e.interval()
	e.writeC += int64(iv)
	e.srcPos += float64(iv) / e.factor
}

func (e *granularEngine) drained() bool {
	return len(e.src) > 0 && e.exhausted() && e.available() == 0
}

func (e *granularEngine) setFactor(f float64) {
	e.factor = f
}

func (e *granularEngine) setParam(p param, v float64) error {
	switch p {
	case paramGrainSize:
		e.setGrainSize(int(v))
	case paramScatter:
		e.scatter = v
	case paramOverlap:
		e.overlap = v
		e.updateGain()
	default:
		return fmt.Errorf("granular: unsupported parameter %d", p)
	}

	return nil
}
