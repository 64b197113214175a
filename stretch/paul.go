package stretch

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/algo-sonify/dsp/fft"
	"github.com/cwbudde/algo-sonify/dsp/window"
)

const defaultPaulWindow = 4096

// Paul is the phase-vocoder stretch popularized by Paul Nasca's
// paulstretch: fixed 50% overlap, a flat-topped power window applied
// twice per block, conjugate-symmetric phase randomization, and an
// input queue that advances by windowSize*0.5/factor per block read.
// Extreme factors remain smooth because successive output blocks share
// no phase relationship to break.
type Paul struct {
	processor
}

// NewPaul creates a Paul stretch processor. The overlap is fixed at 50%
// and is not configurable; WithOverlap is ignored.
func NewPaul(sampleRate float64, opts ...Option) (*Paul, error) {
	cfg := defaultConfig()
	cfg.windowSize = defaultPaulWindow

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	eng := &paulEngine{
		factor: cfg.factor,
		queue:  newInputQueue(cfg.chunkLen),
		rng:    rand.New(rand.NewSource(cfg.seed)),
	}
	if err := eng.setWindowSize(cfg.windowSize); err != nil {
		return nil, err
	}

	proc, err := newProcessor(sampleRate, eng, cfg)
	if err != nil {
		return nil, err
	}

	return &Paul{processor: proc}, nil
}

// SetWindowSize updates the analysis window size. Must be a power of
// two. The engine rebuilds its transform plan and buffers on the render
// goroutine when the command is applied, which allocates and may take
// the shared plan cache lock; resizing mid-playback is not glitch-free.
func (p *Paul) SetWindowSize(n int) error {
	if n < 4 || n&(n-1) != 0 {
		return fmt.Errorf("window size must be a power of two and >= 4: %d", n)
	}

	return p.sendParam(paramWindowSize, float64(n))
}

type paulEngine struct {
	src []float64

	windowSize int
	half       int
	factor     float64

	plan *fft.Plan
	win  []float64
	re   []float64
	im   []float64
	rng  *rand.Rand

	queue *inputQueue
	inPos float64

	// prevTail is the second half of the previous block, overlap-added
	// with the next block's first half before emission.
	prevTail []float64
	flushed  bool

	ring   []float64
	readC  int64
	writeC int64
}

func (e *paulEngine) setWindowSize(n int) error {
	plan, err := fft.Shared(n)
	if err != nil {
		return err
	}

	e.windowSize = n
	e.half = n / 2
	e.plan = plan
	e.win = window.Generate(window.TypePowerOfParabola, n)
	e.re = make([]float64, n)
	e.im = make([]float64, n)
	e.prevTail = make([]float64, e.half)
	e.ring = make([]float64, nextPowerOfTwo(2*n))
	e.readC = 0
	e.writeC = 0
	e.flushed = false

	return nil
}

// displace is the per-block source advance windowSize*0.5/factor.
func (e *paulEngine) displace() float64 {
	return float64(e.windowSize) * 0.5 / e.factor
}

func (e *paulEngine) reload(src []float64) {
	e.src = src
	e.queue.load(src)
	e.jump(0)
}

func (e *paulEngine) jump(sample float64) {
	if max := float64(len(e.src)); sample > max {
		sample = max
	}

	e.inPos = sample
	e.flushed = false
	e.readC = 0
	e.writeC = 0

	for i := range e.prevTail {
		e.prevTail[i] = 0
	}

	// Rebuild the queue so reads behind previously released chunks work
	// after a backward seek.
	e.queue.load(e.src)
	e.queue.discardBefore(int(e.inPos))
}

func (e *paulEngine) available() int {
	return int(e.writeC - e.readC)
}

func (e *paulEngine) exhausted() bool {
	return len(e.src) == 0 || int(e.inPos) >= e.queue.length()
}

func (e *paulEngine) fill(dst []float64) {
	capMask := int64(len(e.ring) - 1)

	for i := range dst {
		for e.available() == 0 && !e.fullyDone() {
			e.advance()
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

func (e *paulEngine) fullyDone() bool {
	return e.exhausted() && e.flushed
}

func (e *paulEngine) advance() {
	if !e.exhausted() {
		e.processBlock()
		return
	}

	// Source exhausted: the buffered second half of the last block is
	// trailing audio that must still play out.
	capMask := int64(len(e.ring) - 1)

	for i := 0; i < e.half; i++ {
		e.ring[(e.writeC+int64(i))&capMask] = e.prevTail[i]
	}

	e.writeC += int64(e.half)
	e.flushed = true
}

func (e *paulEngine) processBlock() {
	n := e.windowSize

	e.queue.read(e.re, int(e.inPos))

	for i := 0; i < n; i++ {
		e.re[i] *= e.win[i]
		e.im[i] = 0
	}

	e.plan.Forward(e.re, e.im)
	randomizePhases(e.re, e.im, e.rng)
	e.plan.Inverse(e.re, e.im)

	// The window is applied a second time before overlap-add.
	for i := 0; i < n; i++ {
		e.re[i] *= e.win[i]
	}

	capMask := int64(len(e.ring) - 1)

	for i := 0; i < e.half; i++ {
		e.ring[(e.writeC+int64(i))&capMask] = e.re[i] + e.prevTail[i]
	}

	e.writeC += int64(e.half)
	copy(e.prevTail, e.re[e.half:])

	e.inPos += e.displace()
	e.queue.discardBefore(int(e.inPos))
}

func (e *paulEngine) drained() bool {
	return len(e.src) > 0 && e.fullyDone() && e.available() == 0
}

func (e *paulEngine) setFactor(f float64) {
	e.factor = f
}

func (e *paulEngine) setParam(p param, v float64) error {
	if p != paramWindowSize {
		return fmt.Errorf("paul: unsupported parameter %d", p)
	}

	return e.setWindowSize(int(v))
}
