// Package stretch implements the four time-stretch processors:
// resample, granular, spectral phase-randomization and the Paul
// phase-vocoder stretch.
//
// Each processor consumes one fully loaded sample buffer and produces
// stretched audio on demand from a real-time callback. Control
// goroutines enqueue commands; the render goroutine applies them at the
// next callback boundary. Every variant fades out over a short
// quadratic envelope before honoring a seek or pause issued while
// playing, and fades back in afterwards.
package stretch

import (
	"errors"
	"fmt"
	"math"
)

const (
	defaultCommandDepth = 64
	defaultEventDepth   = 16

	// defaultFadeSeconds is the quadratic click-avoidance envelope
	// around seeks and pauses.
	defaultFadeSeconds = 0.03

	// maxRenderBlock bounds the per-callback scratch buffer.
	maxRenderBlock = 8192
)

// ErrCommandQueueFull reports a saturated control-side command queue.
var ErrCommandQueueFull = errors.New("stretch: command queue full")

// EventType identifies a processor lifecycle event.
type EventType int

const (
	// EventLoaded fires after a load command has been applied, carrying
	// the stretched output duration.
	EventLoaded EventType = iota
	// EventEnded fires exactly once when the source is exhausted and
	// all buffered output has played out.
	EventEnded
)

// Event is delivered on the processor's event channel.
type Event struct {
	Type EventType

	// DurationSeconds is the stretched output duration for loaded events.
	DurationSeconds float64
}

type command interface{ isCommand() }

type cmdLoad struct{ samples []float64 }

type cmdPlay struct{}

type cmdPause struct{}

type cmdSeek struct{ seconds float64 }

type cmdFactor struct{ factor float64 }

type cmdParam struct {
	param param
	value float64
}

func (cmdLoad) isCommand()   {}
func (cmdPlay) isCommand()   {}
func (cmdPause) isCommand()  {}
func (cmdSeek) isCommand()   {}
func (cmdFactor) isCommand() {}
func (cmdParam) isCommand()  {}

type param int

const (
	paramGrainSize param = iota
	paramScatter
	paramOverlap
	paramWindowSize
)

// engine is the variant-specific stretch core driven by the shared
// processor shell. All methods run on the render goroutine.
type engine interface {
	// reload binds a new source buffer and rewinds to its start.
	reload(src []float64)
	// jump repositions the source read to the given sample, discarding
	// buffered output.
	jump(sample float64)
	// fill produces the next len(dst) output samples, zero-padding once
	// the source is exhausted and buffers have drained.
	fill(dst []float64)
	// drained reports that the source is exhausted and every buffered
	// output sample has been consumed.
	drained() bool
	setFactor(f float64)
	setParam(p param, v float64) error
}

// Option configures a stretch processor. Options that do not apply to a
// given variant are ignored by its constructor.
type Option func(*config)

type config struct {
	factor      float64
	fadeSeconds float64
	seed        int64

	windowSize    int
	overlap       float64
	grainSize     int
	scatter       float64
	preRollBlocks int
	chunkLen      int
}

// WithStretchFactor sets the initial stretch factor.
func WithStretchFactor(f float64) Option {
	return func(c *config) {
		if f > 0 && !math.IsInf(f, 0) {
			c.factor = f
		}
	}
}

// WithFadeDuration sets the click-avoidance fade length in seconds.
func WithFadeDuration(seconds float64) Option {
	return func(c *config) {
		if seconds > 0 {
			c.fadeSeconds = seconds
		}
	}
}

// WithSeed sets the deterministic seed for grain jitter and phase
// randomization.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithWindowSize sets the analysis window size for the spectral and
// Paul variants. Must be a power of two.
func WithWindowSize(n int) Option {
	return func(c *config) {
		if n >= 2 && n&(n-1) == 0 {
			c.windowSize = n
		}
	}
}

// WithOverlap sets the analysis overlap in [0, 1) for the granular and
// spectral variants.
func WithOverlap(v float64) Option {
	return func(c *config) {
		if v >= 0 && v < 1 {
			c.overlap = v
		}
	}
}

// WithGrainSize sets the granular grain length in samples.
func WithGrainSize(n int) Option {
	return func(c *config) {
		if n > 1 {
			c.grainSize = n
		}
	}
}

// WithScatter sets the granular start-position jitter as a fraction of
// the grain size.
func WithScatter(v float64) Option {
	return func(c *config) {
		if v >= 0 && v < 1 {
			c.scatter = v
		}
	}
}

// WithPreRollBlocks sets the number of suppressed blocks the spectral
// variant processes after a seek before emitting audio.
func WithPreRollBlocks(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.preRollBlocks = n
		}
	}
}

func defaultConfig() config {
	return config{
		factor:        1,
		fadeSeconds:   defaultFadeSeconds,
		seed:          1,
		windowSize:    defaultSpectralWindow,
		overlap:       -1,
		grainSize:     defaultGrainSize,
		scatter:       defaultScatter,
		preRollBlocks: defaultPreRollBlocks,
		chunkLen:      defaultQueueChunk,
	}
}

type fadeMode int

const (
	fadeNone fadeMode = iota
	fadeOut
	fadeIn
)

// fader applies the quadratic click-avoidance envelope. The out gain
// (1-u)^2 decreases monotonically to 0; the in gain u^2 rises back.
type fader struct {
	mode   fadeMode
	pos    int
	length int
}

func (f *fader) startOut() {
	f.mode = fadeOut
	f.pos = 0
}

func (f *fader) startIn() {
	f.mode = fadeIn
	f.pos = 0
}

func (f *fader) outRemaining() int {
	if f.mode != fadeOut {
		return 0
	}

	return f.length - f.pos
}

func (f *fader) outDone() bool {
	return f.mode == fadeOut && f.pos >= f.length
}

// next returns the gain for the next output sample and advances the
// envelope.
func (f *fader) next() float64 {
	switch f.mode {
	case fadeOut:
		u := float64(f.pos) / float64(f.length)
		f.pos++

		g := 1 - u

		return g * g
	case fadeIn:
		u := float64(f.pos) / float64(f.length)

		f.pos++
		if f.pos >= f.length {
			f.mode = fadeNone
		}

		return u * u
	default:
		return 1
	}
}

// processor is the shared shell embedded by every stretch variant. It
// owns command/event plumbing, play/pause state and the fade contract;
// the engine owns the stretch math.
type processor struct {
	sampleRate float64
	factor     float64

	commands chan command
	events   chan Event

	eng engine
	src []float64

	playing    bool
	endedFired bool

	fade        fader
	pendingSeek float64
	hasSeek     bool
	pendingStop bool

	scratch []float64
}

func newProcessor(sampleRate float64, eng engine, cfg config) (processor, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return processor{}, fmt.Errorf("stretch sample rate must be > 0: %f", sampleRate)
	}

	fadeLen := int(math.Round(cfg.fadeSeconds * sampleRate))
	if fadeLen < 1 {
		fadeLen = 1
	}

	return processor{
		sampleRate: sampleRate,
		factor:     cfg.factor,
		commands:   make(chan command, defaultCommandDepth),
		events:     make(chan Event, defaultEventDepth),
		eng:        eng,
		fade:       fader{length: fadeLen},
		scratch:    make([]float64, maxRenderBlock),
	}, nil
}

// Events returns the processor's event channel. Never closed.
func (p *processor) Events() <-chan Event {
	return p.events
}

// SampleRate returns the output sample rate in Hz.
func (p *processor) SampleRate() float64 { return p.sampleRate }

// StretchFactor returns the current stretch factor. Render goroutine only.
func (p *processor) StretchFactor() float64 { return p.factor }

// Playing reports whether the processor is producing audio. Render
// goroutine only.
func (p *processor) Playing() bool { return p.playing }

func (p *processor) send(c command) error {
	select {
	case p.commands <- c:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Load replaces the source buffer. Ownership of the slice transfers to
// the processor. A loaded event with the stretched duration fires once
// the command is applied.
func (p *processor) Load(samples []float64) error {
	if len(samples) == 0 {
		return errors.New("stretch: load requires a non-empty buffer")
	}

	return p.send(cmdLoad{samples: samples})
}

// Play starts or resumes playback with a fade-in.
func (p *processor) Play() error { return p.send(cmdPlay{}) }

// Pause fades out, then suspends playback keeping the position.
func (p *processor) Pause() error { return p.send(cmdPause{}) }

// Seek repositions the source read to the given time. While playing the
// jump is deferred until the fade-out completes; while paused it applies
// immediately with only a fade-in.
func (p *processor) Seek(seconds float64) error {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("stretch seek seconds must be >= 0: %f", seconds)
	}

	return p.send(cmdSeek{seconds: seconds})
}

// SetStretchFactor updates the stretch factor.
func (p *processor) SetStretchFactor(f float64) error {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("stretch factor must be > 0: %f", f)
	}

	return p.send(cmdFactor{factor: f})
}

func (p *processor) sendParam(pr param, v float64) error {
	return p.send(cmdParam{param: pr, value: v})
}

// Render is the real-time callback. It applies pending commands, then
// fills dst with stretched output (silence while paused or before load).
func (p *processor) Render(dst []float32) {
	p.drainCommands()

	i := 0

	for i < len(dst) {
		if !p.playing || len(p.src) == 0 {
			break
		}

		m := len(dst) - i
		if m > len(p.scratch) {
			m = len(p.scratch)
		}

		// Never fill past the end of a fade-out: the samples beyond it
		// belong to the post-jump position.
		if r := p.fade.outRemaining(); r > 0 && r < m {
			m = r
		}

		p.eng.fill(p.scratch[:m])

		for j := 0; j < m; j++ {
			dst[i+j] = float32(p.scratch[j] * p.fade.next())
		}

		i += m

		if p.fade.outDone() {
			p.completeFadeOut()
		}

		if p.eng.drained() {
			p.finish()
		}
	}

	for ; i < len(dst); i++ {
		dst[i] = 0
	}
}

func (p *processor) drainCommands() {
	for {
		select {
		case c := <-p.commands:
			p.apply(c)
		default:
			return
		}
	}
}

func (p *processor) apply(c command) {
	switch c := c.(type) {
	case cmdLoad:
		p.src = c.samples
		p.eng.reload(c.samples)
		p.playing = false
		p.endedFired = false
		p.hasSeek = false
		p.pendingStop = false
		p.fade.startIn()
		p.emit(Event{
			Type:            EventLoaded,
			DurationSeconds: float64(len(c.samples)) * p.factor / p.sampleRate,
		})
	case cmdPlay:
		if !p.playing {
			p.playing = true

			if p.fade.mode == fadeNone {
				p.fade.startIn()
			}
		}
	case cmdPause:
		if p.playing && p.fade.mode != fadeOut {
			p.pendingStop = true
			p.fade.startOut()
		}
	case cmdSeek:
		p.applySeek(c.seconds)
	case cmdFactor:
		p.factor = c.factor
		p.eng.setFactor(c.factor)
	case cmdParam:
		// Parameter values were validated by the setter.
		_ = p.eng.setParam(c.param, c.value)
	}
}

func (p *processor) applySeek(seconds float64) {
	sample := seconds * p.sampleRate
	if max := float64(len(p.src)); sample > max {
		sample = max
	}

	if p.playing {
		p.pendingSeek = sample
		p.hasSeek = true

		if p.fade.mode != fadeOut {
			p.fade.startOut()
		}

		return
	}

	p.eng.jump(sample)
	p.endedFired = false
	p.fade.startIn()
}

func (p *processor) completeFadeOut() {
	if p.hasSeek {
		p.eng.jump(p.pendingSeek)
		p.hasSeek = false
		p.endedFired = false
	}

	if p.pendingStop {
		p.pendingStop = false
		p.playing = false
	}

	p.fade.startIn()
}

func (p *processor) finish() {
	p.playing = false

	if p.endedFired {
		return
	}

	p.endedFired = true
	p.emit(Event{Type: EventEnded})
}

func (p *processor) emit(e Event) {
	select {
	case p.events <- e:
	default:
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
