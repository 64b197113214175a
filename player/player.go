// Package player implements the circular-buffer real-time player that
// streams decoded sample blocks with filtering, looping and seek
// semantics.
//
// Control goroutines enqueue commands and sample blocks; the render
// goroutine drains them at the start of each fixed-size callback and
// never allocates, locks or blocks. Sample blocks cross the boundary by
// ownership transfer.
package player

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-sonify/dsp/buffer"
	"github.com/cwbudde/algo-sonify/dsp/filter/biquad"
	"github.com/cwbudde/algo-sonify/dsp/filter/onepole"
	"github.com/cwbudde/algo-sonify/dsp/interp"
)

const (
	defaultRingCapacity = 1 << 16
	defaultCommandDepth = 256
	defaultEventDepth   = 256

	// dcCutoffHz is the fixed audio-domain corner of the DC-blocking
	// high-pass applied to every output sample.
	dcCutoffHz = 9.0

	// Anti-alias lowpass bounds: cutoff = clamp(nyquist*speed, min, ratio*nyquist).
	minLowpassHz       = 100.0
	maxLowpassNyqRatio = 0.95
	lowpassQ           = 1 / math.Sqrt2

	// boundaryGuardSeconds is the window before a loop/selection
	// boundary in which the one-shot approaching events fire (882
	// samples at 44100 Hz).
	boundaryGuardSeconds = 0.02

	// positionEventSeconds rate-limits position/metrics telemetry
	// (1323 samples at 44100 Hz).
	positionEventSeconds = 0.03
)

// State is the player lifecycle state.
type State int

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Option configures a Player.
type Option func(*config)

type config struct {
	ringCapacity   int
	startThreshold int
}

// WithRingCapacity sets the initial ring capacity in samples. The ring
// still doubles on demand.
func WithRingCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.ringCapacity = n
		}
	}
}

// WithStartThreshold sets the buffered sample count at which playback
// starts automatically. The default of 0 starts on the first write.
func WithStartThreshold(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.startThreshold = n
		}
	}
}

// Player streams buffered samples through the DC-blocking high-pass
// and, below unity speed, a speed-adaptive Butterworth anti-alias
// lowpass.
//
// All exported methods except Render are safe to call from a control
// goroutine. Render, State, PositionSamples and Speed belong to the
// render goroutine.
type Player struct {
	sampleRate     float64
	startThreshold int

	commands chan command
	events   chan Event

	ring    *buffer.Ring
	readPos float64
	speed   float64

	state        State
	started      bool
	dataComplete bool
	totalSamples int

	selStart int
	selEnd   int
	selLoop  bool

	approachFired bool
	loopSoonFired bool

	hp       *onepole.Highpass
	lp       *biquad.Section
	lpActive bool

	guardSamples     int
	positionInterval int
	sincePosition    int
	samplesConsumed  int64
}

// New creates a Player for the given output sample rate.
func New(sampleRate float64, opts ...Option) (*Player, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("player sample rate must be > 0: %f", sampleRate)
	}

	cfg := config{ringCapacity: defaultRingCapacity}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	ring, err := buffer.NewRing(cfg.ringCapacity)
	if err != nil {
		return nil, fmt.Errorf("player ring: %w", err)
	}

	hp, err := onepole.NewHighpass(dcCutoffHz, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("player highpass: %w", err)
	}

	p := &Player{
		sampleRate:       sampleRate,
		startThreshold:   cfg.startThreshold,
		commands:         make(chan command, defaultCommandDepth),
		events:           make(chan Event, defaultEventDepth),
		ring:             ring,
		speed:            1,
		selStart:         -1,
		selEnd:           -1,
		hp:               hp,
		lp:               biquad.NewSection(biquad.Coefficients{}),
		guardSamples:     int(math.Round(boundaryGuardSeconds * sampleRate)),
		positionInterval: int(math.Round(positionEventSeconds * sampleRate)),
	}
	p.retuneLowpass()

	return p, nil
}

// SampleRate returns the output sample rate in Hz.
func (p *Player) SampleRate() float64 { return p.sampleRate }

// State returns the current lifecycle state. Render goroutine only.
func (p *Player) State() State { return p.state }

// PositionSamples returns the current read position. Render goroutine only.
func (p *Player) PositionSamples() int { return int(p.readPos) }

// Speed returns the current playback speed. Render goroutine only.
func (p *Player) Speed() float64 { return p.speed }

// BufferedSamples returns the readable sample count. Render goroutine only.
func (p *Player) BufferedSamples() int { return p.ring.Len() }

// Render is the real-time callback. It applies all pending commands,
// then fills dst with the next block of output samples (silence while
// not playing or stalled). Zero allocations, no locks.
func (p *Player) Render(dst []float32) {
	p.drainCommands()

	for i := range dst {
		if p.state != StatePlaying {
			dst[i] = 0
			continue
		}

		dst[i] = float32(p.renderSample())
	}
}

func (p *Player) drainCommands() {
	for {
		select {
		case c := <-p.commands:
			p.apply(c)
		default:
			return
		}
	}
}

func (p *Player) apply(c command) {
	switch c := c.(type) {
	case cmdWrite:
		p.applyWrite(c.samples)
	case cmdPlay:
		p.applyPlay()
	case cmdPause:
		if p.state == StatePlaying {
			p.state = StatePaused
		}
	case cmdResume:
		if p.state == StatePaused {
			p.state = StatePlaying
		}
	case cmdSeek:
		p.applySeek(c.sample)
	case cmdSelection:
		p.selStart = c.startSample
		p.selEnd = c.endSample
		p.selLoop = c.loop
		p.approachFired = false
	case cmdClearSelection:
		p.selStart = -1
		p.selEnd = -1
		p.selLoop = false
		p.approachFired = false
	case cmdSpeed:
		p.speed = c.factor
		p.retuneLowpass()
	case cmdReset:
		p.applyReset()
	case cmdDataComplete:
		p.dataComplete = true
		p.totalSamples = c.totalSamples
	}
}

func (p *Player) applyWrite(samples []float64) {
	p.ring.Write(samples)

	if p.started || (p.state != StateIdle && p.state != StateBuffering) {
		return
	}

	if p.ring.Len() >= p.startThreshold {
		p.start()
	} else {
		p.state = StateBuffering
	}
}

func (p *Player) applyPlay() {
	if p.state == StatePlaying {
		return
	}

	if p.started {
		p.state = StatePlaying
		return
	}

	if p.ring.Len() >= p.startThreshold {
		p.start()
	}
}

func (p *Player) start() {
	p.state = StatePlaying
	p.started = true
	p.emit(Event{Type: EventStarted, Sample: int(p.readPos)})
}

func (p *Player) applySeek(target int) {
	if p.hasSelection() {
		target = clampInt(target, p.selStart, p.selEnd)
	} else {
		target = clampInt(target, 0, p.knownTotal())
	}

	// A selection (or a declared total) may extend past the data that
	// has actually arrived; the ring can only reposition within it.
	if tw := p.ring.TotalWritten(); target > tw {
		target = tw
	}

	p.jumpTo(target)

	if target < p.selEnd-p.guardSamples {
		p.approachFired = false
	}

	if p.state == StateFinished {
		p.state = StatePaused
	}
}

func (p *Player) applyReset() {
	p.ring.Reset()
	p.hp.Reset()
	p.lp.Reset()

	p.readPos = 0
	p.state = StateIdle
	p.started = false
	p.dataComplete = false
	p.totalSamples = 0
	p.selStart = -1
	p.selEnd = -1
	p.selLoop = false
	p.approachFired = false
	p.loopSoonFired = false
	p.sincePosition = 0
	p.samplesConsumed = 0
}

func (p *Player) renderSample() float64 {
	pos := int(p.readPos)

	if p.hasSelection() {
		if !p.approachFired && p.selEnd-pos <= p.guardSamples {
			p.approachFired = true
			p.emit(Event{
				Type:    EventSelectionEndApproaching,
				Sample:  pos,
				Seconds: float64(p.selEnd-pos) / p.speed / p.sampleRate,
			})
		}

		if pos >= p.selEnd {
			if p.selLoop {
				p.jumpTo(p.selStart)
				p.approachFired = false
				p.emit(Event{Type: EventSelectionLoop, Sample: p.selStart})
				pos = p.selStart
			} else {
				p.state = StatePaused
				p.emit(Event{Type: EventSelectionEndReached, Sample: pos})

				return 0
			}
		}
	} else if p.started {
		if avail := p.ring.Len(); avail < p.guardSamples {
			if !p.loopSoonFired && avail > 0 {
				p.loopSoonFired = true
				p.emit(Event{Type: EventLoopSoon, Sample: pos, BufferedSamples: avail})
			}
		} else {
			p.loopSoonFired = false
		}
	}

	if p.dataComplete && pos >= p.totalSamples {
		p.finish(pos)
		return 0
	}

	avail := p.ring.Len()
	if avail == 0 {
		// Transient underrun: slow delivery, not the end of the
		// stream, so stall silently.
		return 0
	}

	frac := p.readPos - float64(pos)

	var x float64

	if p.speed == 1 && frac == 0 {
		x = p.ring.At(0)
	} else {
		x0 := p.ring.At(0)

		x1 := x0
		if avail > 1 {
			x1 = p.ring.At(1)
		}

		x = interp.Linear(x0, x1, frac)
	}

	p.readPos += p.speed

	if delta := int(p.readPos) - pos; delta > 0 {
		p.ring.Advance(delta)
	}

	y := p.hp.ProcessSample(x)
	if p.lpActive {
		y = p.lp.ProcessSample(y)
	}

	p.samplesConsumed++

	p.sincePosition++
	if p.sincePosition >= p.positionInterval {
		p.sincePosition = 0
		cur := int(p.readPos)
		p.emit(Event{Type: EventPosition, Sample: cur, Seconds: float64(cur) / p.sampleRate})
		p.emit(Event{
			Type:            EventMetrics,
			BufferedSamples: p.ring.Len(),
			SamplesConsumed: p.samplesConsumed,
		})
	}

	return y
}

func (p *Player) finish(pos int) {
	if p.state == StateFinished {
		return
	}

	p.state = StateFinished
	p.emit(Event{Type: EventFinished, Sample: pos})
}

func (p *Player) jumpTo(sample int) {
	p.readPos = float64(sample)

	// The jump target is always within written data: seeks clamp to it
	// and loop starts precede the boundary.
	_ = p.ring.SeekTo(sample)
}

func (p *Player) hasSelection() bool { return p.selEnd >= 0 }

func (p *Player) knownTotal() int {
	if p.dataComplete {
		return p.totalSamples
	}

	return p.ring.TotalWritten()
}

func (p *Player) retuneLowpass() {
	p.lpActive = p.speed < 1

	nyquist := p.sampleRate / 2

	cutoff := nyquist * p.speed
	if cutoff < minLowpassHz {
		cutoff = minLowpassHz
	}

	if maxHz := maxLowpassNyqRatio * nyquist; cutoff > maxHz {
		cutoff = maxHz
	}

	p.lp.SetCoefficients(biquad.Lowpass(cutoff, lowpassQ, p.sampleRate))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
