package player

import (
	"errors"
	"fmt"
	"math"
)

// ErrCommandQueueFull reports that the control-side command queue is
// saturated. Commands are never applied synchronously; the caller may
// retry after the next render callback has drained the queue.
var ErrCommandQueueFull = errors.New("player: command queue full")

// Commands are a closed set of structs dispatched by type switch on the
// render goroutine, applied only at the start of a callback.
type command interface{ isCommand() }

type cmdWrite struct{ samples []float64 }

type cmdPlay struct{}

type cmdPause struct{}

type cmdResume struct{}

type cmdSeek struct{ sample int }

type cmdSelection struct {
	startSample int
	endSample   int
	loop        bool
}

type cmdClearSelection struct{}

type cmdSpeed struct{ factor float64 }

type cmdReset struct{}

type cmdDataComplete struct{ totalSamples int }

func (cmdWrite) isCommand()          {}
func (cmdPlay) isCommand()           {}
func (cmdPause) isCommand()          {}
func (cmdResume) isCommand()         {}
func (cmdSeek) isCommand()           {}
func (cmdSelection) isCommand()      {}
func (cmdClearSelection) isCommand() {}
func (cmdSpeed) isCommand()          {}
func (cmdReset) isCommand()          {}
func (cmdDataComplete) isCommand()   {}

func (p *Player) send(c command) error {
	select {
	case p.commands <- c:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Write hands a decoded sample block to the player. Ownership of the
// slice transfers to the player; the caller must not reuse it.
func (p *Player) Write(samples []float64) error {
	if len(samples) == 0 {
		return nil
	}

	return p.send(cmdWrite{samples: samples})
}

// Play starts playback if data is available.
func (p *Player) Play() error { return p.send(cmdPlay{}) }

// Pause suspends playback, keeping all position and filter state.
func (p *Player) Pause() error { return p.send(cmdPause{}) }

// Resume continues playback after a pause.
func (p *Player) Resume() error { return p.send(cmdResume{}) }

// Seek repositions playback to an absolute sample index. The target is
// clamped into the active selection bounds, or into the written data,
// when the command is applied. No fade is performed at the player
// level.
func (p *Player) Seek(sample int) error {
	if sample < 0 {
		return fmt.Errorf("player seek sample must be >= 0: %d", sample)
	}

	return p.send(cmdSeek{sample: sample})
}

// SetSelection bounds playback to [startSec, endSec), optionally
// looping at the end bound.
func (p *Player) SetSelection(startSec, endSec float64, loop bool) error {
	if startSec < 0 || math.IsNaN(startSec) || math.IsInf(startSec, 0) {
		return fmt.Errorf("player selection start must be >= 0: %f", startSec)
	}

	if endSec <= startSec || math.IsNaN(endSec) || math.IsInf(endSec, 0) {
		return fmt.Errorf("player selection end must be > start (%f): %f", startSec, endSec)
	}

	return p.send(cmdSelection{
		startSample: int(math.Round(startSec * p.sampleRate)),
		endSample:   int(math.Round(endSec * p.sampleRate)),
		loop:        loop,
	})
}

// ClearSelection removes the selection bounds.
func (p *Player) ClearSelection() error { return p.send(cmdClearSelection{}) }

// SetSpeed updates the playback speed factor. Speeds below 1.0 engage
// the anti-alias lowpass; speed 1.0 uses the direct copy fast path.
func (p *Player) SetSpeed(factor float64) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("player speed must be > 0: %f", factor)
	}

	return p.send(cmdSpeed{factor: factor})
}

// Reset discards buffered data, selection, counters and filter state.
func (p *Player) Reset() error { return p.send(cmdReset{}) }

// DataComplete declares that the producer has delivered the whole
// stream of totalSamples samples. Only after this can an underrun be
// interpreted as the end of playback.
func (p *Player) DataComplete(totalSamples int) error {
	if totalSamples < 0 {
		return fmt.Errorf("player total samples must be >= 0: %d", totalSamples)
	}

	return p.send(cmdDataComplete{totalSamples: totalSamples})
}
