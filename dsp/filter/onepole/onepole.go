// Package onepole implements the one-pole DC-blocking high-pass used
// in front of the player's anti-alias filter.
package onepole

import (
	"fmt"
	"math"
)

// Highpass is a one-pole high-pass filter
//
//	y[n] = alpha * (y[n-1] + x[n] - x[n-1])
//
// with alpha derived from the RC time constant of the cutoff frequency
// at the given sample rate. State survives retuning; only Reset clears
// it.
type Highpass struct {
	alpha float64

	prevIn  float64
	prevOut float64
}

// NewHighpass creates a high-pass at cutoff Hz for the given sample rate.
func NewHighpass(cutoff, sampleRate float64) (*Highpass, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("onepole sample rate must be > 0: %f", sampleRate)
	}

	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, fmt.Errorf("onepole cutoff must be in (0, %f): %f", sampleRate/2, cutoff)
	}

	h := &Highpass{}
	h.retune(cutoff, sampleRate)

	return h, nil
}

// Alpha returns the current filter coefficient.
func (h *Highpass) Alpha() float64 { return h.alpha }

// ProcessSample filters one sample.
func (h *Highpass) ProcessSample(x float64) float64 {
	y := h.alpha * (h.prevOut + x - h.prevIn)
	h.prevIn = x
	h.prevOut = y

	return y
}

// ProcessBlock filters a block in place. Zero-alloc.
func (h *Highpass) ProcessBlock(buf []float64) {
	alpha := h.alpha
	pin, pout := h.prevIn, h.prevOut

	for i, x := range buf {
		y := alpha * (pout + x - pin)
		pin = x
		pout = y
		buf[i] = y
	}

	h.prevIn, h.prevOut = pin, pout
}

// Reset clears the filter state to zero.
func (h *Highpass) Reset() {
	h.prevIn = 0
	h.prevOut = 0
}

func (h *Highpass) retune(cutoff, sampleRate float64) {
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / sampleRate
	h.alpha = rc / (rc + dt)
}
