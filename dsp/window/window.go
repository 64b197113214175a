// Package window generates and applies the analysis/synthesis window
// functions used by the stretch processors and the spectrogram engine.
package window

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeHamming
	TypeBlackman
	// TypePowerOfParabola is the flat-topped window w(t) = (1 - t^2)^alpha
	// for t in [-1, 1], used by the Paul stretch variant (alpha 1.25).
	TypePowerOfParabola
)

const defaultParabolaExponent = 1.25

// Option configures window generation.
type Option func(*config)

type config struct {
	alpha    float64
	periodic bool
}

func defaultConfig() config {
	return config{alpha: defaultParabolaExponent}
}

// WithAlpha configures the exponent for parametric windows
// (currently only TypePowerOfParabola).
func WithAlpha(v float64) Option {
	return func(c *config) {
		if v > 0 {
			c.alpha = v
		}
	}
}

// WithPeriodic configures periodic form (FFT framing) instead of the
// symmetric form.
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// Generate returns window coefficients of the given length.
func Generate(t Type, length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}

	cfg := defaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, length)
	for i := range out {
		x := samplePosition(i, length, cfg.periodic)
		out[i] = evalWindow(t, x, cfg)
	}

	return out
}

// Apply multiplies buf in place by the selected window.
func Apply(t Type, buf []float64, opts ...Option) {
	if len(buf) == 0 {
		return
	}

	coeffs := Generate(t, len(buf), opts...)
	vecmath.MulBlockInPlace(buf, coeffs)
}

// ApplyCoefficients multiplies samples with coefficients and returns a
// new slice.
func ApplyCoefficients(samples, coeffs []float64) ([]float64, error) {
	if len(samples) != len(coeffs) {
		return nil, errMismatchedLength
	}

	out := make([]float64, len(samples))
	vecmath.MulBlock(out, samples, coeffs)

	return out, nil
}

// ApplyCoefficientsInPlace multiplies samples with coefficients in place.
func ApplyCoefficientsInPlace(samples, coeffs []float64) error {
	if len(samples) != len(coeffs) {
		return errMismatchedLength
	}

	vecmath.MulBlockInPlace(samples, coeffs)

	return nil
}

// samplePosition maps index i to normalized position x in [0, 1].
// Periodic form divides by length instead of length-1 so that the
// implicit next sample closes the cycle.
func samplePosition(i, length int, periodic bool) float64 {
	if length == 1 {
		return 0
	}

	den := float64(length - 1)
	if periodic {
		den = float64(length)
	}

	return float64(i) / den
}

func evalWindow(t Type, x float64, cfg config) float64 {
	switch t {
	case TypeRectangular:
		return 1
	case TypeHann:
		return 0.5 - 0.5*math.Cos(2*math.Pi*x)
	case TypeHamming:
		return 0.54 - 0.46*math.Cos(2*math.Pi*x)
	case TypeBlackman:
		return 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
	case TypePowerOfParabola:
		u := 2*x - 1
		base := 1 - u*u
		if base <= 0 {
			return 0
		}

		return math.Pow(base, cfg.alpha)
	default:
		return 1
	}
}
