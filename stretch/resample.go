package stretch

import (
	"github.com/cwbudde/algo-sonify/dsp/interp"
)

// Resample is the simplest stretch variant: the source read position
// advances by 1/stretchFactor per output sample with linear
// interpolation between the bracketing source samples. Duration stretch
// and pitch drop are coupled; stretching by f lowers pitch by f.
type Resample struct {
	processor
}

// NewResample creates a resample stretch processor.
func NewResample(sampleRate float64, opts ...Option) (*Resample, error) {
	cfg := defaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	eng := &resampleEngine{step: 1 / cfg.factor}

	proc, err := newProcessor(sampleRate, eng, cfg)
	if err != nil {
		return nil, err
	}

	return &Resample{processor: proc}, nil
}

type resampleEngine struct {
	src  []float64
	pos  float64
	step float64
}

func (e *resampleEngine) reload(src []float64) {
	e.src = src
	e.pos = 0
}

func (e *resampleEngine) jump(sample float64) {
	if max := float64(len(e.src)); sample > max {
		sample = max
	}

	e.pos = sample
}

func (e *resampleEngine) fill(dst []float64) {
	last := float64(len(e.src) - 1)

	for i := range dst {
		if e.pos >= last {
			dst[i] = 0
			continue
		}

		idx := int(e.pos)
		dst[i] = interp.Linear(e.src[idx], e.src[idx+1], e.pos-float64(idx))
		e.pos += e.step
	}
}

func (e *resampleEngine) drained() bool {
	return len(e.src) > 0 && e.pos >= float64(len(e.src)-1)
}

func (e *resampleEngine) setFactor(f float64) {
	e.step = 1 / f
}

func (e *resampleEngine) setParam(param, float64) error {
	return nil
}
