// Package spectrogram computes byte-quantized spectrogram tiles from
// sample buffers.
//
// Tile computation runs on background goroutines and may allocate; the
// per-bin hot loop does not. The decibel quantization is a 65536-entry
// lookup table keyed by the top 16 bits of the magnitude's IEEE-754
// float32 bit pattern (sign, exponent and 7 mantissa bits), rebuilt
// only when the decibel mapping changes.
package spectrogram

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-sonify/dsp/fft"
	"github.com/cwbudde/algo-sonify/dsp/window"
)

const (
	defaultDBFloor = -100.0
	defaultDBRange = 100.0

	// dbEpsilon keeps log10 finite for zero-magnitude bins.
	dbEpsilon = 1e-10

	lutSize = 1 << 16
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	dbFloor float64
	dbRange float64
}

// WithDBFloor sets the decibel value mapped to byte 0.
func WithDBFloor(v float64) Option {
	return func(c *config) {
		c.dbFloor = v
	}
}

// WithDBRange sets the decibel span mapped onto [0, 255].
func WithDBRange(v float64) Option {
	return func(c *config) {
		if v > 0 {
			c.dbRange = v
		}
	}
}

// Tile is one byte-quantized spectrogram tile of Bins frequency rows by
// Columns time columns, stored column-major. Tiles are handed to
// consumers by ownership transfer.
type Tile struct {
	Bins    int
	Columns int

	// StartSample is the source offset of the first column.
	StartSample int

	Data []byte
}

// At returns the quantized level of the given frequency bin and time
// column.
func (t *Tile) At(bin, col int) byte {
	return t.Data[col*t.Bins+bin]
}

// Engine computes spectrogram tiles at a fixed transform size and hop.
// Not safe for concurrent use; run one Engine per worker.
type Engine struct {
	fftSize int
	hopSize int
	bins    int

	dbFloor float64
	dbRange float64

	plan *fft.Plan
	hann []float64

	re  []float64
	im  []float64
	mag []float64
	lut []byte
}

// New creates a tile engine. fftSize must be a power of two; hopSize is
// the stride between adjacent time columns.
func New(fftSize, hopSize int, opts ...Option) (*Engine, error) {
	if hopSize < 1 {
		return nil, fmt.Errorf("spectrogram hop size must be >= 1: %d", hopSize)
	}

	plan, err := fft.Shared(fftSize)
	if err != nil {
		return nil, fmt.Errorf("spectrogram: %w", err)
	}

	cfg := config{dbFloor: defaultDBFloor, dbRange: defaultDBRange}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	e := &Engine{
		fftSize: fftSize,
		hopSize: hopSize,
		bins:    fftSize / 2,
		dbFloor: cfg.dbFloor,
		dbRange: cfg.dbRange,
		plan:    plan,
		hann:    window.Generate(window.TypeHann, fftSize),
		re:      make([]float64, fftSize),
		im:      make([]float64, fftSize),
		mag:     make([]float64, fftSize),
		lut:     make([]byte, lutSize),
	}
	e.rebuildLUT()

	return e, nil
}

// FFTSize returns the transform length.
func (e *Engine) FFTSize() int { return e.fftSize }

// HopSize returns the stride between time columns.
func (e *Engine) HopSize() int { return e.hopSize }

// Bins returns the number of frequency bins per column.
func (e *Engine) Bins() int { return e.bins }

// DBRange returns the current decibel mapping.
func (e *Engine) DBRange() (floor, span float64) {
	return e.dbFloor, e.dbRange
}

// SetDBRange updates the decibel mapping and rebuilds the quantization
// table.
func (e *Engine) SetDBRange(floor, span float64) error {
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) || math.IsNaN(floor) || math.IsInf(floor, 0) {
		return fmt.Errorf("spectrogram db range must be finite with span > 0: floor=%f span=%f", floor, span)
	}

	e.dbFloor = floor
	e.dbRange = span
	e.rebuildLUT()

	return nil
}

// ComputeTile produces a tile of columns time columns starting at
// startSample. Slices of src past its end are zero-padded, so tiles may
// overhang the buffer tail.
func (e *Engine) ComputeTile(src []float64, startSample, columns int) (*Tile, error) {
	if startSample < 0 {
		return nil, fmt.Errorf("spectrogram start sample must be >= 0: %d", startSample)
	}

	if columns < 1 {
		return nil, fmt.Errorf("spectrogram columns must be >= 1: %d", columns)
	}

	tile := &Tile{
		Bins:        e.bins,
		Columns:     columns,
		StartSample: startSample,
		Data:        make([]byte, e.bins*columns),
	}

	for col := 0; col < columns; col++ {
		e.computeColumn(src, startSample+col*e.hopSize, tile.Data[col*e.bins:(col+1)*e.bins])
	}

	return tile, nil
}

func (e *Engine) computeColumn(src []float64, offset int, dst []byte) {
	for i := 0; i < e.fftSize; i++ {
		if j := offset + i; j < len(src) {
			e.re[i] = src[j] * e.hann[i]
		} else {
			e.re[i] = 0
		}

		e.im[i] = 0
	}

	e.plan.Forward(e.re, e.im)
	vecmath.Magnitude(e.mag, e.re, e.im)

	for k := 0; k < e.bins; k++ {
		dst[k] = e.lut[lutKey(e.mag[k])]
	}
}

// lutKey maps a magnitude to its table index: the sign, exponent and
// top 7 mantissa bits of the float32 representation.
func lutKey(mag float64) uint16 {
	return uint16(math.Float32bits(float32(mag)) >> 16)
}

func (e *Engine) rebuildLUT() {
	for i := range e.lut {
		mag := float64(math.Float32frombits(uint32(i) << 16))
		e.lut[i] = e.quantize(mag)
	}
}

// quantize is the direct decibel mapping the table caches:
// db = 20*log10(mag+eps) scaled from (dbFloor, dbFloor+dbRange) onto
// [0, 255].
func (e *Engine) quantize(mag float64) byte {
	// Negative and NaN bit patterns exist in the table key space but
	// never arise from a magnitude; map them to the floor.
	if math.IsNaN(mag) || mag < 0 {
		return 0
	}

	db := 20 * math.Log10(mag+dbEpsilon)

	v := math.Round((db - e.dbFloor) / e.dbRange * 255)
	if v < 0 {
		return 0
	}

	if v > 255 {
		return 255
	}

	return byte(v)
}
