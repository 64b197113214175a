package fft

import (
	"fmt"
	"math"
	"sync"
)

// Direction selects between the forward and inverse transform.
type Direction int

const (
	// Forward computes the discrete Fourier transform.
	Forward Direction = iota
	// Inverse computes the inverse transform, scaled by 1/N.
	Inverse
)

// Plan holds precomputed bit-reversal and twiddle tables for one
// power-of-two transform size.
type Plan struct {
	n      int
	revIdx []int
	// Twiddles for the forward direction, laid out stage after stage:
	// for stage size s the factors W_s^k = e^(-2*pi*i*k/s), k in [0, s/2).
	cosTab []float64
	sinTab []float64
}

// NewPlan creates a Plan for transforms of length n.
// n must be a power of two and >= 2.
func NewPlan(n int) (*Plan, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft plan size must be a power of two and >= 2: %d", n)
	}

	p := &Plan{n: n}
	p.buildBitReversal()
	p.buildTwiddles()

	return p, nil
}

// Size returns the transform length N.
func (p *Plan) Size() int { return p.n }

// Transform runs the transform in place on re and im.
//
// Both slices must have length Size(); this is a caller contract and is
// not re-validated on the hot path. For real-valued input the caller
// zeroes im beforehand. Output bins k and N-k of a real input are
// complex conjugates; callers rewriting the spectrum must preserve that
// symmetry for the inverse transform to produce real output.
func (p *Plan) Transform(re, im []float64, dir Direction) {
	if dir == Inverse {
		negate(im)
		p.forward(re, im)
		negate(im)

		inv := 1 / float64(p.n)
		for i := range re {
			re[i] *= inv
			im[i] *= inv
		}

		return
	}

	p.forward(re, im)
}

// Forward runs the forward transform in place.
func (p *Plan) Forward(re, im []float64) { p.Transform(re, im, Forward) }

// Inverse runs the inverse transform in place.
func (p *Plan) Inverse(re, im []float64) { p.Transform(re, im, Inverse) }

func (p *Plan) forward(re, im []float64) {
	for i, j := range p.revIdx {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	tw := 0

	for size := 2; size <= p.n; size <<= 1 {
		half := size >> 1
		for base := 0; base < p.n; base += size {
			for k := 0; k < half; k++ {
				wr := p.cosTab[tw+k]
				wi := p.sinTab[tw+k]

				a := base + k
				b := a + half
				tr := wr*re[b] - wi*im[b]
				ti := wr*im[b] + wi*re[b]
				re[b] = re[a] - tr
				im[b] = im[a] - ti
				re[a] += tr
				im[a] += ti
			}
		}

		tw += half
	}
}

func (p *Plan) buildBitReversal() {
	p.revIdx = make([]int, p.n)

	j := 0
	for i := 1; i < p.n; i++ {
		bit := p.n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}

		j ^= bit
		p.revIdx[i] = j
	}
}

func (p *Plan) buildTwiddles() {
	// Total table length is 1 + 2 + 4 + ... + n/2 = n - 1.
	p.cosTab = make([]float64, p.n-1)
	p.sinTab = make([]float64, p.n-1)

	tw := 0

	for size := 2; size <= p.n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)

		for k := 0; k < half; k++ {
			angle := step * float64(k)
			p.cosTab[tw+k] = math.Cos(angle)
			p.sinTab[tw+k] = math.Sin(angle)
		}

		tw += half
	}
}

func negate(v []float64) {
	for i := range v {
		v[i] = -v[i]
	}
}

var (
	sharedMu    sync.Mutex
	sharedPlans = map[int]*Plan{}
)

// Shared returns a cached Plan for size n, building it on first use.
// Plans are immutable, so the returned plan is safe for concurrent use.
func Shared(n int) (*Plan, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if p, ok := sharedPlans[n]; ok {
		return p, nil
	}

	p, err := NewPlan(n)
	if err != nil {
		return nil, err
	}

	sharedPlans[n] = p

	return p, nil
}
