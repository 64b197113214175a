package stretch

import (
	"math"
	"math/rand"
)

// randomizePhases rewrites every bin pair (k, n-k) for 1 <= k < n/2 with
// a fresh random phase while preserving the original magnitude. The
// mirror bin gets the complex conjugate so the inverse transform stays
// real-valued; the DC and Nyquist bins are left untouched.
func randomizePhases(re, im []float64, rng *rand.Rand) {
	n := len(re)

	for k := 1; k < n/2; k++ {
		mag := math.Hypot(re[k], im[k])
		phi := 2 * math.Pi * rng.Float64()
		sin, cos := math.Sincos(phi)

		re[k] = mag * cos
		im[k] = mag * sin
		re[n-k] = re[k]
		im[n-k] = -im[k]
	}
}
