// Package fft provides an in-place radix-2 Cooley-Tukey transform over
// split real/imaginary sample arrays.
//
// A Plan precomputes the bit-reversal permutation and twiddle tables for
// one power-of-two size and can be reused across calls and goroutines
// (the plan itself is immutable after construction; the transformed
// arrays are the caller's). Plans for repeated sizes are shared through
// a package-level cache, see Shared.
package fft
