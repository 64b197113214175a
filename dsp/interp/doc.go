// Package interp provides fractional-position interpolation helpers for
// variable-speed sample reads.
package interp
