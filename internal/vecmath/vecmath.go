// Package vecmath provides the block arithmetic kernels used on the audio
// hot path.
package vecmath

import "math"

// ScaleBlock multiplies each element by a scalar: dst[i] = src[i] * scale.
// Slices must have equal length. Panics if lengths differ.
func ScaleBlock(dst, src []float64, scale float64) {
	if len(dst) != len(src) {
		panic("vecmath: slice length mismatch")
	}
	for i := range dst {
		dst[i] = src[i] * scale
	}
}

// ScaleBlockInPlace multiplies each element by a scalar in-place: dst[i] *= scale.
func ScaleBlockInPlace(dst []float64, scale float64) {
	for i := range dst {
		dst[i] *= scale
	}
}

// DotProduct returns the dot product of a and b: sum(a[i] * b[i]).
// Only the minimum length of the two slices is used.
func DotProduct(a, b []float64) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := range n {
		sum += a[i] * b[i]
	}
	return sum
}

// MaxAbs returns the maximum absolute value in x.
// Returns 0 for an empty slice.
func MaxAbs(x []float64) float64 {
	var peak float64
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root mean square level of x.
// Returns 0 for an empty slice.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(DotProduct(x, x) / float64(len(x)))
}
