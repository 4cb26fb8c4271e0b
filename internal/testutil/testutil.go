// Package testutil provides the signal fixtures and float comparisons
// shared by the dsp package tests.
package testutil

import (
	"math"
	"testing"
)

// Tone returns n samples of a sine at freqHz sampled at sampleRate.
func Tone(freqHz, sampleRate, amplitude float64, n int) []float64 {
	buf := make([]float64, n)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range buf {
		buf[i] = amplitude * math.Sin(step*float64(i))
	}
	return buf
}

// Level returns n samples all set to value.
func Level(value float64, n int) []float64 {
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

// RequireFinite fails t at the first NaN or Inf sample.
func RequireFinite(t *testing.T, buf []float64) {
	t.Helper()
	for i, v := range buf {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("sample %d is not finite: %v", i, v)
		}
	}
}

// RequireSliceNearlyEqual fails t unless got and want have the same length
// and agree element-wise within eps. The failure reports the worst sample.
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d samples, want %d", len(got), len(want))
	}

	worst, at := 0.0, -1
	for i := range got {
		if d := math.Abs(got[i] - want[i]); d > worst {
			worst, at = d, i
		}
	}
	if worst > eps {
		t.Fatalf("sample %d: got %v, want %v (diff %v exceeds %v)",
			at, got[at], want[at], worst, eps)
	}
}
