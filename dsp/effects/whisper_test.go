package effects

import (
	"math"
	"testing"
)

func TestWhisperRemovesPeriodicity(t *testing.T) {
	w, err := NewWhisper(44100)
	if err != nil {
		t.Fatalf("NewWhisper failed: %v", err)
	}

	input := sineBlock(220, 44100, 16384, 0)
	output := append([]float64(nil), input...)
	w.ProcessInPlace(output)

	// The whispered signal must be audible but mostly decorrelated from
	// the voiced input.
	tail := output[8192:]
	if rms(tail) < 1e-3 {
		t.Fatalf("whisper output too quiet: rms = %v", rms(tail))
	}

	corr := normalizedCorrelation(input[8192:], tail)
	if math.Abs(corr) > 0.5 {
		t.Errorf("whisper output still correlated with voiced input: %v", corr)
	}
}

func TestWhisperTracksEnvelope(t *testing.T) {
	w, err := NewWhisper(44100)
	if err != nil {
		t.Fatalf("NewWhisper failed: %v", err)
	}

	loud := sineBlock(330, 44100, 8192, 0)
	w.ProcessInPlace(loud)
	loudRMS := rms(loud[4096:])

	quiet := make([]float64, 8192)
	w.ProcessInPlace(quiet)
	quietRMS := rms(quiet[4096:])

	if loudRMS < 10*quietRMS {
		t.Errorf("whisper should follow the input level: loud rms %v, quiet rms %v", loudRMS, quietRMS)
	}
}

func normalizedCorrelation(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, ea, eb float64
	for i := range n {
		dot += a[i] * b[i]
		ea += a[i] * a[i]
		eb += b[i] * b[i]
	}
	denom := math.Sqrt(ea * eb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
