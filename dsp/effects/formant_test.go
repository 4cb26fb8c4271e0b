package effects

import (
	"math"
	"testing"

	"github.com/cwbudde/voicemask/dsp/spectrum"
)

func TestFormantShifterValidation(t *testing.T) {
	if _, err := NewFormantShifter(-1); err == nil {
		t.Fatal("expected error for negative sample rate")
	}

	f, err := NewFormantShifter(44100)
	if err != nil {
		t.Fatalf("NewFormantShifter failed: %v", err)
	}

	for _, ratio := range []float64{0, 0.2, 3, math.NaN()} {
		if err := f.SetRatio(ratio); err == nil {
			t.Errorf("SetRatio(%v) should fail", ratio)
		}
	}

	if err := f.SetRatio(1.25); err != nil {
		t.Fatalf("SetRatio(1.25) failed: %v", err)
	}
}

func TestFormantShifterUnityBypass(t *testing.T) {
	f, err := NewFormantShifter(44100)
	if err != nil {
		t.Fatalf("NewFormantShifter failed: %v", err)
	}

	buf := sineBlock(330, 44100, 1024, 0)
	want := append([]float64(nil), buf...)

	f.ProcessInPlace(buf)

	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("unity ratio must pass through unchanged, sample %d differs", i)
		}
	}
}

func TestFormantShifterMovesSpectralWeight(t *testing.T) {
	const sr = 44100.0

	// A dark harmonic source: strong fundamental with weak upper partials.
	gen := func(offset, length int) []float64 {
		buf := make([]float64, length)
		for i := range buf {
			n := float64(offset + i)
			buf[i] = 0.5*math.Sin(2*math.Pi*220*n/sr) +
				0.2*math.Sin(2*math.Pi*440*n/sr) +
				0.1*math.Sin(2*math.Pi*880*n/sr)
		}
		return buf
	}

	process := func(ratio float64) (low, high float64) {
		f, err := NewFormantShifter(sr)
		if err != nil {
			t.Fatalf("NewFormantShifter failed: %v", err)
		}
		if err := f.SetRatio(ratio); err != nil {
			t.Fatalf("SetRatio failed: %v", err)
		}

		output := make([]float64, 0, 32*1024)
		for block := range 32 {
			buf := gen(block*1024, 1024)
			f.ProcessInPlace(buf)
			output = append(output, buf...)
		}

		tail := output[len(output)/2:]
		lowBand := tonePower(t, tail, 220, sr) + tonePower(t, tail, 440, sr)
		highBand := tonePower(t, tail, 880, sr)
		return lowBand, highBand
	}

	lowUp, highUp := process(1.6)
	lowDown, highDown := process(0.7)

	// Raising the formant ratio re-colors energy upward relative to
	// lowering it.
	upTilt := highUp / (lowUp + 1e-12)
	downTilt := highDown / (lowDown + 1e-12)
	if upTilt <= downTilt {
		t.Errorf("formant raise should tilt spectrum up: up tilt %v, down tilt %v", upTilt, downTilt)
	}
}

func TestFormantShifterPreservesPitch(t *testing.T) {
	f, err := NewFormantShifter(44100)
	if err != nil {
		t.Fatalf("NewFormantShifter failed: %v", err)
	}
	if err := f.SetRatio(1.5); err != nil {
		t.Fatalf("SetRatio failed: %v", err)
	}

	const inputHz = 220.0

	output := make([]float64, 0, 48*1024)
	for block := range 48 {
		buf := sineBlock(inputHz, 44100, 1024, block*1024)
		f.ProcessInPlace(buf)
		output = append(output, buf...)
	}

	tail := output[len(output)/2:]
	seconds := float64(len(tail)) / 44100
	gotHz := zeroCrossingFrequency(tail, seconds)

	if math.Abs(gotHz-inputHz) > 0.08*inputHz {
		t.Errorf("fundamental moved to %.1f Hz, want about %.1f Hz", gotHz, inputHz)
	}
}

// tonePower measures signal power at one frequency.
func tonePower(t *testing.T, buf []float64, freq, sampleRate float64) float64 {
	t.Helper()
	p, err := spectrum.AnalyzeBlock(buf, freq, sampleRate)
	if err != nil {
		t.Fatalf("AnalyzeBlock failed: %v", err)
	}
	return p
}
