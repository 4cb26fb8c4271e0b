package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/stft"
)

const (
	minFormantRatio    = 0.5
	maxFormantRatio    = 2.0
	formantIdentityEps = 1e-6

	// Envelope smoothing half-width in bins. At a 1024-point frame and
	// 44.1 kHz this averages over roughly +-700 Hz, wide enough to erase
	// harmonic structure while keeping formant peaks.
	formantSmoothBins = 16

	formantEnvelopeFloor = 1e-9
	formantMinGain       = 0.05
	formantMaxGain       = 20.0
)

// FormantShifter warps the spectral envelope independently of pitch.
//
// Per analysis frame it estimates the envelope as a moving-average smoothed
// magnitude spectrum, then applies a per-bin correction gain so the envelope
// at bin k becomes the envelope sampled at k/ratio. Phases are untouched, so
// the perceived pitch is preserved while the vocal tract resonances move.
type FormantShifter struct {
	sampleRate float64
	ratio      float64
	active     bool

	core *stft.Core

	magnitudes []float64
	envelope   []float64
	cumulative []float64
}

// NewFormantShifter creates a streaming formant shifter at the given sample rate.
func NewFormantShifter(sampleRate float64) (*FormantShifter, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("formant shifter sample rate must be positive and finite: %f", sampleRate)
	}

	core, err := stft.New(stft.DefaultFrameSize, stft.DefaultHop)
	if err != nil {
		return nil, fmt.Errorf("formant shifter: %w", err)
	}

	bins := core.Bins()
	return &FormantShifter{
		sampleRate: sampleRate,
		ratio:      1.0,
		core:       core,
		magnitudes: make([]float64, bins),
		envelope:   make([]float64, bins),
		cumulative: make([]float64, bins+1),
	}, nil
}

// SampleRate returns the sample rate in Hz.
func (f *FormantShifter) SampleRate() float64 { return f.sampleRate }

// Ratio returns the current formant-shift ratio.
func (f *FormantShifter) Ratio() float64 { return f.ratio }

// Latency returns the current input-to-output delay in samples. It is zero
// while the shifter is bypassed.
func (f *FormantShifter) Latency() int {
	if !f.active {
		return 0
	}
	return f.core.Latency()
}

// SetRatio updates the formant-shift ratio without touching stream state.
func (f *FormantShifter) SetRatio(ratio float64) error {
	if !isFinitePositive(ratio) || ratio < minFormantRatio || ratio > maxFormantRatio {
		return fmt.Errorf("formant ratio must be in [%f, %f]: %f", minFormantRatio, maxFormantRatio, ratio)
	}
	f.ratio = ratio
	return nil
}

// Reset clears STFT state.
func (f *FormantShifter) Reset() {
	f.core.Reset()
	f.active = false
}

// ProcessInPlace formant-shifts one block in place.
func (f *FormantShifter) ProcessInPlace(buf []float64) {
	if len(buf) == 0 {
		return
	}

	if math.Abs(f.ratio-1) <= formantIdentityEps {
		if f.active {
			f.Reset()
		}
		return
	}
	f.active = true

	_ = f.core.ProcessBlock(buf, f.processFrame)
}

func (f *FormantShifter) processFrame(spectrum []complex128) {
	half := f.core.FrameSize() / 2

	for k := 0; k <= half; k++ {
		f.magnitudes[k] = math.Hypot(real(spectrum[k]), imag(spectrum[k]))
	}

	// Moving-average envelope via a cumulative sum.
	f.cumulative[0] = 0
	for k := 0; k <= half; k++ {
		f.cumulative[k+1] = f.cumulative[k] + f.magnitudes[k]
	}
	for k := 0; k <= half; k++ {
		lo := max(k-formantSmoothBins, 0)
		hi := min(k+formantSmoothBins, half)
		f.envelope[k] = (f.cumulative[hi+1] - f.cumulative[lo]) / float64(hi-lo+1)
	}

	// Flatten by the local envelope, re-color with the warped envelope.
	for k := 0; k <= half; k++ {
		srcK := float64(k) / f.ratio
		warped := 0.0
		if srcK < float64(half) {
			lo := int(srcK)
			frac := srcK - float64(lo)
			hi := min(lo+1, half)
			warped = f.envelope[lo]*(1-frac) + f.envelope[hi]*frac
		}

		gain := warped / (f.envelope[k] + formantEnvelopeFloor)
		if gain < formantMinGain {
			gain = formantMinGain
		} else if gain > formantMaxGain {
			gain = formantMaxGain
		}

		spectrum[k] = complex(real(spectrum[k])*gain, imag(spectrum[k])*gain)
	}
}
