package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/filter/biquad"
)

const (
	telephoneLowHz  = 300.0
	telephoneHighHz = 3400.0
	telephoneDrive  = 2.0
)

// Telephone narrows the voice to the classic telephony band (300-3400 Hz,
// 4th-order Butterworth edges) and adds mild tanh compression to mimic
// carbon-microphone saturation.
type Telephone struct {
	sampleRate float64
	band       *biquad.Chain
	driveNorm  float64
}

// NewTelephone creates a telephone band-limit stage.
func NewTelephone(sampleRate float64) (*Telephone, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("telephone sample rate must be positive and finite: %f", sampleRate)
	}

	return &Telephone{
		sampleRate: sampleRate,
		band:       biquad.NewChain(biquad.ButterworthBandpass(telephoneLowHz, telephoneHighHz, sampleRate)...),
		driveNorm:  math.Tanh(telephoneDrive),
	}, nil
}

// SampleRate returns the sample rate in Hz.
func (t *Telephone) SampleRate() float64 { return t.sampleRate }

// Name returns the registry name.
func (t *Telephone) Name() string { return NameTelephone }

// Reset clears filter state.
func (t *Telephone) Reset() {
	t.band.Reset()
}

// ProcessInPlace band-limits and saturates buf in place.
func (t *Telephone) ProcessInPlace(buf []float64) {
	t.band.ProcessBlock(buf)
	for i, x := range buf {
		buf[i] = math.Tanh(x*telephoneDrive) / t.driveNorm
	}
}
