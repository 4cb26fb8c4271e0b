package effects

import (
	"fmt"
	"math"
)

const (
	defaultTremoloRateHz = 4.0
	defaultTremoloDepth  = 0.3
)

// Tremolo applies sinusoidal amplitude modulation. The default settings give
// a gentle age-related shake rather than a guitar-pedal pulse.
type Tremolo struct {
	sampleRate float64
	rateHz     float64
	depth      float64

	phase float64
	step  float64
}

// NewTremolo creates a tremolo stage.
func NewTremolo(sampleRate float64) (*Tremolo, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("tremolo sample rate must be positive and finite: %f", sampleRate)
	}

	t := &Tremolo{
		sampleRate: sampleRate,
		rateHz:     defaultTremoloRateHz,
		depth:      defaultTremoloDepth,
	}
	t.step = 2 * math.Pi * t.rateHz / sampleRate

	return t, nil
}

// SampleRate returns the sample rate in Hz.
func (t *Tremolo) SampleRate() float64 { return t.sampleRate }

// RateHz returns the modulation rate in Hz.
func (t *Tremolo) RateHz() float64 { return t.rateHz }

// Depth returns the modulation depth in [0, 1].
func (t *Tremolo) Depth() float64 { return t.depth }

// SetRateHz updates the modulation rate.
func (t *Tremolo) SetRateHz(rate float64) error {
	if !isFinitePositive(rate) {
		return fmt.Errorf("tremolo rate must be > 0 and finite: %f", rate)
	}
	t.rateHz = rate
	t.step = 2 * math.Pi * rate / t.sampleRate
	return nil
}

// SetDepth updates the modulation depth in [0, 1].
func (t *Tremolo) SetDepth(depth float64) error {
	if depth < 0 || depth > 1 || !isFinite(depth) {
		return fmt.Errorf("tremolo depth must be in [0, 1]: %f", depth)
	}
	t.depth = depth
	return nil
}

// Name returns the registry name.
func (t *Tremolo) Name() string { return NameTremolo }

// Reset restarts the LFO phase.
func (t *Tremolo) Reset() {
	t.phase = 0
}

// ProcessInPlace modulates buf in place.
func (t *Tremolo) ProcessInPlace(buf []float64) {
	for i := range buf {
		gain := 1 - t.depth*(0.5+0.5*math.Sin(t.phase))
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
		buf[i] *= gain
	}
}
