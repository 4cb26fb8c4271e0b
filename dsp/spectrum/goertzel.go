// Package spectrum provides single-bin frequency analysis.
//
// The Goertzel recurrence evaluates one DFT bin without a full transform,
// which is enough to verify where a masking stage moved spectral energy.
package spectrum

import (
	"fmt"
	"math"
)

// Goertzel measures the power of one frequency component. The analyzer is
// stateful: Power and Magnitude reflect every sample processed since the
// last Reset, and match |X[k]|^2 and |X[k]| of a DFT over the same block.
//
// The main lobe width is 4*pi/N for a block of N samples, so N bounds the
// frequency resolution. Energy at frequencies that do not complete an
// integer number of cycles in the block leaks into neighboring bins.
type Goertzel struct {
	frequency  float64
	sampleRate float64
	coeff      float64
	s0, s1     float64
}

// NewGoertzel creates an analyzer for the target frequency.
// frequency must be between 0 and sampleRate/2.
func NewGoertzel(frequency, sampleRate float64) (*Goertzel, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("goertzel: sample rate must be > 0: %v", sampleRate)
	}
	if frequency < 0 || frequency > sampleRate/2 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return nil, fmt.Errorf("goertzel: frequency must be between 0 and sampleRate/2: %v", frequency)
	}

	g := &Goertzel{frequency: frequency, sampleRate: sampleRate}
	g.coeff = 2 * math.Cos(2*math.Pi*frequency/sampleRate)

	return g, nil
}

// Reset clears the accumulated state.
func (g *Goertzel) Reset() {
	g.s0 = 0
	g.s1 = 0
}

// ProcessSample feeds one input sample into the recurrence.
func (g *Goertzel) ProcessSample(input float64) {
	s := input + g.coeff*g.s0 - g.s1
	g.s1 = g.s0
	g.s0 = s
}

// ProcessBlock feeds a block of samples into the recurrence.
func (g *Goertzel) ProcessBlock(input []float64) {
	s0, s1 := g.s0, g.s1

	coeff := g.coeff
	for _, x := range input {
		s := x + coeff*s0 - s1
		s1 = s0
		s0 = s
	}

	g.s0, g.s1 = s0, s1
}

// Power returns the squared magnitude of the frequency component.
func (g *Goertzel) Power() float64 {
	return g.s0*g.s0 + g.s1*g.s1 - g.coeff*g.s0*g.s1
}

// Magnitude returns the magnitude of the frequency component.
func (g *Goertzel) Magnitude() float64 {
	p := g.Power()
	if p <= 0 {
		return 0
	}

	return math.Sqrt(p)
}

// SetFrequency retargets the analyzer. The accumulated state is kept; call
// Reset before analyzing a new block.
func (g *Goertzel) SetFrequency(frequency float64) error {
	if frequency < 0 || frequency > g.sampleRate/2 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return fmt.Errorf("goertzel: frequency must be between 0 and sampleRate/2: %v", frequency)
	}

	g.frequency = frequency
	g.coeff = 2 * math.Cos(2*math.Pi*frequency/g.sampleRate)

	return nil
}

// Frequency returns the current target frequency.
func (g *Goertzel) Frequency() float64 { return g.frequency }

// SampleRate returns the sample rate.
func (g *Goertzel) SampleRate() float64 { return g.sampleRate }

// AnalyzeBlock computes the Goertzel power of one frequency in one shot.
func AnalyzeBlock(input []float64, frequency, sampleRate float64) (float64, error) {
	g, err := NewGoertzel(frequency, sampleRate)
	if err != nil {
		return 0, err
	}

	g.ProcessBlock(input)

	return g.Power(), nil
}
