package effects

import (
	"fmt"
	"math"
)

const (
	defaultDistortionDrive = 3.0
	defaultDistortionMix   = 0.8
	maxDistortionDrive     = 20.0
)

// Distortion is a tanh soft-clip waveshaper with drive and wet mix. The
// monster profile uses it to add growl on top of the lowered pitch.
type Distortion struct {
	sampleRate float64
	drive      float64
	mix        float64
	norm       float64
}

// NewDistortion creates a soft-clip distortion stage.
func NewDistortion(sampleRate float64) (*Distortion, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("distortion sample rate must be positive and finite: %f", sampleRate)
	}

	d := &Distortion{
		sampleRate: sampleRate,
		drive:      defaultDistortionDrive,
		mix:        defaultDistortionMix,
	}
	d.norm = math.Tanh(d.drive)

	return d, nil
}

// SampleRate returns the sample rate in Hz.
func (d *Distortion) SampleRate() float64 { return d.sampleRate }

// Drive returns the drive amount.
func (d *Distortion) Drive() float64 { return d.drive }

// Mix returns the wet mix in [0, 1].
func (d *Distortion) Mix() float64 { return d.mix }

// SetDrive updates the drive in (0, 20].
func (d *Distortion) SetDrive(drive float64) error {
	if !isFinitePositive(drive) || drive > maxDistortionDrive {
		return fmt.Errorf("distortion drive must be in (0, %f]: %f", maxDistortionDrive, drive)
	}
	d.drive = drive
	d.norm = math.Tanh(drive)
	return nil
}

// SetMix updates the wet mix in [0, 1].
func (d *Distortion) SetMix(mix float64) error {
	if mix < 0 || mix > 1 || !isFinite(mix) {
		return fmt.Errorf("distortion mix must be in [0, 1]: %f", mix)
	}
	d.mix = mix
	return nil
}

// Name returns the registry name.
func (d *Distortion) Name() string { return NameDistortion }

// Reset is a no-op; the waveshaper is stateless.
func (d *Distortion) Reset() {}

// ProcessInPlace distorts buf in place.
func (d *Distortion) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		shaped := math.Tanh(x*d.drive) / d.norm
		buf[i] = x*(1-d.mix) + shaped*d.mix
	}
}
