package effects

import (
	"fmt"

	"github.com/cwbudde/voicemask/dsp/filter/biquad"
)

const (
	defaultBrightnessFreqHz = 3000.0
	defaultBrightnessGainDB = 4.0
	maxBrightnessGainDB     = 15.0
)

// Brightness is a high-shelf boost that adds presence and air. The child and
// radio-announcer profiles use it to sharpen the shifted voice.
type Brightness struct {
	sampleRate float64
	freqHz     float64
	gainDB     float64

	shelf biquad.Section
}

// NewBrightness creates a brightness stage with a 4 dB shelf at 3 kHz.
func NewBrightness(sampleRate float64) (*Brightness, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("brightness sample rate must be positive and finite: %f", sampleRate)
	}

	b := &Brightness{
		sampleRate: sampleRate,
		freqHz:     defaultBrightnessFreqHz,
		gainDB:     defaultBrightnessGainDB,
	}
	b.shelf.Coefficients = biquad.HighShelf(b.freqHz, b.gainDB, sampleRate)

	return b, nil
}

// SampleRate returns the sample rate in Hz.
func (b *Brightness) SampleRate() float64 { return b.sampleRate }

// FreqHz returns the shelf corner frequency in Hz.
func (b *Brightness) FreqHz() float64 { return b.freqHz }

// GainDB returns the shelf gain in dB.
func (b *Brightness) GainDB() float64 { return b.gainDB }

// SetGainDB updates the shelf gain in [-15, 15] dB.
func (b *Brightness) SetGainDB(gainDB float64) error {
	if gainDB < -maxBrightnessGainDB || gainDB > maxBrightnessGainDB || !isFinite(gainDB) {
		return fmt.Errorf("brightness gain must be in [-%f, %f] dB: %f", maxBrightnessGainDB, maxBrightnessGainDB, gainDB)
	}
	b.gainDB = gainDB
	b.shelf.Coefficients = biquad.HighShelf(b.freqHz, gainDB, b.sampleRate)
	return nil
}

// Name returns the registry name.
func (b *Brightness) Name() string { return NameBrightness }

// Reset clears filter state.
func (b *Brightness) Reset() {
	b.shelf.Reset()
}

// ProcessInPlace brightens buf in place.
func (b *Brightness) ProcessInPlace(buf []float64) {
	b.shelf.ProcessBlock(buf)
}
