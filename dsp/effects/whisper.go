package effects

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/voicemask/dsp/filter/biquad"
)

const (
	whisperNoiseLowHz   = 500.0
	whisperNoiseHighHz  = 4000.0
	whisperDryHighpass  = 800.0
	whisperDryLevel     = 0.2
	whisperNoiseGain    = 1.8
	whisperAttackMs     = 5.0
	whisperReleaseMs    = 30.0
	whisperNoiseSeed    = 1
	whisperEnvelopeBias = 1e-6
)

// Whisper replaces the voiced excitation with spectrally shaped noise.
//
// Broadband noise is band-limited to the speech band and scaled by an
// envelope follower tracking the input level, so the noise inherits the
// speech rhythm. A reduced, high-passed copy of the dry signal keeps
// fricative detail while stripping the periodic lows that carry pitch.
type Whisper struct {
	sampleRate float64

	noiseSrc    rand.Source
	rng         *rand.Rand
	noiseFilter *biquad.Chain
	dryFilter   biquad.Section

	envelope     float64
	attackCoeff  float64
	releaseCoeff float64
}

// NewWhisper creates a whisper stage.
func NewWhisper(sampleRate float64) (*Whisper, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("whisper sample rate must be positive and finite: %f", sampleRate)
	}

	noiseSrc := rand.NewSource(whisperNoiseSeed)
	w := &Whisper{
		sampleRate:   sampleRate,
		noiseSrc:     noiseSrc,
		rng:          rand.New(noiseSrc),
		noiseFilter:  biquad.NewChain(biquad.ButterworthBandpass(whisperNoiseLowHz, whisperNoiseHighHz, sampleRate)...),
		attackCoeff:  onePoleCoeff(whisperAttackMs, sampleRate),
		releaseCoeff: onePoleCoeff(whisperReleaseMs, sampleRate),
	}
	w.dryFilter.Coefficients = biquad.Highpass(whisperDryHighpass, biquad.ButterworthQ, sampleRate)

	return w, nil
}

// SampleRate returns the sample rate in Hz.
func (w *Whisper) SampleRate() float64 { return w.sampleRate }

// Name returns the registry name.
func (w *Whisper) Name() string { return NameWhisper }

// Reset clears filter and envelope state. The noise generator is reseeded
// in place, so output is reproducible from a reset state and Reset stays
// allocation-free on the audio goroutine.
func (w *Whisper) Reset() {
	w.noiseSrc.Seed(whisperNoiseSeed)
	w.noiseFilter.Reset()
	w.dryFilter.Reset()
	w.envelope = 0
}

// ProcessInPlace whispers buf in place.
func (w *Whisper) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		level := x
		if level < 0 {
			level = -level
		}
		coeff := w.releaseCoeff
		if level > w.envelope {
			coeff = w.attackCoeff
		}
		w.envelope = level + coeff*(w.envelope-level)

		noise := w.noiseFilter.ProcessSample(w.rng.Float64()*2 - 1)
		dry := w.dryFilter.ProcessSample(x)

		buf[i] = noise*(w.envelope+whisperEnvelopeBias)*whisperNoiseGain + dry*whisperDryLevel
	}
}
