package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/filter/biquad"
)

const (
	defaultVocoderCarrierHz = 200.0
	vocoderBandQ            = 4.0
	vocoderAttackMs         = 5.0
	vocoderReleaseMs        = 50.0
	vocoderMakeupGain       = 2.0
)

// Bark-style analysis band centers in Hz. Bands at or above Nyquist are
// dropped at construction.
var vocoderBandCenters = []float64{
	250, 350, 450, 570, 700, 840, 1000, 1170,
	1370, 1600, 1850, 2150, 2500, 2900, 3400, 4000,
}

type vocoderBand struct {
	analysis  biquad.Section
	synthesis biquad.Section
	envelope  float64
}

// Vocoder imposes the spectral envelope of the voice onto an internally
// generated square-wave carrier, producing the classic robot voice.
//
// Each band runs a band-pass analysis filter and an attack/release envelope
// follower on the input; the carrier passes a matching synthesis filter and
// is amplitude-modulated by the band envelope. Band outputs are summed.
type Vocoder struct {
	sampleRate float64
	carrierHz  float64

	bands        []vocoderBand
	attackCoeff  float64
	releaseCoeff float64

	carrierPhase float64
	carrierStep  float64
}

// NewVocoder creates a vocoder with a 200 Hz square carrier.
func NewVocoder(sampleRate float64) (*Vocoder, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("vocoder sample rate must be positive and finite: %f", sampleRate)
	}

	v := &Vocoder{
		sampleRate: sampleRate,
		carrierHz:  defaultVocoderCarrierHz,
	}
	v.attackCoeff = onePoleCoeff(vocoderAttackMs, sampleRate)
	v.releaseCoeff = onePoleCoeff(vocoderReleaseMs, sampleRate)
	v.carrierStep = v.carrierHz / sampleRate

	nyquist := sampleRate / 2
	for _, fc := range vocoderBandCenters {
		if fc >= nyquist {
			break
		}
		coeffs := biquad.BandpassCPG(fc, vocoderBandQ, sampleRate)
		band := vocoderBand{}
		band.analysis.Coefficients = coeffs
		band.synthesis.Coefficients = coeffs
		v.bands = append(v.bands, band)
	}
	if len(v.bands) == 0 {
		return nil, fmt.Errorf("vocoder: no usable bands below Nyquist (%f Hz)", nyquist)
	}

	return v, nil
}

// SampleRate returns the sample rate in Hz.
func (v *Vocoder) SampleRate() float64 { return v.sampleRate }

// CarrierHz returns the carrier frequency in Hz.
func (v *Vocoder) CarrierHz() float64 { return v.carrierHz }

// SetCarrierHz updates the carrier frequency. It must stay below Nyquist.
func (v *Vocoder) SetCarrierHz(freq float64) error {
	if !isFinitePositive(freq) || freq >= v.sampleRate/2 {
		return fmt.Errorf("vocoder carrier must be in (0, %f): %f", v.sampleRate/2, freq)
	}
	v.carrierHz = freq
	v.carrierStep = freq / v.sampleRate
	return nil
}

// Name returns the registry name.
func (v *Vocoder) Name() string { return NameVocoder }

// Reset clears filter, envelope, and carrier state.
func (v *Vocoder) Reset() {
	for i := range v.bands {
		v.bands[i].analysis.Reset()
		v.bands[i].synthesis.Reset()
		v.bands[i].envelope = 0
	}
	v.carrierPhase = 0
}

// ProcessInPlace replaces buf with the vocoded signal.
func (v *Vocoder) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		carrier := 1.0
		if v.carrierPhase >= 0.5 {
			carrier = -1.0
		}
		v.carrierPhase += v.carrierStep
		if v.carrierPhase >= 1 {
			v.carrierPhase -= 1
		}

		out := 0.0
		for b := range v.bands {
			band := &v.bands[b]

			level := math.Abs(band.analysis.ProcessSample(x))
			coeff := v.releaseCoeff
			if level > band.envelope {
				coeff = v.attackCoeff
			}
			band.envelope = level + coeff*(band.envelope-level)

			out += band.synthesis.ProcessSample(carrier) * band.envelope
		}

		buf[i] = out * vocoderMakeupGain
	}
}

// onePoleCoeff converts a time constant in milliseconds to a one-pole
// smoothing coefficient.
func onePoleCoeff(ms, sampleRate float64) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1 / (ms * 0.001 * sampleRate))
}
