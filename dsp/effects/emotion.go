package effects

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/voicemask/dsp/filter/biquad"
)

// Emotion identifies an emotional coloring applied on top of a profile.
type Emotion string

// Supported emotions. EmotionNeutral disables the modulator.
const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappiness Emotion = "happiness"
	EmotionSadness   Emotion = "sadness"
	EmotionAnger     Emotion = "anger"
	EmotionFear      Emotion = "fear"
)

const (
	happinessPitchSpread = 0.1
	happinessVibratoHz   = 5.0
	happinessVibrato     = 0.02
	happinessShelfDB     = 3.0

	sadnessPitchSpread = -0.15
	sadnessTremoloHz   = 3.0
	sadnessTremolo     = 0.1
	sadnessShelfDB     = -4.0

	angerDriveSpread = 0.1
	angerRoughnessHz = 30.0
	angerRoughness   = 0.05
	angerShelfDB     = 3.0

	fearPitchSpread = 0.2
	fearPitchJitter = 0.05
	fearTrembleHz   = 8.0
	fearTremble     = 0.15
	fearNoise       = 0.02

	emotionShelfFreqHz = 2500.0
	emotionNoiseSeed   = 7
)

// EmotionModulator layers emotional coloring over the profile chain.
//
// The pitch adjustment is not applied here: the modulator exposes
// PitchFactor and FormantFactor multipliers that the pipeline folds into the
// profile ratios, so the expensive spectral stages run once. Only
// amplitude-domain work (modulation, saturation, spectral tilt, breath
// noise) happens in ProcessInPlace.
type EmotionModulator struct {
	sampleRate float64
	emotion    Emotion
	intensity  float64

	lfoPhase float64
	lfoStep  float64
	noiseSrc rand.Source
	rng      *rand.Rand
	shelf    biquad.Section
	useShelf bool
}

// NewEmotionModulator creates a neutral modulator.
func NewEmotionModulator(sampleRate float64) (*EmotionModulator, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("emotion modulator sample rate must be positive and finite: %f", sampleRate)
	}

	noiseSrc := rand.NewSource(emotionNoiseSeed)
	return &EmotionModulator{
		sampleRate: sampleRate,
		emotion:    EmotionNeutral,
		noiseSrc:   noiseSrc,
		rng:        rand.New(noiseSrc),
	}, nil
}

// SampleRate returns the sample rate in Hz.
func (m *EmotionModulator) SampleRate() float64 { return m.sampleRate }

// Emotion returns the current emotion.
func (m *EmotionModulator) Emotion() Emotion { return m.emotion }

// Intensity returns the current intensity in [0, 1].
func (m *EmotionModulator) Intensity() float64 { return m.intensity }

// SetEmotion updates the emotion and intensity. Intensity must be in [0, 1];
// zero intensity makes any emotion a no-op.
func (m *EmotionModulator) SetEmotion(emotion Emotion, intensity float64) error {
	switch emotion {
	case EmotionNeutral, EmotionHappiness, EmotionSadness, EmotionAnger, EmotionFear:
	default:
		return fmt.Errorf("unknown emotion: %q", emotion)
	}
	if intensity < 0 || intensity > 1 || !isFinite(intensity) {
		return fmt.Errorf("emotion intensity must be in [0, 1]: %f", intensity)
	}

	m.emotion = emotion
	m.intensity = intensity
	m.lfoPhase = 0
	m.lfoStep = 2 * math.Pi * m.lfoRate() / m.sampleRate
	m.rebuildShelf()

	return nil
}

// PitchFactor returns the multiplier the pipeline applies to the profile
// pitch ratio. Fear is time-varying: the tremble LFO jitters the factor
// around the raised base, so callers re-poll it every block while the
// modulator is engaged.
func (m *EmotionModulator) PitchFactor() float64 {
	if !m.engaged() {
		return 1
	}
	switch m.emotion {
	case EmotionHappiness:
		return 1 + happinessPitchSpread*m.intensity
	case EmotionSadness:
		return 1 + sadnessPitchSpread*m.intensity
	case EmotionFear:
		return 1 + m.intensity*(fearPitchSpread+fearPitchJitter*math.Sin(m.lfoPhase))
	default:
		return 1
	}
}

// Engaged reports whether the modulator currently colors the signal.
func (m *EmotionModulator) Engaged() bool { return m.engaged() }

// FormantFactor returns the multiplier the pipeline applies to the profile
// formant ratio. Emotional coloring currently moves pitch only; the hook
// keeps the pipeline contract to a single multiplier pair.
func (m *EmotionModulator) FormantFactor() float64 {
	return 1
}

// Name identifies the stage in logs and pipeline introspection.
func (m *EmotionModulator) Name() string { return "emotion" }

// Reset clears LFO, noise, and filter state without allocating.
func (m *EmotionModulator) Reset() {
	m.lfoPhase = 0
	m.noiseSrc.Seed(emotionNoiseSeed)
	m.shelf.Reset()
}

// ProcessInPlace applies the amplitude-domain emotional coloring.
func (m *EmotionModulator) ProcessInPlace(buf []float64) {
	if !m.engaged() {
		return
	}

	switch m.emotion {
	case EmotionHappiness:
		m.modulate(buf, happinessVibrato*m.intensity)
	case EmotionSadness:
		m.modulate(buf, sadnessTremolo*m.intensity)
	case EmotionAnger:
		drive := 1 + angerDriveSpread*m.intensity
		norm := math.Tanh(drive)
		for i, x := range buf {
			buf[i] = math.Tanh(x*drive) / norm
		}
		m.modulate(buf, angerRoughness*m.intensity)
	case EmotionFear:
		m.modulate(buf, fearTremble*m.intensity)
		noiseAmp := fearNoise * m.intensity
		for i := range buf {
			buf[i] += (m.rng.Float64()*2 - 1) * noiseAmp
		}
	}

	if m.useShelf {
		m.shelf.ProcessBlock(buf)
	}
}

func (m *EmotionModulator) engaged() bool {
	return m.emotion != EmotionNeutral && m.intensity > 0
}

// modulate applies sinusoidal amplitude modulation centered on unity gain.
func (m *EmotionModulator) modulate(buf []float64, depth float64) {
	if depth <= 0 {
		return
	}
	for i := range buf {
		buf[i] *= 1 + depth*math.Sin(m.lfoPhase)
		m.lfoPhase += m.lfoStep
		if m.lfoPhase >= 2*math.Pi {
			m.lfoPhase -= 2 * math.Pi
		}
	}
}

func (m *EmotionModulator) lfoRate() float64 {
	switch m.emotion {
	case EmotionHappiness:
		return happinessVibratoHz
	case EmotionSadness:
		return sadnessTremoloHz
	case EmotionAnger:
		return angerRoughnessHz
	case EmotionFear:
		return fearTrembleHz
	default:
		return 0
	}
}

func (m *EmotionModulator) rebuildShelf() {
	m.useShelf = false
	m.shelf.Reset()

	if !m.engaged() {
		return
	}

	var gainDB float64
	switch m.emotion {
	case EmotionHappiness:
		gainDB = happinessShelfDB * m.intensity
	case EmotionSadness:
		gainDB = sadnessShelfDB * m.intensity
	case EmotionAnger:
		gainDB = angerShelfDB * m.intensity
	default:
		return
	}

	m.shelf.Coefficients = biquad.HighShelf(emotionShelfFreqHz, gainDB, m.sampleRate)
	m.useShelf = true
}
