package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/delay"
)

const (
	chorusDepthMs    = 2.0
	defaultChorusWet = 0.5
	maxChorusDelayMs = 40.0
)

// Per-voice base delays in milliseconds and LFO rates in Hz. The rate spread
// keeps the voices from pumping in unison.
var (
	chorusVoiceDelaysMs = []float64{10, 15, 20}
	chorusVoiceRatesHz  = []float64{1.1, 1.5, 1.9}
)

type chorusVoice struct {
	baseDelay float64 // samples
	depth     float64 // samples
	step      float64 // LFO phase increment per sample
	phase     float64
}

// Chorus thickens the voice with three LFO-modulated delay taps summed onto
// the dry signal.
type Chorus struct {
	sampleRate float64
	wet        float64

	line   *delay.Line
	voices []chorusVoice
}

// NewChorus creates a three-voice chorus.
func NewChorus(sampleRate float64) (*Chorus, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("chorus sample rate must be positive and finite: %f", sampleRate)
	}

	maxSamples := int(math.Ceil(maxChorusDelayMs/1000*sampleRate)) + 8
	line, err := delay.New(maxSamples)
	if err != nil {
		return nil, fmt.Errorf("chorus: %w", err)
	}

	c := &Chorus{
		sampleRate: sampleRate,
		wet:        defaultChorusWet,
		line:       line,
		voices:     make([]chorusVoice, len(chorusVoiceDelaysMs)),
	}
	for i := range c.voices {
		c.voices[i] = chorusVoice{
			baseDelay: chorusVoiceDelaysMs[i] / 1000 * sampleRate,
			depth:     chorusDepthMs / 1000 * sampleRate,
			step:      2 * math.Pi * chorusVoiceRatesHz[i] / sampleRate,
		}
	}

	return c, nil
}

// SampleRate returns the sample rate in Hz.
func (c *Chorus) SampleRate() float64 { return c.sampleRate }

// Wet returns the wet mix in [0, 1].
func (c *Chorus) Wet() float64 { return c.wet }

// SetWet updates the wet mix. wet must be in [0, 1].
func (c *Chorus) SetWet(wet float64) error {
	if wet < 0 || wet > 1 || !isFinite(wet) {
		return fmt.Errorf("chorus wet must be in [0, 1]: %f", wet)
	}
	c.wet = wet
	return nil
}

// Name returns the registry name.
func (c *Chorus) Name() string { return NameChorus }

// Reset clears the delay line and LFO phases.
func (c *Chorus) Reset() {
	c.line.Reset()
	for i := range c.voices {
		c.voices[i].phase = 0
	}
}

// ProcessInPlace applies the chorus to buf in place.
func (c *Chorus) ProcessInPlace(buf []float64) {
	voiceGain := c.wet / float64(len(c.voices))

	for i, x := range buf {
		c.line.Write(x)

		wet := 0.0
		for v := range c.voices {
			voice := &c.voices[v]
			d := voice.baseDelay + voice.depth*math.Sin(voice.phase)
			voice.phase += voice.step
			if voice.phase >= 2*math.Pi {
				voice.phase -= 2 * math.Pi
			}
			wet += c.line.ReadFractional(d)
		}

		buf[i] = x*(1-c.wet) + wet*voiceGain
	}
}
