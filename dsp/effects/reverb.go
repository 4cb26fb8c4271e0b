package effects

import (
	"fmt"
	"math"
)

const (
	reverbFixedGain  = 0.015
	reverbScaleWet   = 3.0
	reverbScaleRoom  = 0.28
	reverbOffsetRoom = 0.7
	reverbScaleDamp  = 0.4
	reverbAllpassFbk = 0.5

	defaultReverbRoomSize = 0.5
	defaultReverbDamping  = 0.5
	defaultReverbWet      = 0.3

	reverbTuningRate = 44100.0
)

// Schroeder/Freeverb delay tunings in samples at 44.1 kHz. Rescaled at
// construction for other sample rates.
var (
	reverbCombTunings    = []int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	reverbAllpassTunings = []int{556, 441, 341, 225}
)

type reverbComb struct {
	buffer      []float64
	pos         int
	feedback    float64
	damp        float64
	filterStore float64
}

func (c *reverbComb) process(input float64) float64 {
	output := c.buffer[c.pos]
	c.filterStore = output*(1-c.damp) + c.filterStore*c.damp
	c.buffer[c.pos] = input + c.filterStore*c.feedback
	c.pos++
	if c.pos >= len(c.buffer) {
		c.pos = 0
	}
	return output
}

func (c *reverbComb) reset() {
	for i := range c.buffer {
		c.buffer[i] = 0
	}
	c.pos = 0
	c.filterStore = 0
}

type reverbAllpass struct {
	buffer []float64
	pos    int
}

func (a *reverbAllpass) process(input float64) float64 {
	bufout := a.buffer[a.pos]
	output := bufout - input
	a.buffer[a.pos] = input + bufout*reverbAllpassFbk
	a.pos++
	if a.pos >= len(a.buffer) {
		a.pos = 0
	}
	return output
}

func (a *reverbAllpass) reset() {
	for i := range a.buffer {
		a.buffer[i] = 0
	}
	a.pos = 0
}

// Reverb is a mono Schroeder reverberator with Freeverb tunings: eight
// parallel damped feedback combs into four serial all-pass diffusers.
type Reverb struct {
	sampleRate float64
	roomSize   float64
	damping    float64
	wet        float64

	combs     []reverbComb
	allpasses []reverbAllpass
}

// NewReverb creates a reverb with medium room settings.
func NewReverb(sampleRate float64) (*Reverb, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("reverb sample rate must be positive and finite: %f", sampleRate)
	}

	r := &Reverb{
		sampleRate: sampleRate,
		roomSize:   defaultReverbRoomSize,
		damping:    defaultReverbDamping,
		wet:        defaultReverbWet,
	}

	scale := sampleRate / reverbTuningRate
	r.combs = make([]reverbComb, len(reverbCombTunings))
	for i, tuning := range reverbCombTunings {
		size := int(math.Round(float64(tuning) * scale))
		if size < 1 {
			size = 1
		}
		r.combs[i].buffer = make([]float64, size)
	}

	r.allpasses = make([]reverbAllpass, len(reverbAllpassTunings))
	for i, tuning := range reverbAllpassTunings {
		size := int(math.Round(float64(tuning) * scale))
		if size < 1 {
			size = 1
		}
		r.allpasses[i].buffer = make([]float64, size)
	}

	r.updateCombs()

	return r, nil
}

// SampleRate returns the sample rate in Hz.
func (r *Reverb) SampleRate() float64 { return r.sampleRate }

// RoomSize returns the room size in [0, 1].
func (r *Reverb) RoomSize() float64 { return r.roomSize }

// Damping returns high-frequency damping in [0, 1].
func (r *Reverb) Damping() float64 { return r.damping }

// Wet returns the wet mix in [0, 1].
func (r *Reverb) Wet() float64 { return r.wet }

// SetRoomSize updates the comb feedback amount. size must be in [0, 1].
func (r *Reverb) SetRoomSize(size float64) error {
	if size < 0 || size > 1 || !isFinite(size) {
		return fmt.Errorf("reverb room size must be in [0, 1]: %f", size)
	}
	r.roomSize = size
	r.updateCombs()
	return nil
}

// SetDamping updates comb damping. damping must be in [0, 1].
func (r *Reverb) SetDamping(damping float64) error {
	if damping < 0 || damping > 1 || !isFinite(damping) {
		return fmt.Errorf("reverb damping must be in [0, 1]: %f", damping)
	}
	r.damping = damping
	r.updateCombs()
	return nil
}

// SetWet updates the wet mix. wet must be in [0, 1].
func (r *Reverb) SetWet(wet float64) error {
	if wet < 0 || wet > 1 || !isFinite(wet) {
		return fmt.Errorf("reverb wet must be in [0, 1]: %f", wet)
	}
	r.wet = wet
	return nil
}

// Name returns the registry name.
func (r *Reverb) Name() string { return NameReverb }

// Reset clears all comb and all-pass state.
func (r *Reverb) Reset() {
	for i := range r.combs {
		r.combs[i].reset()
	}
	for i := range r.allpasses {
		r.allpasses[i].reset()
	}
}

// ProcessInPlace mixes reverberated signal into buf in place.
func (r *Reverb) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		input := x * reverbFixedGain

		wet := 0.0
		for c := range r.combs {
			wet += r.combs[c].process(input)
		}
		for a := range r.allpasses {
			wet = r.allpasses[a].process(wet)
		}

		buf[i] = x*(1-r.wet) + wet*r.wet*reverbScaleWet
	}
}

func (r *Reverb) updateCombs() {
	feedback := r.roomSize*reverbScaleRoom + reverbOffsetRoom
	damp := r.damping * reverbScaleDamp
	for i := range r.combs {
		r.combs[i].feedback = feedback
		r.combs[i].damp = damp
	}
}
