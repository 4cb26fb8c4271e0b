// Package pipeline composes the voice transformation stage chain for one
// audio session.
//
// A block travels: pitch shifter, formant shifter, the active profile's
// effects in declared order, emotion modulator, overshoot guard, watermark.
// Profile switches swap parameters and stage membership without tearing:
// stages shared between the old and new profile keep their state, so a
// switch mid-stream stays click-free.
package pipeline

import (
	"fmt"

	"github.com/cwbudde/voicemask/dsp/effects"
	"github.com/cwbudde/voicemask/internal/profile"
	"github.com/cwbudde/voicemask/internal/vecmath"
	"github.com/cwbudde/voicemask/internal/watermark"
)

const (
	minStageRatio = 0.25
	maxStageRatio = 4.0

	minFormantStageRatio = 0.5
	maxFormantStageRatio = 2.0
)

// Pipeline owns the stage chain. It is not safe for concurrent use; the
// session's audio goroutine is its only caller.
type Pipeline struct {
	sampleRate float64
	blockSize  int

	pitch   *effects.PitchShifter
	formant *effects.FormantShifter
	emotion *effects.EmotionModulator

	active *profile.Profile
	stages []effects.Stage
	pool   map[string]effects.Stage

	embedder *watermark.Embedder
}

// New creates a pipeline with the given watermark session key. The pipeline
// starts with no active profile and passes audio through unchanged apart
// from the watermark. Every registered effect is constructed up front, so a
// later profile switch selects stages without allocating on the audio
// goroutine.
func New(sampleRate float64, blockSize int, watermarkKey uint64) (*Pipeline, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("pipeline block size must be positive: %d", blockSize)
	}

	pitch, err := effects.NewPitchShifter(sampleRate)
	if err != nil {
		return nil, err
	}
	formant, err := effects.NewFormantShifter(sampleRate)
	if err != nil {
		return nil, err
	}
	emotion, err := effects.NewEmotionModulator(sampleRate)
	if err != nil {
		return nil, err
	}
	embedder, err := watermark.NewEmbedder(sampleRate, watermarkKey)
	if err != nil {
		return nil, err
	}

	names := effects.Names()
	pool := make(map[string]effects.Stage, len(names))
	for _, name := range names {
		stage, err := effects.NewStage(name, sampleRate)
		if err != nil {
			return nil, err
		}
		pool[name] = stage
	}

	return &Pipeline{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		pitch:      pitch,
		formant:    formant,
		emotion:    emotion,
		pool:       pool,
		stages:     make([]effects.Stage, 0, len(pool)),
		embedder:   embedder,
	}, nil
}

// Profile returns the active profile, or nil before the first switch.
func (p *Pipeline) Profile() *profile.Profile { return p.active }

// WatermarkState returns the sequence number of the next embedded block.
func (p *Pipeline) WatermarkState() uint64 { return p.embedder.State() }

// SetProfile activates a profile. Stages shared with the previous profile
// keep their internal state; stages leaving the chain are reset so a later
// return starts clean; stages entering the chain start from reset state.
func (p *Pipeline) SetProfile(prof *profile.Profile) error {
	if prof == nil {
		return fmt.Errorf("pipeline: nil profile")
	}
	if err := prof.Validate(); err != nil {
		return err
	}

	for _, stage := range p.stages {
		if !containsName(prof.Effects, stage.Name()) {
			stage.Reset()
		}
	}

	p.stages = p.stages[:0]
	for _, name := range prof.Effects {
		stage, ok := p.pool[name]
		if !ok {
			return fmt.Errorf("pipeline: unknown effect %q", name)
		}
		p.stages = append(p.stages, stage)
	}

	p.active = prof
	p.applyRatios()

	return nil
}

// SetEmotion updates the emotional coloring layered over the profile.
func (p *Pipeline) SetEmotion(emotion effects.Emotion, intensity float64) error {
	if err := p.emotion.SetEmotion(emotion, intensity); err != nil {
		return err
	}
	p.applyRatios()
	return nil
}

// Process transforms one block in place. The block length must equal the
// pipeline block size.
func (p *Pipeline) Process(block []float64) error {
	if len(block) != p.blockSize {
		return fmt.Errorf("pipeline: block length %d, want %d", len(block), p.blockSize)
	}

	// The emotion pitch factor moves with the modulator LFO, so the
	// spectral ratios are refreshed at every block boundary while engaged.
	if p.emotion.Engaged() {
		p.applyRatios()
	}

	p.pitch.ProcessInPlace(block)
	p.formant.ProcessInPlace(block)
	for _, stage := range p.stages {
		stage.ProcessInPlace(block)
	}
	p.emotion.ProcessInPlace(block)

	guardOvershoot(block)

	p.embedder.ProcessInPlace(block)

	return nil
}

// Reset clears all stage state and rewinds the watermark sequence without
// changing the active profile.
func (p *Pipeline) Reset() {
	p.pitch.Reset()
	p.formant.Reset()
	p.emotion.Reset()
	for _, stage := range p.pool {
		stage.Reset()
	}
	p.embedder.Reset()
}

// applyRatios folds the emotion factors into the profile ratios and pushes
// them into the spectral stages. Updates preserve stage state.
func (p *Pipeline) applyRatios() {
	pitchRatio := 1.0
	formantRatio := 1.0
	if p.active != nil {
		pitchRatio = p.active.PitchRatio
		formantRatio = p.active.FormantRatio
	}

	pitchRatio = clampRatio(pitchRatio*p.emotion.PitchFactor(), minStageRatio, maxStageRatio)
	formantRatio = clampRatio(formantRatio*p.emotion.FormantFactor(), minFormantStageRatio, maxFormantStageRatio)

	// Ranges are pre-clamped, so the setters cannot fail.
	_ = p.pitch.SetRatio(pitchRatio)
	_ = p.formant.SetRatio(formantRatio)
}

// guardOvershoot rescales the block when the stage stack exceeds full scale,
// then hard-limits any residue.
func guardOvershoot(block []float64) {
	peak := vecmath.MaxAbs(block)
	if peak > 1 {
		vecmath.ScaleBlock(block, block, 1/peak)
	}
	for i, v := range block {
		if v > 1 {
			block[i] = 1
		} else if v < -1 {
			block[i] = -1
		}
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func clampRatio(ratio, lo, hi float64) float64 {
	if ratio < lo {
		return lo
	}
	if ratio > hi {
		return hi
	}
	return ratio
}
