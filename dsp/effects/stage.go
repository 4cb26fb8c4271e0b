// Package effects implements the block-oriented voice transformation stages.
//
// Every stage processes mono float64 blocks in place at a fixed sample rate,
// preserves block length, and allocates all state at construction. Stages
// are not safe for concurrent use; the pipeline serializes access.
package effects

import (
	"fmt"
	"math"
	"sort"
)

// Stage is the common contract for all block effects.
type Stage interface {
	// Name returns the stage's registry name.
	Name() string
	// ProcessInPlace transforms one block in place, preserving its length.
	ProcessInPlace(buf []float64)
	// Reset clears all internal state without changing parameters.
	Reset()
}

// Registry names for the profile-selectable effects. Pitch and formant
// shifting are pipeline fixtures, not registry entries.
const (
	NameVocoder     = "vocoder"
	NameReverb      = "reverb"
	NameEcho        = "echo"
	NameChorus      = "chorus"
	NameWhisper     = "whisper"
	NameTelephone   = "telephone"
	NameAlien       = "alien"
	NameTremolo     = "tremolo"
	NameDistortion  = "distortion"
	NameBrightness  = "brightness"
	NameCompression = "compression"
)

type stageFactory func(sampleRate float64) (Stage, error)

var stageFactories = map[string]stageFactory{
	NameVocoder:     func(sr float64) (Stage, error) { return NewVocoder(sr) },
	NameReverb:      func(sr float64) (Stage, error) { return NewReverb(sr) },
	NameEcho:        func(sr float64) (Stage, error) { return NewEcho(sr) },
	NameChorus:      func(sr float64) (Stage, error) { return NewChorus(sr) },
	NameWhisper:     func(sr float64) (Stage, error) { return NewWhisper(sr) },
	NameTelephone:   func(sr float64) (Stage, error) { return NewTelephone(sr) },
	NameAlien:       func(sr float64) (Stage, error) { return NewAlien(sr) },
	NameTremolo:     func(sr float64) (Stage, error) { return NewTremolo(sr) },
	NameDistortion:  func(sr float64) (Stage, error) { return NewDistortion(sr) },
	NameBrightness:  func(sr float64) (Stage, error) { return NewBrightness(sr) },
	NameCompression: func(sr float64) (Stage, error) { return NewCompression(sr) },
}

// KnownName reports whether name identifies a registered effect.
func KnownName(name string) bool {
	_, ok := stageFactories[name]
	return ok
}

// Names returns the registered effect names sorted alphabetically.
func Names() []string {
	names := make([]string, 0, len(stageFactories))
	for name := range stageFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStage constructs a registered effect by name.
func NewStage(name string, sampleRate float64) (Stage, error) {
	factory, ok := stageFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown effect name: %q", name)
	}
	return factory(sampleRate)
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func wrapPhase(phase float64) float64 {
	const tau = 2 * math.Pi
	phase = math.Mod(phase+math.Pi, tau)
	if phase < 0 {
		phase += tau
	}
	return phase - math.Pi
}
