// Package profile defines voice transformation profiles and their store.
package profile

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/effects"
)

// Sentinel errors returned by profile validation and store operations.
var (
	ErrInvalidParameters = errors.New("invalid profile parameters")
	ErrDuplicateID       = errors.New("duplicate profile id")
	ErrNotFound          = errors.New("profile not found")
)

// Profile describes one voice transformation. A published profile is
// immutable; changing a voice means registering a new profile or swapping
// the active reference.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`

	// PitchRatio scales the perceived fundamental; 1.0 is unchanged.
	PitchRatio float64 `json:"pitch_ratio"`
	// FormantRatio scales the spectral envelope; 1.0 is unchanged.
	FormantRatio float64 `json:"formant_ratio"`

	// Effects lists registry effect names applied in order after the
	// pitch and formant stages.
	Effects []string `json:"effects,omitempty"`

	// EmotionModifiers carries per-profile emotional trait intensities in
	// [0, 1]. They are descriptive metadata surfaced to clients; runtime
	// emotion coloring is driven through the session.
	EmotionModifiers map[string]float64 `json:"emotion_modifiers,omitempty"`
}

// Validate checks the profile against the store's invariants.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidParameters)
	}
	if p.DisplayName == "" {
		return fmt.Errorf("%w: profile %q has no display name", ErrInvalidParameters, p.ID)
	}
	if !isFinitePositive(p.PitchRatio) {
		return fmt.Errorf("%w: profile %q pitch ratio must be positive and finite: %f",
			ErrInvalidParameters, p.ID, p.PitchRatio)
	}
	if !isFinitePositive(p.FormantRatio) {
		return fmt.Errorf("%w: profile %q formant ratio must be positive and finite: %f",
			ErrInvalidParameters, p.ID, p.FormantRatio)
	}
	for _, name := range p.Effects {
		if !effects.KnownName(name) {
			return fmt.Errorf("%w: profile %q references unknown effect %q",
				ErrInvalidParameters, p.ID, name)
		}
	}
	for emotion, intensity := range p.EmotionModifiers {
		if intensity < 0 || intensity > 1 || math.IsNaN(intensity) {
			return fmt.Errorf("%w: profile %q emotion %q intensity must be in [0, 1]: %f",
				ErrInvalidParameters, p.ID, emotion, intensity)
		}
	}
	return nil
}

// clone deep-copies the profile so stored profiles cannot be mutated through
// caller-held slices or maps.
func (p *Profile) clone() *Profile {
	c := *p
	if p.Effects != nil {
		c.Effects = append([]string(nil), p.Effects...)
	}
	if p.EmotionModifiers != nil {
		c.EmotionModifiers = make(map[string]float64, len(p.EmotionModifiers))
		for k, v := range p.EmotionModifiers {
			c.EmotionModifiers[k] = v
		}
	}
	return &c
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
