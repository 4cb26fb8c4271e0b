package profile

// DefaultID is the profile every new session starts with unless overridden.
const DefaultID = "original"

// builtinProfiles returns the ten stock voices. The ids, display names, and
// shift ratios are a fixed external contract; client integrations select
// voices by these ids.
func builtinProfiles() []Profile {
	return []Profile{
		{
			ID:          "original",
			DisplayName: "Original Voice",
			Description: "No transformation applied",
			PitchRatio:  1.0, FormantRatio: 1.0,
		},
		{
			ID:          "deep-male",
			DisplayName: "Deep Male Voice",
			Description: "Transform to a deeper male voice",
			PitchRatio:  0.7, FormantRatio: 0.85,
			EmotionModifiers: map[string]float64{"confidence": 0.6, "authority": 0.65},
		},
		{
			ID:          "high-female",
			DisplayName: "High Female Voice",
			Description: "Transform to a higher female voice",
			PitchRatio:  1.4, FormantRatio: 1.15,
			EmotionModifiers: map[string]float64{"friendliness": 0.6, "enthusiasm": 0.55},
		},
		{
			ID:          "child",
			DisplayName: "Child Voice",
			Description: "Transform to sound like a child",
			PitchRatio:  1.6, FormantRatio: 1.25,
			Effects:          []string{"brightness"},
			EmotionModifiers: map[string]float64{"playfulness": 0.75, "innocence": 0.65},
		},
		{
			ID:          "elderly",
			DisplayName: "Elderly Voice",
			Description: "Transform to sound like an elderly person",
			PitchRatio:  0.9, FormantRatio: 0.95,
			Effects:          []string{"tremolo"},
			EmotionModifiers: map[string]float64{"wisdom": 0.65, "calmness": 0.6},
		},
		{
			ID:          "robot",
			DisplayName: "Robot Voice",
			Description: "Robotic voice transformation",
			PitchRatio:  1.0, FormantRatio: 1.0,
			Effects:          []string{"vocoder"},
			EmotionModifiers: map[string]float64{"monotone": 1.0},
		},
		{
			ID:          "alien",
			DisplayName: "Alien Voice",
			Description: "Otherworldly alien voice",
			PitchRatio:  1.2, FormantRatio: 1.3,
			Effects:          []string{"alien"},
			EmotionModifiers: map[string]float64{"mystery": 0.75, "otherworldly": 1.0},
		},
		{
			ID:          "monster",
			DisplayName: "Monster Voice",
			Description: "Scary monster voice",
			PitchRatio:  0.6, FormantRatio: 0.8,
			Effects:          []string{"distortion"},
			EmotionModifiers: map[string]float64{"intimidation": 1.0, "fear": 0.9},
		},
		{
			ID:          "whisper",
			DisplayName: "Whisper Voice",
			Description: "Soft whisper transformation",
			PitchRatio:  0.95, FormantRatio: 1.05,
			Effects:          []string{"whisper"},
			EmotionModifiers: map[string]float64{"intimacy": 0.75, "secrecy": 0.65},
		},
		{
			ID:          "radio-announcer",
			DisplayName: "Radio Announcer",
			Description: "Professional radio announcer voice",
			PitchRatio:  0.85, FormantRatio: 0.9,
			Effects:          []string{"compression", "brightness"},
			EmotionModifiers: map[string]float64{"professionalism": 0.75, "clarity": 0.7},
		},
	}
}
