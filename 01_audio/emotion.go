package audio

import "strings"

// settingsFor nudges the configured voice settings by segment emotion. Lower
// stability gives a more expressive read.
func settingsFor(emotion string, stability, similarity float64) voiceSettings {
	vs := voiceSettings{Stability: stability, SimilarityBoost: similarity}
	switch strings.ToLower(strings.TrimSpace(emotion)) {
	case "excited", "hype", "energetic":
		vs.Stability = clamp01(stability - 0.2)
		vs.Style = 0.45
		vs.UseSpeakerBoost = true
	case "dramatic", "tense", "suspense":
		vs.Stability = clamp01(stability - 0.15)
		vs.Style = 0.35
	case "serious", "somber", "sad":
		vs.Stability = clamp01(stability + 0.15)
		vs.Style = 0.1
	case "calm", "reflective":
		vs.Stability = clamp01(stability + 0.25)
	}
	return vs
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
