package recall

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/m-mizutani/sightline/pkg/model"
)

// Weights controls the contribution of each similarity signal. The values
// are independent weights, not shares: signals that cannot be evaluated
// (unknown label, empty text) simply contribute nothing, so the maximum
// reachable score shrinks with them.
type Weights struct {
	App      float64
	Activity float64
	Text     float64
}

// DefaultWeights are untuned but stable defaults carried over from the
// original heuristic.
func DefaultWeights() Weights {
	return Weights{App: 0.4, Activity: 0.3, Text: 0.3}
}

// Score computes similarity between two observations in [0, 1] plus a short
// rationale naming the signals that fired. Pure and symmetric: neither
// observation is mutated and Score(a, b) == Score(b, a).
func Score(a, b *model.Observation, w Weights) (float64, string) {
	if a == nil || b == nil {
		return 0, "no observation"
	}

	var score float64
	var reasons []string

	if a.App != model.Unknown && b.App != model.Unknown && strings.EqualFold(a.App, b.App) {
		score += w.App
		reasons = append(reasons, "same app: "+a.App)
	}

	if a.Activity != model.Unknown && b.Activity != model.Unknown && strings.EqualFold(a.Activity, b.Activity) {
		score += w.Activity
		reasons = append(reasons, "same activity: "+a.Activity)
	}

	if a.SuggestionText != "" && b.SuggestionText != "" {
		ratio := textRatio(strings.ToLower(a.SuggestionText), strings.ToLower(b.SuggestionText))
		score += w.Text * ratio
		if ratio > 0 {
			reasons = append(reasons, fmt.Sprintf("text similarity %.2f", ratio))
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	if len(reasons) == 0 {
		return score, "no shared signals"
	}
	return score, strings.Join(reasons, ", ")
}

// textRatio is a normalized edit-distance similarity in [0, 1]: 1 for equal
// strings, approaching 0 as they diverge.
func textRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := 1 - float64(dist)/float64(longest)
	if ratio < 0 {
		return 0
	}
	return ratio
}
