package model

import (
	"time"
)

// SourceMode tags the provenance of an observation. It is used for
// diagnostics only and never participates in similarity scoring.
type SourceMode string

const (
	SourceModeRemote   SourceMode = "remote"
	SourceModeFallback SourceMode = "fallback"
	SourceModeUnknown  SourceMode = "unknown"
)

// Unknown is the default categorical label for app and activity.
const Unknown = "unknown"

// Observation is one normalized record of what the screen appeared to show
// at a point in time. ID and Timestamp are assigned by the journal at append
// time; all other fields are set by the normalizer and immutable afterwards.
type Observation struct {
	ID             int64      `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	App            string     `json:"app"`
	Activity       string     `json:"activity"`
	Confidence     float64    `json:"confidence"`
	Errors         []string   `json:"errors,omitempty"`
	SuggestionText string     `json:"suggestion_text,omitempty"`
	SourceMode     SourceMode `json:"source_mode"`
}

// Raw converts the observation back into the loose mapping form consumed by
// the normalizer. Normalizing the result reproduces the observation.
func (x *Observation) Raw() map[string]any {
	raw := map[string]any{
		"app":         x.App,
		"activity":    x.Activity,
		"confidence":  x.Confidence,
		"suggestion":  x.SuggestionText,
		"source_mode": string(x.SourceMode),
	}
	if !x.Timestamp.IsZero() {
		raw["timestamp"] = x.Timestamp.Format(time.RFC3339Nano)
	}
	if len(x.Errors) > 0 {
		errs := make([]any, len(x.Errors))
		for i, e := range x.Errors {
			errs[i] = e
		}
		raw["errors"] = errs
	}
	return raw
}

// SimilarityResult pairs a past observation with its similarity score against
// the query observation. The referenced observation is never mutated.
type SimilarityResult struct {
	Score       float64
	Observation *Observation
	Rationale   string
}
