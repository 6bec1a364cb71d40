package analyze

import (
	"strings"
	"time"

	"github.com/m-mizutani/sightline/pkg/model"
)

// Field aliases accepted from vision responses. The remote model is asked for
// the canonical keys, but older prompts and fallback paths used the longer
// spellings, so both are honored.
var (
	appKeys        = []string{"app", "app_detected"}
	activityKeys   = []string{"activity", "primary_activity"}
	confidenceKeys = []string{"confidence", "confidence_score"}
	suggestionKeys = []string{"suggestion", "suggestion_text"}
	errorsKeys     = []string{"errors", "potential_errors"}
	modeKeys       = []string{"source_mode", "mode"}
)

// Normalize converts a raw analyzer response of arbitrary shape into a
// well-formed observation. Missing, wrong-typed, or out-of-range values fall
// back to documented defaults; the function never fails. It is pure and
// idempotent: normalizing an observation's Raw() form reproduces it.
func Normalize(raw map[string]any) *model.Observation {
	obs := &model.Observation{
		App:            model.Unknown,
		Activity:       model.Unknown,
		Confidence:     0.0,
		SourceMode:     model.SourceModeUnknown,
		Timestamp:      timeField(raw, "timestamp"),
		SuggestionText: stringField(raw, suggestionKeys),
		Errors:         stringsField(raw, errorsKeys),
	}

	if app := stringField(raw, appKeys); app != "" {
		obs.App = canonicalizeApp(app)
	}
	if activity := stringField(raw, activityKeys); activity != "" {
		obs.Activity = canonicalizeLabel(activity)
	}
	if mode := stringField(raw, modeKeys); mode != "" {
		obs.SourceMode = model.SourceMode(canonicalizeLabel(mode))
	}

	// Out-of-range confidence is treated the same as missing.
	if v, ok := floatField(raw, confidenceKeys); ok && v >= 0.0 && v <= 1.0 {
		obs.Confidence = v
	}

	return obs
}

// canonicalizeLabel lowercases a categorical value and joins words with
// underscores so that "File Management" and "file_management" compare equal.
func canonicalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}

// canonicalizeApp folds common vendor spellings into one label per app.
func canonicalizeApp(s string) string {
	app := canonicalizeLabel(s)
	switch {
	case strings.Contains(app, "vscode"), strings.Contains(app, "vs_code"):
		return "vscode"
	case strings.Contains(app, "visual") && strings.Contains(app, "studio") && strings.Contains(app, "code"):
		return "vscode"
	case strings.Contains(app, "visual") && strings.Contains(app, "studio"):
		return "visual_studio"
	case strings.Contains(app, "command") || strings.Contains(app, "cmd"):
		return "command_prompt"
	case strings.Contains(app, "power") && strings.Contains(app, "shell"):
		return "powershell"
	default:
		return app
	}
}

func stringField(raw map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func floatField(raw map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

func stringsField(raw map[string]any, keys []string) []string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case []string:
			if len(v) == 0 {
				continue
			}
			out := make([]string, len(v))
			copy(out, v)
			return out
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func timeField(raw map[string]any, key string) time.Time {
	switch v := raw[key].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
	case float64:
		sec := int64(v)
		nsec := int64((v - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec)
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}
