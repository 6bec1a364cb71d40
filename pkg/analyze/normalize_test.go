package analyze_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/sightline/pkg/analyze"
	"github.com/m-mizutani/sightline/pkg/model"
)

func TestNormalizeDefaults(t *testing.T) {
	obs := analyze.Normalize(map[string]any{})

	gt.Value(t, obs.App).Equal(model.Unknown)
	gt.Value(t, obs.Activity).Equal(model.Unknown)
	gt.Value(t, obs.Confidence).Equal(0.0)
	gt.Value(t, obs.SourceMode).Equal(model.SourceModeUnknown)
	gt.Value(t, obs.SuggestionText).Equal("")
	gt.Array(t, obs.Errors).Length(0)
}

func TestNormalizeFields(t *testing.T) {
	obs := analyze.Normalize(map[string]any{
		"app":         "Chrome",
		"activity":    "File Management",
		"confidence":  0.85,
		"errors":      []any{"404 not found", "timeout"},
		"suggestion":  "check the URL",
		"source_mode": "remote",
	})

	gt.Value(t, obs.App).Equal("chrome")
	gt.Value(t, obs.Activity).Equal("file_management")
	gt.Value(t, obs.Confidence).Equal(0.85)
	gt.Value(t, obs.SourceMode).Equal(model.SourceModeRemote)
	gt.Value(t, obs.SuggestionText).Equal("check the URL")
	gt.Array(t, obs.Errors).Length(2)
}

func TestNormalizeAliasKeys(t *testing.T) {
	obs := analyze.Normalize(map[string]any{
		"app_detected":     "VS Code",
		"primary_activity": "coding",
		"confidence_score": 0.6,
		"potential_errors": []any{"undefined variable"},
	})

	gt.Value(t, obs.App).Equal("vscode")
	gt.Value(t, obs.Activity).Equal("coding")
	gt.Value(t, obs.Confidence).Equal(0.6)
	gt.Array(t, obs.Errors).Length(1)
}

func TestNormalizeAppCanonical(t *testing.T) {
	cases := map[string]string{
		"Visual Studio Code": "vscode",
		"Visual Studio":      "visual_studio",
		"cmd.exe":            "command_prompt",
		"Windows PowerShell": "powershell",
		"Firefox":            "firefox",
	}
	for input, want := range cases {
		obs := analyze.Normalize(map[string]any{"app": input})
		gt.Value(t, obs.App).Equal(want)
	}
}

func TestNormalizeConfidenceOutOfRange(t *testing.T) {
	for _, v := range []any{1.5, -0.1, "high", nil} {
		obs := analyze.Normalize(map[string]any{"confidence": v})
		gt.Value(t, obs.Confidence).Equal(0.0)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first := analyze.Normalize(map[string]any{
		"app":         "Visual Studio Code",
		"activity":    "Debugging",
		"confidence":  0.7,
		"errors":      []any{"null pointer"},
		"suggestion":  "add a nil check",
		"source_mode": "remote",
	})
	second := analyze.Normalize(first.Raw())

	gt.Value(t, second.App).Equal(first.App)
	gt.Value(t, second.Activity).Equal(first.Activity)
	gt.Value(t, second.Confidence).Equal(first.Confidence)
	gt.Value(t, second.SourceMode).Equal(first.SourceMode)
	gt.Value(t, second.SuggestionText).Equal(first.SuggestionText)
	gt.Value(t, second.Errors).Equal(first.Errors)
}

func TestParseVisionResponse(t *testing.T) {
	t.Run("bare JSON", func(t *testing.T) {
		raw, err := analyze.ParseVisionResponseForTest(`{"app": "chrome", "confidence": 0.9}`)
		gt.NoError(t, err)
		gt.Value(t, raw["app"]).Equal("chrome")
	})

	t.Run("fenced JSON", func(t *testing.T) {
		raw, err := analyze.ParseVisionResponseForTest("```json\n{\"app\": \"vscode\"}\n```")
		gt.NoError(t, err)
		gt.Value(t, raw["app"]).Equal("vscode")
	})

	t.Run("JSON with leading prose", func(t *testing.T) {
		raw, err := analyze.ParseVisionResponseForTest(`Here is the result: {"app": "terminal"}`)
		gt.NoError(t, err)
		gt.Value(t, raw["app"]).Equal("terminal")
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := analyze.ParseVisionResponseForTest("I could not analyze this image")
		gt.Error(t, err)
	})
}

func TestFallbackAnalyzer(t *testing.T) {
	ctx := context.Background()
	fallback := analyze.NewFallback()

	t.Run("editor title", func(t *testing.T) {
		raw, err := fallback.Analyze(ctx, &model.Capture{
			Window: model.WindowContext{Title: "main.go - Visual Studio Code"},
		})
		gt.NoError(t, err)
		gt.Value(t, raw["app"]).Equal("vscode")
		gt.Value(t, raw["activity"]).Equal("coding")
		gt.Value(t, raw["source_mode"]).Equal("fallback")

		// Confidence is omitted so normalization yields 0.0
		_, hasConfidence := raw["confidence"]
		gt.False(t, hasConfidence)

		obs := analyze.Normalize(raw)
		gt.Value(t, obs.Confidence).Equal(0.0)
		gt.Value(t, obs.SourceMode).Equal(model.SourceModeFallback)
	})

	t.Run("app hint only", func(t *testing.T) {
		raw, err := fallback.Analyze(ctx, &model.Capture{
			Window: model.WindowContext{AppHint: "slack"},
		})
		gt.NoError(t, err)
		gt.Value(t, raw["app"]).Equal("slack")
		gt.Value(t, raw["activity"]).Equal("chatting")
	})

	t.Run("no context", func(t *testing.T) {
		raw, err := fallback.Analyze(ctx, &model.Capture{})
		gt.NoError(t, err)
		gt.Value(t, raw["app"]).Equal(model.Unknown)
		gt.Value(t, raw["activity"]).Equal(model.Unknown)
	})
}
