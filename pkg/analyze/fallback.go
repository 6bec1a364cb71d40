package analyze

import (
	"context"
	"strings"

	"github.com/m-mizutani/sightline/pkg/model"
)

// Window title keywords used when the remote analyzer is unavailable. The
// tables are ordered; the first match wins.
var fallbackApps = []struct {
	app      string
	activity string
	keywords []string
}{
	{"vscode", "coding", []string{"visual studio code", "vs code", "vscode"}},
	{"visual_studio", "coding", []string{"visual studio"}},
	{"pycharm", "coding", []string{"pycharm", "jetbrains"}},
	{"chrome", "browsing", []string{"chrome"}},
	{"firefox", "browsing", []string{"firefox", "mozilla"}},
	{"edge", "browsing", []string{"edge"}},
	{"terminal", "system_admin", []string{"terminal", "bash", "zsh"}},
	{"powershell", "system_admin", []string{"powershell"}},
	{"command_prompt", "system_admin", []string{"cmd", "command prompt"}},
	{"file_explorer", "file_management", []string{"explorer"}},
	{"slack", "chatting", []string{"slack"}},
	{"discord", "chatting", []string{"discord"}},
	{"teams", "chatting", []string{"teams"}},
	{"word", "writing", []string{"word"}},
	{"excel", "reading", []string{"excel", "spreadsheet"}},
	{"notepad", "writing", []string{"notepad"}},
	{"spotify", "unknown", []string{"spotify"}},
}

// FallbackAnalyzer guesses app and activity from window context alone. It is
// used when the remote analyzer is unavailable or fails, and never errors.
// Confidence is deliberately left out of the result so that normalization
// yields 0.0, keeping fallback data visually distinguishable from real
// low-confidence remote analysis.
type FallbackAnalyzer struct{}

// NewFallback creates a fallback analyzer.
func NewFallback() *FallbackAnalyzer {
	return &FallbackAnalyzer{}
}

func (x *FallbackAnalyzer) Analyze(ctx context.Context, capture *model.Capture) (map[string]any, error) {
	app, activity := model.Unknown, model.Unknown
	var hints []string
	if capture != nil {
		if capture.Window.Title != "" {
			hints = append(hints, capture.Window.Title)
		}
		if capture.Window.AppHint != "" {
			hints = append(hints, capture.Window.AppHint)
		}
	}

	if len(hints) > 0 {
		app, activity = guessFromTitle(strings.Join(hints, " "))
	}

	return map[string]any{
		"app":         app,
		"activity":    activity,
		"suggestion":  "",
		"source_mode": string(model.SourceModeFallback),
	}, nil
}

func guessFromTitle(title string) (app, activity string) {
	lower := strings.ToLower(title)
	for _, entry := range fallbackApps {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.app, entry.activity
			}
		}
	}
	return model.Unknown, model.Unknown
}
