package analyze

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/adapter"
	"github.com/m-mizutani/sightline/pkg/model"
	"google.golang.org/genai"
)

const visionPrompt = `Analyze this developer screenshot. Return ONLY valid JSON, no other text.

JSON format:
{
  "app": "app_name",
  "activity": "activity_description",
  "confidence": 0.0-1.0,
  "errors": ["visible error messages or issues, empty if none"],
  "suggestion": "brief suggestion"
}

App options: vscode, visual_studio, pycharm, chrome, firefox, edge, terminal,
command_prompt, powershell, file_explorer, notepad, word, excel, slack,
discord, teams, spotify, unknown

Activity options: coding, debugging, browsing, reading, writing, chatting,
presenting, file_management, system_admin, gaming, unknown

Look for: IDE windows, browser tabs, terminal text, error messages, code.`

// RemoteAnalyzer asks Gemini to describe the captured screen.
type RemoteAnalyzer struct {
	gemini adapter.Gemini
}

// NewRemote creates an analyzer backed by the Gemini adapter.
func NewRemote(gemini adapter.Gemini) *RemoteAnalyzer {
	return &RemoteAnalyzer{gemini: gemini}
}

// Analyze sends the capture image with window context to Gemini and returns
// the decoded response mapping. Any transport or parse failure is a declared
// error; the caller is expected to degrade to the fallback analyzer.
func (x *RemoteAnalyzer) Analyze(ctx context.Context, capture *model.Capture) (map[string]any, error) {
	if capture == nil || len(capture.Image) == 0 {
		return nil, goerr.New("no image to analyze")
	}

	prompt := visionPrompt
	if capture.Window.Title != "" {
		prompt = "Window context: " + capture.Window.Title + "\n\n" + prompt
	}

	mimeType := capture.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: capture.Image}},
		},
	}}

	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  512,
		ResponseMIMEType: "application/json",
	}

	resp, err := x.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content")
	}

	text := responseText(resp)
	if text == "" {
		return nil, goerr.New("empty response from vision model")
	}

	raw, err := parseVisionResponse(text)
	if err != nil {
		return nil, err
	}

	if _, ok := raw["source_mode"]; !ok {
		raw["source_mode"] = string(model.SourceModeRemote)
	}
	return raw, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// parseVisionResponse extracts the JSON object from the model output. The
// model is asked for bare JSON but sometimes wraps it in markdown fences or
// leading prose, so the object boundaries are located explicitly.
func parseVisionResponse(text string) (map[string]any, error) {
	cleaned := stripCodeFences(text)

	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return nil, goerr.New("no JSON object in response", goerr.V("response", truncate(cleaned, 100)))
	}
	end := strings.LastIndexByte(cleaned, '}')
	if end < start {
		return nil, goerr.New("unterminated JSON object in response", goerr.V("response", truncate(cleaned, 100)))
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to parse vision response", goerr.V("response", truncate(cleaned, 100)))
	}
	return raw, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language identifier line (e.g. "json")
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParseVisionResponseForTest exposes parseVisionResponse for tests.
func ParseVisionResponseForTest(text string) (map[string]any, error) {
	return parseVisionResponse(text)
}
