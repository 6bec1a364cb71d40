package observe

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/sightline/pkg/adapter"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/repository"
	"github.com/m-mizutani/sightline/pkg/suggest"
)

type stubAnalyzer struct {
	raw map[string]any
	err error
}

func (x *stubAnalyzer) Analyze(ctx context.Context, capture *model.Capture) (map[string]any, error) {
	if x.err != nil {
		return nil, x.err
	}
	return x.raw, nil
}

func newTestJournal(t *testing.T) *repository.Journal {
	t.Helper()
	return repository.NewJournal(filepath.Join(t.TempDir(), "journal.json"))
}

func editorSource() adapter.Source {
	return &adapter.StaticSource{Capt: &model.Capture{
		Window: model.WindowContext{Title: "main.go - Visual Studio Code"},
	}}
}

func TestRunCycleRemote(t *testing.T) {
	ctx := context.Background()
	analyzer := &stubAnalyzer{raw: map[string]any{
		"app":         "chrome",
		"activity":    "browsing",
		"confidence":  0.9,
		"source_mode": "remote",
	}}

	uc := New(editorSource(), analyzer, newTestJournal(t))

	result, err := uc.RunCycle(ctx)
	gt.NoError(t, err)
	gt.Value(t, result.Observation.ID).Equal(int64(1))
	gt.Value(t, result.Observation.App).Equal("chrome")
	gt.Value(t, result.Observation.SourceMode).Equal(model.SourceModeRemote)
	gt.Value(t, result.Observation.Confidence).Equal(0.9)
	gt.NotNil(t, result.Suggestion)
}

func TestRunCycleFallsBackOnAnalyzerFailure(t *testing.T) {
	ctx := context.Background()
	analyzer := &stubAnalyzer{err: goerr.New("vision API unreachable")}

	uc := New(editorSource(), analyzer, newTestJournal(t))

	result, err := uc.RunCycle(ctx)
	gt.NoError(t, err)
	gt.Value(t, result.Observation.SourceMode).Equal(model.SourceModeFallback)
	gt.Value(t, result.Observation.App).Equal("vscode")
	gt.Value(t, result.Observation.Confidence).Equal(0.0)
}

func TestRunCycleWithoutAnalyzer(t *testing.T) {
	ctx := context.Background()
	uc := New(editorSource(), nil, newTestJournal(t))

	result, err := uc.RunCycle(ctx)
	gt.NoError(t, err)
	gt.Value(t, result.Observation.SourceMode).Equal(model.SourceModeFallback)
}

func TestRunCycleCaptureFailure(t *testing.T) {
	ctx := context.Background()
	source := &adapter.StaticSource{} // no capture configured

	uc := New(source, nil, newTestJournal(t))

	// The cycle still completes with a degraded observation
	result, err := uc.RunCycle(ctx)
	gt.NoError(t, err)
	gt.Value(t, result.Observation.App).Equal(model.Unknown)
	gt.Value(t, result.Observation.SourceMode).Equal(model.SourceModeFallback)
}

func TestRunCycleInProgress(t *testing.T) {
	ctx := context.Background()
	uc := New(editorSource(), nil, newTestJournal(t))

	uc.inFlight.Store(true)
	_, err := uc.RunCycle(ctx)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, ErrCycleInProgress))

	uc.inFlight.Store(false)
	_, err = uc.RunCycle(ctx)
	gt.NoError(t, err)
}

func TestRunCycleRecordsEvents(t *testing.T) {
	ctx := context.Background()
	events := repository.NewEventLog(filepath.Join(t.TempDir(), "events.json"))

	uc := New(editorSource(), nil, newTestJournal(t), WithEvents(events))

	_, err := uc.RunCycle(ctx)
	gt.NoError(t, err)

	gt.Value(t, events.Len()).Equal(1)
	ev := events.Recent(1)[0]
	gt.Value(t, ev.Type).Equal("observation")
	gt.Value(t, ev.Data["app"]).Equal("vscode")
}

func TestRunCycleStuckNudge(t *testing.T) {
	ctx := context.Background()
	uc := New(editorSource(), nil, newTestJournal(t))

	var last *CycleResult
	for i := 0; i < 3; i++ {
		result, err := uc.RunCycle(ctx)
		gt.NoError(t, err)
		last = result
	}

	// Three consecutive vscode observations trigger the same-app nudge
	gt.Value(t, last.Suggestion.Rule).Equal(suggest.RuleSameApp)
}
