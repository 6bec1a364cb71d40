package repository_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/repository"
)

func newObs(app, activity string) *model.Observation {
	return &model.Observation{
		App:        app,
		Activity:   activity,
		Confidence: 0.8,
		SourceMode: model.SourceModeRemote,
	}
}

func TestJournalAppendAssignsIDs(t *testing.T) {
	ctx := context.Background()
	journal := repository.NewJournal(filepath.Join(t.TempDir(), "journal.json"))

	id1, err := journal.Append(ctx, newObs("vscode", "coding"))
	gt.NoError(t, err)
	id2, err := journal.Append(ctx, newObs("chrome", "browsing"))
	gt.NoError(t, err)

	gt.Value(t, id1).Equal(int64(1))
	gt.Value(t, id2).Equal(int64(2))
	gt.Value(t, journal.Len()).Equal(2)
}

func TestJournalEviction(t *testing.T) {
	ctx := context.Background()
	journal := repository.NewJournal(
		filepath.Join(t.TempDir(), "journal.json"),
		repository.WithMaxEntries(5),
	)

	for i := 0; i < 8; i++ {
		_, err := journal.Append(ctx, newObs("vscode", "coding"))
		gt.NoError(t, err)
	}

	gt.Value(t, journal.Len()).Equal(5)

	// The oldest three are gone, the rest keep their original IDs in order
	recent := journal.Recent(5)
	gt.Array(t, recent).Length(5)
	for i, obs := range recent {
		gt.Value(t, obs.ID).Equal(int64(i + 4))
	}
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")

	journal := repository.NewJournal(path)
	first := newObs("vscode", "debugging")
	first.Errors = []string{"index out of range"}
	first.SuggestionText = "check the loop bounds"
	_, err := journal.Append(ctx, first)
	gt.NoError(t, err)
	_, err = journal.Append(ctx, newObs("chrome", "browsing"))
	gt.NoError(t, err)

	reloaded := repository.NewJournal(path)
	gt.NoError(t, reloaded.Load(ctx))
	gt.Value(t, reloaded.Len()).Equal(2)

	entries := reloaded.Recent(2)
	gt.Value(t, entries[0].ID).Equal(int64(1))
	gt.Value(t, entries[0].App).Equal("vscode")
	gt.Value(t, entries[0].Activity).Equal("debugging")
	gt.Value(t, entries[0].Confidence).Equal(0.8)
	gt.Value(t, entries[0].SuggestionText).Equal("check the loop bounds")
	gt.Value(t, entries[0].Errors).Equal([]string{"index out of range"})
	gt.True(t, entries[0].Timestamp.Equal(first.Timestamp))
	gt.Value(t, entries[1].ID).Equal(int64(2))
	gt.Value(t, entries[1].App).Equal("chrome")
}

func TestJournalIDsContinueAfterReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")

	journal := repository.NewJournal(path)
	for i := 0; i < 3; i++ {
		_, err := journal.Append(ctx, newObs("vscode", "coding"))
		gt.NoError(t, err)
	}

	reloaded := repository.NewJournal(path)
	gt.NoError(t, reloaded.Load(ctx))
	id, err := reloaded.Append(ctx, newObs("chrome", "browsing"))
	gt.NoError(t, err)
	gt.Value(t, id).Equal(int64(4))
}

func TestJournalCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")
	gt.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	journal := repository.NewJournal(path)
	gt.NoError(t, journal.Load(ctx))
	gt.Value(t, journal.Len()).Equal(0)

	// The journal is usable after the recovery
	_, err := journal.Append(ctx, newObs("vscode", "coding"))
	gt.NoError(t, err)
}

func TestJournalMissingFile(t *testing.T) {
	ctx := context.Background()
	journal := repository.NewJournal(filepath.Join(t.TempDir(), "nope.json"))
	gt.NoError(t, journal.Load(ctx))
	gt.Value(t, journal.Len()).Equal(0)
}

func TestJournalPreservesUnknownFields(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")

	doc := `{
	  "version": 1,
	  "last_id": 1,
	  "observations": [
	    {
	      "id": 1,
	      "app": "vscode",
	      "activity": "coding",
	      "confidence": 0.9,
	      "source_mode": "remote",
	      "screenshot_path": "shots/0001.png"
	    }
	  ]
	}`
	gt.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	journal := repository.NewJournal(path)
	gt.NoError(t, journal.Load(ctx))
	gt.Value(t, journal.Len()).Equal(1)

	// Appending flushes; the field this version does not understand survives
	_, err := journal.Append(ctx, newObs("chrome", "browsing"))
	gt.NoError(t, err)

	data, err := os.ReadFile(path)
	gt.NoError(t, err)

	var file struct {
		Observations []map[string]any `json:"observations"`
	}
	gt.NoError(t, json.Unmarshal(data, &file))
	gt.Array(t, file.Observations).Length(2)
	gt.Value(t, file.Observations[0]["screenshot_path"]).Equal("shots/0001.png")
}

func TestJournalMissingOptionalFields(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")

	doc := `{"version": 1, "last_id": 1, "observations": [{"id": 1}]}`
	gt.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	journal := repository.NewJournal(path)
	gt.NoError(t, journal.Load(ctx))

	obs, ok := journal.Get(1)
	gt.True(t, ok)
	gt.Value(t, obs.App).Equal(model.Unknown)
	gt.Value(t, obs.Activity).Equal(model.Unknown)
	gt.Value(t, obs.Confidence).Equal(0.0)
}

func TestJournalStats(t *testing.T) {
	ctx := context.Background()
	journal := repository.NewJournal(filepath.Join(t.TempDir(), "journal.json"))

	for i := 0; i < 3; i++ {
		_, err := journal.Append(ctx, newObs("vscode", "coding"))
		gt.NoError(t, err)
	}
	_, err := journal.Append(ctx, newObs("chrome", "browsing"))
	gt.NoError(t, err)

	stats := journal.Stats()
	gt.Value(t, stats.Total).Equal(4)
	gt.Value(t, stats.ByApp["vscode"]).Equal(3)
	gt.Value(t, stats.ByApp["chrome"]).Equal(1)
	gt.False(t, stats.LastUpdated.IsZero())
}

func TestJournalGet(t *testing.T) {
	ctx := context.Background()
	journal := repository.NewJournal(filepath.Join(t.TempDir(), "journal.json"))

	id, err := journal.Append(ctx, newObs("vscode", "coding"))
	gt.NoError(t, err)

	obs, ok := journal.Get(id)
	gt.True(t, ok)
	gt.Value(t, obs.App).Equal("vscode")

	_, ok = journal.Get(999)
	gt.False(t, ok)
}
