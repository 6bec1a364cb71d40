package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/utils/logging"
)

// CycleReport is what the pipeline reports after each completed cycle.
type CycleReport struct {
	CycleID         string        `json:"cycle_id"`
	ObservationID   int64         `json:"observation_id"`
	App             string        `json:"app"`
	SuggestionGiven bool          `json:"suggestion_given"`
	JournalSize     int           `json:"journal_size"`
	Duration        time.Duration `json:"duration_ns"`
}

// progressFile is the persisted bookkeeping document. Unknown top-level
// fields written by other tools are preserved across updates.
type progressFile struct {
	TotalCycles      int          `json:"total_cycles"`
	TotalSuggestions int          `json:"total_suggestions"`
	LastCycle        *CycleReport `json:"last_cycle,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Tracker maintains a small progress document on disk. It is an explicit
// collaborator the pipeline reports to after each cycle; the core never
// reads it back for decisions.
type Tracker struct {
	path string
}

func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Report merges the cycle outcome into the progress document with a
// read-modify-write. Failures are logged, never returned: bookkeeping must
// not break the pipeline.
func (x *Tracker) Report(ctx context.Context, report CycleReport) {
	if x == nil || x.path == "" {
		return
	}
	if err := x.update(report); err != nil {
		logging.From(ctx).Warn("failed to update progress tracker",
			"path", x.path, "error", err)
	}
}

func (x *Tracker) update(report CycleReport) error {
	extra := map[string]json.RawMessage{}
	var progress progressFile

	data, err := os.ReadFile(x.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First report creates the file.
	case err != nil:
		return goerr.Wrap(err, "failed to read progress file", goerr.V("path", x.path))
	default:
		// A corrupt file is replaced rather than repaired.
		if err := json.Unmarshal(data, &progress); err != nil {
			progress = progressFile{}
		}
		if err := json.Unmarshal(data, &extra); err != nil {
			extra = map[string]json.RawMessage{}
		}
	}

	progress.TotalCycles++
	if report.SuggestionGiven {
		progress.TotalSuggestions++
	}
	progress.LastCycle = &report
	progress.UpdatedAt = time.Now()

	merged, err := json.Marshal(progress)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal progress")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(merged, &fields); err != nil {
		return goerr.Wrap(err, "failed to re-decode progress")
	}
	for key, value := range extra {
		if _, owned := fields[key]; !owned {
			fields[key] = value
		}
	}

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal progress file")
	}

	if dir := filepath.Dir(x.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create tracker directory", goerr.V("dir", dir))
		}
	}
	if err := os.WriteFile(x.path, out, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write progress file", goerr.V("path", x.path))
	}
	return nil
}
