package repository

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

// DefaultMaxEvents is the default retention cap of the event log.
const DefaultMaxEvents = 1000

// Event is one entry in the activity event stream.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	CycleID   string         `json:"cycle_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLog is a capped append-only stream of pipeline events, persisted as a
// JSON array. Like the journal, it expects a single writer.
type EventLog struct {
	path   string
	max    int
	events []Event
}

type EventLogOption func(*EventLog)

// WithMaxEvents overrides the event retention cap. Values below 1 are ignored.
func WithMaxEvents(n int) EventLogOption {
	return func(l *EventLog) {
		if n > 0 {
			l.max = n
		}
	}
}

func NewEventLog(path string, opts ...EventLogOption) *EventLog {
	l := &EventLog{
		path: path,
		max:  DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads persisted events. Both a bare array and a {"events": [...]}
// wrapper are accepted; anything else starts an empty stream with a warning.
func (l *EventLog) Load(ctx context.Context) error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read event log", goerr.V("path", l.path))
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		var wrapped struct {
			Events []Event `json:"events"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			logging.From(ctx).Warn("event log is corrupt, starting empty",
				"path", l.path, "error", err)
			l.events = nil
			return nil
		}
		events = wrapped.Events
	}

	l.events = events
	if len(l.events) > l.max {
		l.events = append(l.events[:0], l.events[len(l.events)-l.max:]...)
	}
	return nil
}

// Append adds an event, evicting the oldest beyond the cap. The log is not
// flushed per event; call Flush at checkpoints (the pipeline flushes after
// each cycle).
func (l *EventLog) Append(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	l.events = append(l.events, ev)
	if len(l.events) > l.max {
		l.events = append(l.events[:0], l.events[len(l.events)-l.max:]...)
	}
}

// Flush serializes the event stream.
func (l *EventLog) Flush(ctx context.Context) error {
	data, err := json.MarshalIndent(l.events, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal event log")
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create event log directory", goerr.V("dir", dir))
		}
	}
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write event log", goerr.V("path", l.path))
	}
	return nil
}

// Recent returns the last limit events, newest last.
func (l *EventLog) Recent(limit int) []Event {
	if limit <= 0 || len(l.events) == 0 {
		return nil
	}
	if limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, limit)
	copy(out, l.events[len(l.events)-limit:])
	return out
}

// Len returns the number of retained events.
func (l *EventLog) Len() int {
	return len(l.events)
}

var editorApps = map[string]struct{}{
	"vscode": {}, "visual_studio": {}, "pycharm": {},
}

// Patterns inspects the last window events and names coarse activity
// patterns: repeated errors, sustained editor use, or simply a busy stretch.
func (l *EventLog) Patterns(window int) []string {
	if window <= 0 || len(l.events) < window {
		return nil
	}
	recent := l.events[len(l.events)-window:]

	var patterns []string

	errorEvents := 0
	editorEvents := 0
	for _, ev := range recent {
		if n, ok := ev.Data["error_count"].(int); ok && n > 0 {
			errorEvents++
		} else if n, ok := ev.Data["error_count"].(float64); ok && n > 0 {
			errorEvents++
		}
		if app, ok := ev.Data["app"].(string); ok {
			if _, isEditor := editorApps[app]; isEditor {
				editorEvents++
			}
		}
	}

	if errorEvents > 3 {
		patterns = append(patterns, "debugging_session")
	}
	if editorEvents > 5 {
		patterns = append(patterns, "coding_session")
	}
	if len(recent) > 8 {
		patterns = append(patterns, "working_session")
	}

	return patterns
}
