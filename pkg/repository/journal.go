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
	"github.com/m-mizutani/sightline/pkg/analyze"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/utils/logging"
)

// DefaultMaxEntries is the default retention cap of the journal.
const DefaultMaxEntries = 1000

const journalVersion = 1

// knownObservationKeys are the fields the journal itself understands. Any
// other key found in a persisted observation is retained verbatim and
// re-emitted on flush so that files written by newer versions stay intact.
var knownObservationKeys = map[string]struct{}{
	"id": {}, "timestamp": {}, "app": {}, "activity": {}, "confidence": {},
	"errors": {}, "suggestion_text": {}, "source_mode": {},
}

// Journal is the append-only, size-bounded observation store. Insertion
// order is temporal order; when the cap is exceeded the oldest entries are
// dropped. IDs are strictly increasing and never reused, even across
// eviction and restarts.
//
// The journal has no internal locking: it expects a single writer, with
// reads only between completed appends (the pipeline guarantees this).
type Journal struct {
	path    string
	max     int
	entries []journalEntry
	lastID  int64
	updated time.Time
}

type journalEntry struct {
	obs   *model.Observation
	extra map[string]json.RawMessage
}

type JournalOption func(*Journal)

// WithMaxEntries overrides the retention cap. Values below 1 are ignored.
func WithMaxEntries(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.max = n
		}
	}
}

// NewJournal creates an empty journal persisted at path. Call Load to pick
// up previously persisted state.
func NewJournal(path string, opts ...JournalOption) *Journal {
	j := &Journal{
		path: path,
		max:  DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// journalFile is the persisted document: a metadata header plus the ordered
// observation sequence.
type journalFile struct {
	Version      int               `json:"version"`
	LastUpdated  time.Time         `json:"last_updated"`
	LastID       int64             `json:"last_id"`
	Stats        Stats             `json:"stats"`
	Observations []json.RawMessage `json:"observations"`
}

// Stats summarizes journal contents.
type Stats struct {
	Total       int            `json:"total"`
	ByApp       map[string]int `json:"by_app"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Load reads persisted state. A missing or unparseable file yields an empty
// journal and a warning, never a startup failure. Only an unreadable
// existing file is reported as an error, since that state cannot be
// defaulted away.
func (j *Journal) Load(ctx context.Context) error {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read journal", goerr.V("path", j.path))
	}

	var file journalFile
	if err := json.Unmarshal(data, &file); err != nil {
		logging.From(ctx).Warn("journal file is corrupt, starting empty",
			"path", j.path, "error", err)
		j.entries = nil
		return nil
	}

	j.lastID = file.LastID
	j.updated = file.LastUpdated
	j.entries = j.entries[:0]

	for _, rawObs := range file.Observations {
		entry, ok := decodeEntry(rawObs)
		if !ok {
			logging.From(ctx).Warn("skipping malformed journal entry", "path", j.path)
			continue
		}
		if entry.obs.ID > j.lastID {
			j.lastID = entry.obs.ID
		}
		j.entries = append(j.entries, entry)
	}

	if len(j.entries) > j.max {
		j.entries = append(j.entries[:0], j.entries[len(j.entries)-j.max:]...)
	}
	return nil
}

// decodeEntry rebuilds an observation from its persisted form. Known fields
// go through the normalizer so missing or malformed values get the same
// defaults a fresh observation would; unknown fields are kept for resave.
func decodeEntry(raw json.RawMessage) (journalEntry, bool) {
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return journalEntry{}, false
	}

	obs := analyze.Normalize(loose)
	if id, ok := loose["id"].(float64); ok {
		obs.ID = int64(id)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return journalEntry{}, false
	}
	extra := make(map[string]json.RawMessage)
	for key, value := range fields {
		if _, known := knownObservationKeys[key]; !known {
			extra[key] = value
		}
	}
	if len(extra) == 0 {
		extra = nil
	}

	return journalEntry{obs: obs, extra: extra}, true
}

// Append assigns the next ID and timestamp, stores the observation, enforces
// the retention cap, and flushes. A flush failure is reported as a warning;
// the in-memory journal stays authoritative and the append still succeeds.
func (j *Journal) Append(ctx context.Context, obs *model.Observation) (int64, error) {
	if obs == nil {
		return 0, goerr.New("observation must not be nil")
	}

	j.lastID++
	obs.ID = j.lastID

	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	// Timestamps are non-decreasing in journal order.
	if n := len(j.entries); n > 0 && obs.Timestamp.Before(j.entries[n-1].obs.Timestamp) {
		obs.Timestamp = j.entries[n-1].obs.Timestamp
	}

	j.entries = append(j.entries, journalEntry{obs: obs})
	if len(j.entries) > j.max {
		j.entries = append(j.entries[:0], j.entries[len(j.entries)-j.max:]...)
	}
	j.updated = time.Now()

	if err := j.Flush(ctx); err != nil {
		logging.From(ctx).Warn("failed to flush journal, in-memory state kept",
			"path", j.path, "error", err)
	}

	return obs.ID, nil
}

// Flush serializes the journal. The write is staged to a temp file and
// renamed so a crash mid-write cannot leave a half-written document.
func (j *Journal) Flush(ctx context.Context) error {
	file := journalFile{
		Version:     journalVersion,
		LastUpdated: j.updated,
		LastID:      j.lastID,
		Stats:       j.Stats(),
	}

	for _, entry := range j.entries {
		raw, err := encodeEntry(entry)
		if err != nil {
			return goerr.Wrap(err, "failed to encode observation", goerr.V("id", entry.obs.ID))
		}
		file.Observations = append(file.Observations, raw)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal journal")
	}

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create journal directory", goerr.V("dir", dir))
		}
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write journal", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return goerr.Wrap(err, "failed to replace journal", goerr.V("path", j.path))
	}
	return nil
}

func encodeEntry(entry journalEntry) (json.RawMessage, error) {
	data, err := json.Marshal(entry.obs)
	if err != nil {
		return nil, err
	}
	if len(entry.extra) == 0 {
		return data, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for key, value := range entry.extra {
		if _, known := knownObservationKeys[key]; !known {
			fields[key] = value
		}
	}
	return json.Marshal(fields)
}

// Recent returns the last limit observations in storage order, newest last.
// Callers that want newest-first must reverse explicitly.
func (j *Journal) Recent(limit int) []*model.Observation {
	if limit <= 0 || len(j.entries) == 0 {
		return nil
	}
	if limit > len(j.entries) {
		limit = len(j.entries)
	}
	out := make([]*model.Observation, 0, limit)
	for _, entry := range j.entries[len(j.entries)-limit:] {
		out = append(out, entry.obs)
	}
	return out
}

// Get returns the observation with the given ID, if it is still retained.
func (j *Journal) Get(id int64) (*model.Observation, bool) {
	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].obs.ID == id {
			return j.entries[i].obs, true
		}
	}
	return nil, false
}

// Len returns the number of retained observations.
func (j *Journal) Len() int {
	return len(j.entries)
}

// Stats returns counts grouped by app plus the last update time.
func (j *Journal) Stats() Stats {
	byApp := make(map[string]int)
	for _, entry := range j.entries {
		byApp[entry.obs.App]++
	}
	return Stats{
		Total:       len(j.entries),
		ByApp:       byApp,
		LastUpdated: j.updated,
	}
}

// Reset drops all observations but keeps the ID sequence, then flushes.
func (j *Journal) Reset(ctx context.Context) error {
	j.entries = nil
	j.updated = time.Now()
	return j.Flush(ctx)
}
