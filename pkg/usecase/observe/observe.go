package observe

import (
	"sync/atomic"

	"github.com/m-mizutani/sightline/pkg/adapter"
	"github.com/m-mizutani/sightline/pkg/analyze"
	"github.com/m-mizutani/sightline/pkg/recall"
	"github.com/m-mizutani/sightline/pkg/repository"
	"github.com/m-mizutani/sightline/pkg/suggest"
	"github.com/m-mizutani/sightline/pkg/tracker"
)

// UseCase runs the observation pipeline: capture, analyze, normalize,
// journal, recall, suggest. One cycle runs at a time; manual triggers and
// the watch loop share the same in-flight guard.
type UseCase struct {
	source   adapter.Source
	analyzer analyze.Analyzer
	fallback analyze.Analyzer
	journal  *repository.Journal
	events   *repository.EventLog
	tracker  *tracker.Tracker
	policy   *suggest.Policy
	recall   recall.Options

	inFlight atomic.Bool
}

type Option func(*UseCase)

// WithFallback sets the analyzer used when the primary one fails. Defaults
// to the window-title heuristic analyzer.
func WithFallback(a analyze.Analyzer) Option {
	return func(u *UseCase) {
		u.fallback = a
	}
}

// WithEvents attaches an event log the pipeline appends to each cycle.
func WithEvents(events *repository.EventLog) Option {
	return func(u *UseCase) {
		u.events = events
	}
}

// WithTracker attaches a progress tracker the pipeline reports to.
func WithTracker(t *tracker.Tracker) Option {
	return func(u *UseCase) {
		u.tracker = t
	}
}

// WithPolicy replaces the default suggestion policy.
func WithPolicy(p *suggest.Policy) Option {
	return func(u *UseCase) {
		u.policy = p
	}
}

// WithRecallOptions tunes the similarity query run each cycle.
func WithRecallOptions(opts recall.Options) Option {
	return func(u *UseCase) {
		u.recall = opts
	}
}

// New assembles the pipeline. analyzer may be nil, in which case every
// cycle uses the fallback analyzer directly.
func New(source adapter.Source, analyzer analyze.Analyzer, journal *repository.Journal, opts ...Option) *UseCase {
	u := &UseCase{
		source:   source,
		analyzer: analyzer,
		fallback: analyze.NewFallback(),
		journal:  journal,
		policy:   suggest.New(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
