package observe

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/analyze"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/recall"
	"github.com/m-mizutani/sightline/pkg/repository"
	"github.com/m-mizutani/sightline/pkg/suggest"
	"github.com/m-mizutani/sightline/pkg/tracker"
	"github.com/m-mizutani/sightline/pkg/utils/logging"
)

// ErrCycleInProgress is returned when a cycle is requested while another is
// still running. The caller should simply try again later.
var ErrCycleInProgress = goerr.New("observation cycle already in progress")

// CycleResult is the outcome of one pipeline cycle, handed to the
// presentation layer as-is.
type CycleResult struct {
	CycleID     string
	Observation *model.Observation
	Matches     []model.SimilarityResult
	Suggestion  *suggest.Result
}

// RunCycle executes one capture-to-suggestion cycle. Collaborator failures
// degrade the result instead of aborting: a failed capture analyzes an
// empty frame, a failed remote analysis falls back to the heuristic
// analyzer. Only local-state faults surface as errors.
func (u *UseCase) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !u.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer u.inFlight.Store(false)

	cycleID := uuid.New().String()
	logger := logging.From(ctx).With("cycle_id", cycleID)
	ctx = logging.With(ctx, logger)
	started := time.Now()

	capture, err := u.source.Capture(ctx)
	if err != nil {
		logger.Warn("capture failed, analyzing without image", "error", err)
		capture = &model.Capture{}
	}

	raw := u.analyzeCapture(ctx, capture)
	obs := analyze.Normalize(raw)

	id, err := u.journal.Append(ctx, obs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to append observation")
	}

	matches, err := recall.FindSimilar(obs, u.journal, u.recall)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find similar observations")
	}

	suggestion, err := u.policy.Evaluate(ctx, suggest.Input{
		Current: obs,
		Matches: matches,
		Recent:  u.journal.Recent(u.policy.StuckCount()),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate suggestion policy")
	}

	u.record(ctx, cycleID, obs, suggestion, started)

	logger.Info("observation cycle completed",
		"observation_id", id,
		"app", obs.App,
		"activity", obs.Activity,
		"source_mode", obs.SourceMode,
		"matches", len(matches),
		"rule", suggestion.Rule,
	)

	return &CycleResult{
		CycleID:     cycleID,
		Observation: obs,
		Matches:     matches,
		Suggestion:  suggestion,
	}, nil
}

// analyzeCapture runs the primary analyzer and degrades to the fallback on
// any failure. The fallback never fails.
func (u *UseCase) analyzeCapture(ctx context.Context, capture *model.Capture) map[string]any {
	if u.analyzer != nil {
		raw, err := u.analyzer.Analyze(ctx, capture)
		if err == nil {
			return raw
		}
		logging.From(ctx).Warn("analysis failed, using fallback", "error", err)
	}

	raw, err := u.fallback.Analyze(ctx, capture)
	if err != nil {
		// The heuristic analyzer has no failure mode, but keep the
		// pipeline total if a custom fallback misbehaves.
		logging.From(ctx).Warn("fallback analysis failed", "error", err)
		return map[string]any{"source_mode": string(model.SourceModeFallback)}
	}
	return raw
}

// record emits the cycle event and progress report. Both are bookkeeping
// and never fail the cycle.
func (u *UseCase) record(ctx context.Context, cycleID string, obs *model.Observation, suggestion *suggest.Result, started time.Time) {
	if u.events != nil {
		u.events.Append(ctx, repository.Event{
			Type:    "observation",
			CycleID: cycleID,
			Data: map[string]any{
				"observation_id": obs.ID,
				"app":            obs.App,
				"activity":       obs.Activity,
				"source_mode":    string(obs.SourceMode),
				"error_count":    len(obs.Errors),
			},
		})
		if err := u.events.Flush(ctx); err != nil {
			logging.From(ctx).Warn("failed to flush event log", "error", err)
		}
	}

	u.tracker.Report(ctx, tracker.CycleReport{
		CycleID:         cycleID,
		ObservationID:   obs.ID,
		App:             obs.App,
		SuggestionGiven: suggestion.Rule != suggest.RuleNone,
		JournalSize:     u.journal.Len(),
		Duration:        time.Since(started),
	})
}

// Patterns exposes coarse activity patterns from the event log, if one is
// attached.
func (u *UseCase) Patterns(window int) []string {
	if u.events == nil {
		return nil
	}
	return u.events.Patterns(window)
}
