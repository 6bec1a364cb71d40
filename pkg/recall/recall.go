package recall

import (
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/model"
)

// ErrInvalidLimit indicates caller misuse, not a runtime condition. It is
// fatal to the call only.
var ErrInvalidLimit = goerr.New("limit must not be negative")

const (
	// DefaultLimit is the maximum number of matches returned.
	DefaultLimit = 5
	// DefaultMinScore is the exclusive score threshold for a match.
	DefaultMinScore = 0.3
	// DefaultWindow bounds how many recent observations are scored.
	DefaultWindow = 50
)

// Source is the read side of the observation store the engine queries.
// Recent returns up to limit observations in storage order, newest last.
type Source interface {
	Recent(limit int) []*model.Observation
}

// Options tunes a query. Zero values select the defaults; MinScore cannot be
// tuned to exactly zero (use a tiny positive epsilon if everything should
// match).
type Options struct {
	Limit    int
	MinScore float64
	Window   int
	Weights  Weights
}

func (x Options) withDefaults() Options {
	if x.Limit == 0 {
		x.Limit = DefaultLimit
	}
	if x.MinScore == 0 {
		x.MinScore = DefaultMinScore
	}
	if x.Window == 0 {
		x.Window = DefaultWindow
	}
	if x.Weights == (Weights{}) {
		x.Weights = DefaultWeights()
	}
	return x
}

// FindSimilar scores current against the most recent observations in src and
// returns the matches ordered by score, recency breaking ties. Every
// returned score is strictly above MinScore, and no more than Limit results
// come back. An empty source yields an empty result, not an error.
func FindSimilar(current *model.Observation, src Source, opts Options) ([]model.SimilarityResult, error) {
	opts = opts.withDefaults()
	if opts.Limit < 0 {
		return nil, goerr.Wrap(ErrInvalidLimit, "invalid recall query", goerr.V("limit", opts.Limit))
	}
	if current == nil {
		return nil, goerr.New("current observation must not be nil")
	}

	window := src.Recent(opts.Window)

	// Walk newest to oldest so the stable sort below breaks score ties in
	// favor of the more recent observation.
	var results []model.SimilarityResult
	for i := len(window) - 1; i >= 0; i-- {
		candidate := window[i]
		if candidate == nil || candidate.ID == current.ID {
			continue
		}
		score, rationale := Score(current, candidate, opts.Weights)
		if score <= opts.MinScore {
			continue
		}
		results = append(results, model.SimilarityResult{
			Score:       score,
			Observation: candidate,
			Rationale:   rationale,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}
