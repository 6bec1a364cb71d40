package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/model"
)

// Rule identifies which policy rule produced a suggestion.
type Rule string

const (
	RuleCustom       Rule = "custom"
	RuleKnownFailure Rule = "known_failure"
	RuleSeenBefore   Rule = "seen_before"
	RuleSameApp      Rule = "same_app"
	RuleNone         Rule = "none"
)

// DefaultStuckCount is how many consecutive same-app observations trigger
// the nudge rule.
const DefaultStuckCount = 3

// Result is the policy outcome. Rule is RuleNone with empty Text when no
// rule matched; absence of a suggestion is a valid result, not an error.
type Result struct {
	Rule Rule
	Text string
}

// Input is everything a rule may inspect. Recent is in storage order,
// newest last, and includes Current as its final element once appended.
type Input struct {
	Current *model.Observation
	Matches []model.SimilarityResult
	Recent  []*model.Observation
}

// knownFailure maps error keywords to a canned remediation. All keywords of
// an entry must appear (case-insensitive) somewhere in the error text.
type knownFailure struct {
	keywords []string
	text     string
}

// Table order is priority order within the known-failure rule.
var knownFailures = []knownFailure{
	{
		keywords: []string{"firebase", "permission"},
		text:     "Firebase permission denied: check your security rules and confirm the client is authenticated before retrying.",
	},
	{
		keywords: []string{"permission denied"},
		text:     "Permission denied: verify file ownership and access rights, or re-run with elevated privileges if appropriate.",
	},
	{
		keywords: []string{"unauthorized"},
		text:     "Authorization failure: check that your credentials or API token are present and not expired.",
	},
	{
		keywords: []string{"api key"},
		text:     "API key problem: verify the key is set, valid, and scoped for this service.",
	},
	{
		keywords: []string{"quota"},
		text:     "Quota exceeded: wait for the limit to reset or request a higher quota.",
	},
	{
		keywords: []string{"connection refused"},
		text:     "Connection refused: confirm the target service is running and listening on the expected port.",
	},
	{
		keywords: []string{"module not found"},
		text:     "Missing module: install the dependency or check the import path for typos.",
	},
}

// Policy evaluates the ordered rule table. Rules run in fixed priority
// order and the first match wins, trading optimality for predictability.
type Policy struct {
	custom     *CustomRule
	stuckCount int
}

type PolicyOption func(*Policy)

// WithStuckCount overrides how many consecutive same-app observations count
// as stuck. Values below 2 are ignored.
func WithStuckCount(n int) PolicyOption {
	return func(p *Policy) {
		if n >= 2 {
			p.stuckCount = n
		}
	}
}

// WithCustomRule prepends a user-supplied Rego rule to the table.
func WithCustomRule(rule *CustomRule) PolicyOption {
	return func(p *Policy) {
		p.custom = rule
	}
}

// StuckCount reports how many trailing observations the same-app rule
// inspects. Callers use it to size the recent window they pass in.
func (p *Policy) StuckCount() int {
	return p.stuckCount
}

func New(opts ...PolicyOption) *Policy {
	p := &Policy{
		stuckCount: DefaultStuckCount,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the rule table against in and returns the first match. It
// never mutates the observations it inspects.
func (p *Policy) Evaluate(ctx context.Context, in Input) (*Result, error) {
	if in.Current == nil {
		return nil, goerr.New("current observation must not be nil")
	}

	if p.custom != nil {
		if text, ok := p.custom.evaluate(ctx, in); ok {
			return &Result{Rule: RuleCustom, Text: text}, nil
		}
	}

	if text, ok := matchKnownFailure(in.Current); ok {
		return &Result{Rule: RuleKnownFailure, Text: text}, nil
	}

	if text, ok := matchSeenBefore(in); ok {
		return &Result{Rule: RuleSeenBefore, Text: text}, nil
	}

	if text, ok := matchSameApp(in, p.stuckCount); ok {
		return &Result{Rule: RuleSameApp, Text: text}, nil
	}

	return &Result{Rule: RuleNone}, nil
}

func matchKnownFailure(obs *model.Observation) (string, bool) {
	if len(obs.Errors) == 0 {
		return "", false
	}
	errText := strings.ToLower(strings.Join(obs.Errors, " "))
	for _, failure := range knownFailures {
		matched := true
		for _, kw := range failure.keywords {
			if !strings.Contains(errText, kw) {
				matched = false
				break
			}
		}
		if matched {
			return failure.text, true
		}
	}
	return "", false
}

// matchSeenBefore fires when the best recall match also carried errors,
// pointing the user back at the earlier occurrence.
func matchSeenBefore(in Input) (string, bool) {
	if len(in.Matches) == 0 {
		return "", false
	}
	best := in.Matches[0]
	if best.Observation == nil || len(best.Observation.Errors) == 0 {
		return "", false
	}
	return fmt.Sprintf(
		"This looks like an issue you hit before (observation #%d, similarity %.2f). Check what resolved it then.",
		best.Observation.ID, best.Score), true
}

// matchSameApp fires when the last stuckCount observations, including the
// current one, all share the same non-unknown app.
func matchSameApp(in Input, stuckCount int) (string, bool) {
	if in.Current.App == model.Unknown || len(in.Recent) < stuckCount {
		return "", false
	}
	tail := in.Recent[len(in.Recent)-stuckCount:]
	for _, obs := range tail {
		if obs == nil || obs.App != in.Current.App {
			return "", false
		}
	}
	return fmt.Sprintf(
		"You've been in %s for a while. A short break or a step back might help.",
		in.Current.App), true
}
