package suggest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
)

// CustomRule is an optional Rego policy evaluated ahead of the builtin rule
// table. The policy lives in data.suggest and returns
// {"text": "..."} to emit a suggestion, or nothing to pass.
type CustomRule struct {
	query *rego.PreparedEvalQuery
}

// LoadCustomRule compiles all .rego files under dir into a custom rule. It
// returns nil (with no error) when the directory holds no policy files.
func LoadCustomRule(ctx context.Context, dir string) (*CustomRule, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.suggest"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare suggest query")
	}

	return &CustomRule{query: &prepared}, nil
}

// evaluate runs the policy. Evaluation failures are logged and treated as
// no-match so a broken user policy never blocks the builtin rules.
func (x *CustomRule) evaluate(ctx context.Context, in Input) (string, bool) {
	rs, err := x.query.Eval(ctx, rego.EvalInput(regoInput(in)))
	if err != nil {
		logging.From(ctx).Warn("custom suggestion rule failed, falling back to builtin rules",
			"error", err)
		return "", false
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", false
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := data["text"].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// regoInput flattens the policy input into plain maps so the evaluator sees
// stable JSON-ish values rather than Go structs.
func regoInput(in Input) map[string]any {
	input := map[string]any{
		"current": in.Current.Raw(),
	}

	matches := make([]any, 0, len(in.Matches))
	for _, m := range in.Matches {
		matches = append(matches, map[string]any{
			"score":       m.Score,
			"rationale":   m.Rationale,
			"observation": obsInput(m.Observation),
		})
	}
	input["matches"] = matches

	recent := make([]any, 0, len(in.Recent))
	for _, obs := range in.Recent {
		recent = append(recent, obsInput(obs))
	}
	input["recent"] = recent

	return input
}

func obsInput(obs *model.Observation) map[string]any {
	if obs == nil {
		return nil
	}
	raw := obs.Raw()
	raw["id"] = obs.ID
	return raw
}
