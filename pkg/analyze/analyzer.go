package analyze

import (
	"context"

	"github.com/m-mizutani/sightline/pkg/model"
)

// Analyzer describes a capture and returns a raw, unvalidated mapping. Only
// Normalize ever consumes the mapping; no other component sees the raw shape.
// Implementations report declared failures via the error; the pipeline then
// degrades to the fallback analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, capture *model.Capture) (map[string]any, error)
}
