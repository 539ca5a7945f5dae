// Package enrich adds optional AI-generated insight to finished
// classifications. Enrichment is strictly advisory: it may append
// insights and nudge confidence within a bucket, but the failure type
// and the deterministic result always stand on their own.
package enrich

import (
	"context"

	"github.com/tareqmamari/execintel/internal/model"
)

// Context carries the failure evidence an enricher may use.
type Context struct {
	TestName      string
	Framework     string
	Signals       []*model.FailureSignal
	CodeReference *model.CodeReference
	Evidence      []string
}

// Insight is an enricher's advisory output. ConfidenceDelta is clamped
// to [-0.1, +0.1] by the calibrator; SuggestedType is reported but never
// applied.
type Insight struct {
	Provider        string
	Insights        []string
	SuggestedFix    string
	Confidence      float64
	ConfidenceDelta float64
	SuggestedType   string
}

// Enricher produces an Insight for a classification, or (nil, nil) when
// it has nothing to add.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, cls *model.FailureClassification, ec Context) (*Insight, error)
}

// Noop is the enricher used when AI enrichment is disabled.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Enrich(context.Context, *model.FailureClassification, Context) (*Insight, error) {
	return nil, nil
}
