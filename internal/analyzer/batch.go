package analyzer

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
	"github.com/tareqmamari/execintel/internal/pattern"
)

// topPatternCount bounds the pattern list in a batch summary.
const topPatternCount = 5

// AnalyzeBatch analyzes inputs concurrently, at most opts.Workers at a
// time. Results come back ordered by test name regardless of completion
// order. Cancellation marks unstarted inputs ANALYSIS_CANCELLED instead of
// dropping them, so the report always accounts for every input.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, inputs []TestInput) []*model.AnalysisResult {
	results := make([]*model.AnalysisResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = a.errorResult(input, errors.NewAnalysisCancelled(displayName(input)))
				return nil
			}
			results[i] = a.Analyze(gctx, input)
			return nil
		})
	}
	// Workers never return errors; faults become ERROR results.
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TestName < results[j].TestName
	})
	return results
}

// Summarize folds a batch into counts. Type and bucket maps carry every
// key so reports render stable shapes; status counts only what occurred.
func Summarize(results []*model.AnalysisResult) model.Summary {
	s := model.Summary{
		Total:    len(results),
		ByStatus: make(map[model.TestStatus]int),
		ByType:   make(map[model.FailureType]int),
		ByBucket: make(map[model.ConfidenceBucket]int),
	}
	for _, ft := range model.FailureTypes {
		s.ByType[ft] = 0
	}
	for _, b := range model.ConfidenceBuckets {
		s.ByBucket[b] = 0
	}

	type patCount struct {
		count int
		first model.PatternCount
	}
	patterns := make(map[string]*patCount)

	for _, res := range results {
		s.ByStatus[res.Status]++
		if res.Classification == nil {
			continue
		}
		s.ByType[res.Classification.FailureType]++
		s.ByBucket[model.BucketFor(res.Classification.Confidence)]++

		primary := model.PrimarySignal(res.Signals)
		if primary == nil {
			continue
		}
		hash, normalized := pattern.HashMessage(primary.SignalType, primary.Message)
		pc, ok := patterns[hash]
		if !ok {
			pc = &patCount{first: model.PatternCount{
				PatternHash: hash,
				Message:     normalized,
				SignalType:  primary.SignalType,
			}}
			patterns[hash] = pc
		}
		pc.count++
	}

	top := make([]model.PatternCount, 0, len(patterns))
	for _, pc := range patterns {
		pc.first.Tests = pc.count
		top = append(top, pc.first)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Tests != top[j].Tests {
			return top[i].Tests > top[j].Tests
		}
		return top[i].PatternHash < top[j].PatternHash
	})
	if len(top) > topPatternCount {
		top = top[:topPatternCount]
	}
	if len(top) > 0 {
		s.TopPatterns = top
	}
	return s
}

// ShouldFailCI reports whether any failed result's classification is in
// the gate set. A nil set gates on PRODUCT_DEFECT alone; an explicitly
// empty set never fails the gate.
func ShouldFailCI(results []*model.AnalysisResult, failOn []model.FailureType) bool {
	if failOn == nil {
		failOn = []model.FailureType{model.ProductDefect}
	}
	if len(failOn) == 0 {
		return false
	}
	gate := make(map[model.FailureType]bool, len(failOn))
	for _, ft := range failOn {
		gate[ft] = true
	}
	for _, res := range results {
		if res.Failed() && res.Classification != nil && gate[res.Classification.FailureType] {
			return true
		}
	}
	return false
}
