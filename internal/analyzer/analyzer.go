// Package analyzer orchestrates the per-test pipeline: route, extract,
// classify, resolve, correlate, track, calibrate, enrich. One Analyzer
// serves a whole batch; per-test state never leaves its worker.
package analyzer

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/audit"
	"github.com/tareqmamari/execintel/internal/calibrate"
	"github.com/tareqmamari/execintel/internal/correlate"
	"github.com/tareqmamari/execintel/internal/enrich"
	"github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/extract"
	"github.com/tareqmamari/execintel/internal/metrics"
	"github.com/tareqmamari/execintel/internal/model"
	"github.com/tareqmamari/execintel/internal/pattern"
	"github.com/tareqmamari/execintel/internal/resolver"
	"github.com/tareqmamari/execintel/internal/router"
	"github.com/tareqmamari/execintel/internal/rules"
	"github.com/tareqmamari/execintel/internal/security"
	"github.com/tareqmamari/execintel/internal/tracing"
)

// TestInput names one test and its log sources. The CLI builds one input
// per automation log; application logs are shared across the batch.
type TestInput struct {
	TestName string
	Sources  model.LogSourceCollection
}

// Deps are the pipeline stages. Engine is required; Router, Extractor, and
// Correlator default when nil. Resolver, Tracker, Enricher, Metrics, and
// Audit are optional: a nil field disables that stage.
type Deps struct {
	Router     *router.Router
	Extractor  *extract.Runner
	Engine     *rules.Engine
	Resolver   *resolver.Resolver
	Correlator *correlate.Correlator
	Tracker    *pattern.Tracker
	Enricher   enrich.Enricher
	Metrics    *metrics.Metrics
	Audit      *audit.Logger
	Logger     *zap.Logger
}

// Options bounds one run.
type Options struct {
	Timeout         time.Duration // per-test wall budget; <=0 means 10s
	Workers         int           // batch pool size; <=0 means runtime.NumCPU()
	AIMinConfidence float64       // enrichment below this confidence is discarded
}

const defaultTimeout = 10 * time.Second

// Analyzer runs the pipeline. Safe for concurrent use; all mutable state
// lives in the tracker and metrics, which serialize internally.
type Analyzer struct {
	deps   Deps
	opts   Options
	runID  string
	logger *zap.Logger
}

// New builds an analyzer. The run id ties every audit entry of this
// analyzer's lifetime to one invocation.
func New(deps Deps, opts Options) *Analyzer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Router == nil {
		deps.Router = router.New(nil, nil, deps.Logger)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewRunner(extract.Thresholds{}, deps.Logger)
	}
	if deps.Correlator == nil {
		deps.Correlator = correlate.New(correlate.Config{}, deps.Logger)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Analyzer{
		deps:   deps,
		opts:   opts,
		runID:  uuid.NewString(),
		logger: deps.Logger.Named("analyzer"),
	}
}

// RunID identifies this analyzer's invocation in the audit trail.
func (a *Analyzer) RunID() string { return a.runID }

// Analyze runs the full pipeline for one test. It never returns an error:
// panics, the wall budget, and cancellation all become ERROR-status
// results so one bad test can never take down a batch.
func (a *Analyzer) Analyze(ctx context.Context, input TestInput) *model.AnalysisResult {
	start := time.Now()
	ctx, span := tracing.AnalysisSpan(ctx, input.TestName, frameworkHint(input))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	resCh := make(chan *model.AnalysisResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("analysis panicked",
					zap.String("test_name", input.TestName),
					zap.Any("cause", r))
				resCh <- a.errorResult(input, errors.NewAnalysisPanic(displayName(input), r))
			}
		}()
		resCh <- a.run(ctx, input)
	}()

	var res *model.AnalysisResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			res = a.errorResult(input, errors.NewAnalysisTimeout(displayName(input)))
		} else {
			res = a.errorResult(input, errors.NewAnalysisCancelled(displayName(input)))
		}
	}

	a.finish(ctx, span, res, time.Since(start))
	return res
}

// run is the sequential pipeline body. It executes inside the fault
// boundary goroutine and checks ctx only at blocking stages.
func (a *Analyzer) run(ctx context.Context, input TestInput) *model.AnalysisResult {
	auto, app, err := a.deps.Router.Collect(ctx, input.Sources)
	if err != nil {
		return a.errorResult(input, a.asStructured(input, err))
	}

	auto = filterForTest(auto, input.TestName)
	status, statusEv := deriveStatus(auto)

	res := &model.AnalysisResult{
		TestName:           resultName(input, auto),
		Framework:          detectedFramework(auto, input),
		Status:             status,
		Timestamp:          lastTimestamp(auto),
		DurationMS:         durationMS(auto, statusEv),
		HasApplicationLogs: len(app) > 0,
	}

	if len(auto) == 0 {
		res.Status = model.StatusError
		res.Error = string(errors.CodeNoEvents)
		res.Classification = &model.FailureClassification{
			FailureType: model.UnknownFailure,
			Confidence:  0,
			Reason:      "no events parsed from automation logs",
			Evidence:    []string{"no events parsed from automation logs"},
		}
		return res
	}

	if status == model.StatusPass || status == model.StatusSkip {
		return res
	}

	signals := a.deps.Extractor.Extract(auto)
	if a.deps.Metrics != nil {
		for _, sig := range signals {
			a.deps.Metrics.RecordSignal(sig.SignalType)
		}
	}

	cls := a.deps.Engine.Evaluate(res.Framework, signals)
	if a.deps.Metrics != nil {
		for _, id := range cls.RulesApplied {
			a.deps.Metrics.RecordRuleHit(id)
		}
	}

	ref := a.resolveReference(signals, auto)
	cls.CodeReference = ref
	res.CodeReference = ref

	appBoost := 0.0
	if len(app) > 0 {
		corr := a.deps.Correlator.Correlate(mergedEvents(auto, app), signals)
		if corr.Matched {
			cls.Evidence = append(cls.Evidence, corr.Evidence...)
			if cls.FailureType == model.ProductDefect {
				appBoost = correlate.ProductDefectBoost
				cls.Reason += " [Application logs confirm product error]"
			}
		}
	}

	histBoost := 0.0
	if a.deps.Tracker != nil && len(signals) > 0 {
		seenAt := res.Timestamp
		if seenAt.IsZero() {
			seenAt = time.Now().UTC()
		}
		histBoost = a.deps.Tracker.Record(ctx, signals, seenAt)
		if a.deps.Metrics != nil {
			for range signals {
				a.deps.Metrics.RecordPatternUpsert()
			}
		}
	}

	deterministic := calibrate.Deterministic(calibrate.Inputs{
		RuleFired:         len(cls.RulesApplied) > 0,
		RuleConfidence:    cls.Confidence,
		SignalConfidences: signalConfidences(signals),
		HistoryBoost:      histBoost,
		AppLogBoost:       appBoost,
	})
	cls.Confidence = deterministic

	a.enrichClassification(ctx, cls, deterministic, enrich.Context{
		TestName:      res.TestName,
		Framework:     res.Framework,
		Signals:       signals,
		CodeReference: ref,
		Evidence:      cls.Evidence,
	})

	res.Signals = signals
	res.Classification = cls
	sanitizeResult(res)
	return res
}

// enrichClassification applies the optional AI layer. The failure type is
// immutable here: the insight may only nudge confidence within its bucket
// and attach advisory text.
func (a *Analyzer) enrichClassification(ctx context.Context, cls *model.FailureClassification, deterministic float64, ectx enrich.Context) {
	if a.deps.Enricher == nil {
		return
	}

	insight, err := a.deps.Enricher.Enrich(ctx, cls, ectx)
	if err != nil {
		a.logger.Warn("enrichment failed, deterministic result stands",
			zap.String("test_name", ectx.TestName),
			zap.Error(err))
		if a.deps.Metrics != nil {
			a.deps.Metrics.RecordEnrichment(metrics.EnrichmentError)
		}
		return
	}
	if insight == nil {
		return
	}
	if insight.Confidence < a.opts.AIMinConfidence {
		a.logger.Debug("enrichment below confidence floor, discarded",
			zap.String("test_name", ectx.TestName),
			zap.Float64("insight_confidence", insight.Confidence),
			zap.Float64("floor", a.opts.AIMinConfidence))
		if a.deps.Metrics != nil {
			a.deps.Metrics.RecordEnrichment(metrics.EnrichmentDiscarded)
		}
		return
	}
	if insight.SuggestedType != "" && insight.SuggestedType != string(cls.FailureType) {
		a.logger.Debug("enrichment suggested a different failure type, ignored",
			zap.String("suggested", insight.SuggestedType),
			zap.String("kept", string(cls.FailureType)))
	}

	cls.Confidence = calibrate.ApplyAIDelta(deterministic, insight.ConfidenceDelta)
	cls.AIInsights = &model.AIInsights{
		Provider:     insight.Provider,
		Insights:     insight.Insights,
		SuggestedFix: insight.SuggestedFix,
		Confidence:   insight.Confidence,
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordEnrichment(metrics.EnrichmentApplied)
	}
}

// resolveReference picks the stack to resolve: the primary signal's, then
// the first ERROR-or-worse automation event carrying one.
func (a *Analyzer) resolveReference(signals []*model.FailureSignal, auto []model.ExecutionEvent) *model.CodeReference {
	if a.deps.Resolver == nil {
		return nil
	}
	stack := ""
	if primary := model.PrimarySignal(signals); primary != nil {
		stack = primary.Stacktrace
	}
	if stack == "" {
		for i := range auto {
			if auto[i].Level.AtLeast(model.LevelError) && auto[i].Stacktrace != "" {
				stack = auto[i].Stacktrace
				break
			}
		}
	}
	if stack == "" {
		return nil
	}
	return a.deps.Resolver.Resolve(stack)
}

// finish records the outcome on the span, metrics, and audit trail.
func (a *Analyzer) finish(ctx context.Context, span trace.Span, res *model.AnalysisResult, elapsed time.Duration) {
	if res.Classification != nil {
		tracing.SetClassification(span, string(res.Classification.FailureType), res.Classification.Confidence)
	}
	if res.Error != "" {
		tracing.RecordError(span, fmt.Errorf("analysis failed: %s", res.Error))
	} else {
		tracing.SetSuccess(span)
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordAnalysis(res.Framework, res.Status, elapsed)
		if res.Classification != nil {
			a.deps.Metrics.RecordClassification(res.Classification.FailureType)
		}
	}
	if a.deps.Audit != nil {
		a.deps.Audit.LogAnalysis(ctx, a.runID, res, elapsed)
	}
}

// errorResult is the fault boundary's output: an ERROR-status result that
// carries the cause code and an UNKNOWN classification at confidence zero.
func (a *Analyzer) errorResult(input TestInput, serr *errors.StructuredError) *model.AnalysisResult {
	return &model.AnalysisResult{
		TestName:  displayName(input),
		Framework: frameworkHint(input),
		Status:    model.StatusError,
		Error:     string(serr.Code),
		Classification: &model.FailureClassification{
			FailureType: model.UnknownFailure,
			Confidence:  0,
			Reason:      serr.Message,
		},
	}
}

func (a *Analyzer) asStructured(input TestInput, err error) *errors.StructuredError {
	if se := errors.AsStructured(err); se != nil {
		return se
	}
	switch err {
	case context.DeadlineExceeded:
		return errors.NewAnalysisTimeout(displayName(input))
	case context.Canceled:
		return errors.NewAnalysisCancelled(displayName(input))
	}
	return errors.NewInternalError(err.Error())
}

// sanitizeResult masks secrets in everything report-bound: the
// classification text, the signals, and the code snippet.
func sanitizeResult(res *model.AnalysisResult) {
	if cls := res.Classification; cls != nil {
		cls.Reason = security.MaskSensitiveData(cls.Reason)
		cls.Evidence = security.SanitizeEvidence(cls.Evidence)
		if cls.AIInsights != nil {
			cls.AIInsights.Insights = security.SanitizeEvidence(cls.AIInsights.Insights)
			cls.AIInsights.SuggestedFix = security.MaskSensitiveData(cls.AIInsights.SuggestedFix)
		}
	}
	for _, sig := range res.Signals {
		sig.Message = security.MaskSensitiveData(sig.Message)
		sig.Stacktrace = security.SanitizeSnippet(sig.Stacktrace)
	}
	if res.CodeReference != nil {
		res.CodeReference.Snippet = security.SanitizeSnippet(res.CodeReference.Snippet)
	}
}

// filterForTest narrows a suite log to the named test. Events the adapter
// could not attribute stay in; when the name never appears the whole log
// is treated as this test's output.
func filterForTest(events []model.ExecutionEvent, testName string) []model.ExecutionEvent {
	if testName == "" {
		return events
	}
	named := false
	foreign := false
	for i := range events {
		switch events[i].TestName {
		case "", testName:
			if events[i].TestName == testName {
				named = true
			}
		default:
			foreign = true
		}
	}
	if !named || !foreign {
		return events
	}
	out := make([]model.ExecutionEvent, 0, len(events))
	for _, ev := range events {
		if ev.TestName == "" || ev.TestName == testName {
			out = append(out, ev)
		}
	}
	return out
}

// deriveStatus folds explicit per-test verdict events into one status,
// worst wins. Logs without verdict events fall back to severity: any
// ERROR-level event or stacktrace means FAIL.
func deriveStatus(events []model.ExecutionEvent) (model.TestStatus, *model.ExecutionEvent) {
	rank := func(s model.TestStatus) int {
		switch s {
		case model.StatusError:
			return 3
		case model.StatusFail:
			return 2
		case model.StatusSkip:
			return 1
		default:
			return 0
		}
	}

	var (
		worst   model.TestStatus
		worstEv *model.ExecutionEvent
	)
	for i := range events {
		raw, ok := events[i].Metadata[model.MetadataStatus]
		if !ok {
			continue
		}
		st, ok := model.ParseTestStatus(raw)
		if !ok {
			continue
		}
		if worstEv == nil || rank(st) > rank(worst) {
			worst, worstEv = st, &events[i]
		}
	}
	if worstEv != nil {
		return worst, worstEv
	}

	for i := range events {
		if events[i].Level.AtLeast(model.LevelError) || events[i].Stacktrace != "" {
			return model.StatusFail, nil
		}
	}
	return model.StatusPass, nil
}

// durationMS prefers the verdict event's recorded duration, then the span
// between the first and last event timestamps.
func durationMS(events []model.ExecutionEvent, statusEv *model.ExecutionEvent) int64 {
	if statusEv != nil {
		if raw := statusEv.Metadata[model.MetadataDurationMS]; raw != "" {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	first, last := firstTimestamp(events), lastTimestamp(events)
	if !first.IsZero() && last.After(first) {
		return last.Sub(first).Milliseconds()
	}
	return 0
}

func firstTimestamp(events []model.ExecutionEvent) time.Time {
	for i := range events {
		if !events[i].Timestamp.IsZero() {
			return events[i].Timestamp
		}
	}
	return time.Time{}
}

func lastTimestamp(events []model.ExecutionEvent) time.Time {
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].Timestamp.IsZero() {
			return events[i].Timestamp
		}
	}
	return time.Time{}
}

// resultName keeps the input's name when given; otherwise the first name
// an adapter attributed, otherwise "unknown".
func resultName(input TestInput, events []model.ExecutionEvent) string {
	if input.TestName != "" {
		return input.TestName
	}
	for i := range events {
		if events[i].TestName != "" {
			return events[i].TestName
		}
	}
	return "unknown"
}

func displayName(input TestInput) string {
	if input.TestName != "" {
		return input.TestName
	}
	return "unknown"
}

// detectedFramework reads the adapter name off the events; before parsing
// only the source hint is available.
func detectedFramework(events []model.ExecutionEvent, input TestInput) string {
	for i := range events {
		if events[i].LogSourceType == model.SourceAutomation && events[i].Source != "" {
			return events[i].Source
		}
	}
	return frameworkHint(input)
}

func frameworkHint(input TestInput) string {
	for _, src := range input.Sources.Automation {
		if src.Framework != "" {
			return src.Framework
		}
	}
	return "unknown"
}

func mergedEvents(auto, app []model.ExecutionEvent) []*model.ExecutionEvent {
	out := make([]*model.ExecutionEvent, 0, len(auto)+len(app))
	for i := range auto {
		out = append(out, &auto[i])
	}
	for i := range app {
		out = append(out, &app[i])
	}
	return out
}

func signalConfidences(signals []*model.FailureSignal) []float64 {
	out := make([]float64, len(signals))
	for i, sig := range signals {
		out[i] = sig.Confidence
	}
	return out
}
