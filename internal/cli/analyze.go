package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/analyzer"
	"github.com/tareqmamari/execintel/internal/audit"
	"github.com/tareqmamari/execintel/internal/config"
	"github.com/tareqmamari/execintel/internal/correlate"
	"github.com/tareqmamari/execintel/internal/enrich"
	apperrors "github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/extract"
	"github.com/tareqmamari/execintel/internal/group"
	"github.com/tareqmamari/execintel/internal/metrics"
	"github.com/tareqmamari/execintel/internal/model"
	"github.com/tareqmamari/execintel/internal/pattern"
	"github.com/tareqmamari/execintel/internal/report"
	"github.com/tareqmamari/execintel/internal/resolver"
	"github.com/tareqmamari/execintel/internal/router"
	"github.com/tareqmamari/execintel/internal/rules"
	"github.com/tareqmamari/execintel/internal/tracing"
)

// maxStderrErrors bounds the per-test error summary printed to stderr.
const maxStderrErrors = 5

type analyzeParams struct {
	configPath string
	logFiles   []string
	logDir     string
	appLogs    []string
	framework  string
	sourceRoot string
	rulePaths  []string
	output     string
	format     string
	failOn     string
	parallel   int
	noPatterns bool
}

func (a *app) newAnalyzeCmd() *cobra.Command {
	p := &analyzeParams{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze test automation logs and emit a classified report",
		Long: `Analyze parses the given automation logs (one test per file), extracts
failure signals, classifies each failed test, correlates application
logs when provided, and emits the result document. The exit code
reflects the gate: 0 passed, 1 failed, 2 configuration error, 3
internal error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAnalyze(cmd, p)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&p.configPath, "config", "", "path to a YAML config file")
	flags.StringArrayVar(&p.logFiles, "log-file", nil, "automation log file, one test per file (repeatable)")
	flags.StringVar(&p.logDir, "log-dir", "", "directory of automation logs, one test per file")
	flags.StringArrayVar(&p.appLogs, "app-log", nil, "application log correlated against every test (repeatable)")
	flags.StringVar(&p.framework, "framework", "", "adapter name, empty = auto-detect")
	flags.StringVar(&p.sourceRoot, "source-root", "", "workspace root for code reference resolution")
	flags.StringArrayVar(&p.rulePaths, "rules", nil, "user rule pack, wins over embedded packs (repeatable)")
	flags.StringVar(&p.output, "output", "", "write the report to a file instead of stdout")
	flags.StringVar(&p.format, "format", "json", "output format: json, text, or summary")
	flags.StringVar(&p.failOn, "fail-on", "PRODUCT_DEFECT", "failure types that fail the gate, comma separated (\"none\" disables)")
	flags.IntVar(&p.parallel, "parallel", 0, "batch worker count, 0 = analysis.workers from config")
	flags.BoolVar(&p.noPatterns, "no-patterns", false, "track failure patterns in memory only, without the store file")
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, p *analyzeParams) error {
	ctx := cmd.Context()

	cfg, err := config.Load(p.configPath)
	if err != nil {
		return apperrors.NewInvalidConfig(err.Error())
	}
	applyFlags(cfg, p)
	if err := cfg.ValidateForAnalysis(); err != nil {
		return apperrors.NewInvalidConfig(err.Error())
	}

	format, err := report.ParseFormat(p.format)
	if err != nil {
		return apperrors.NewInvalidFlag("format", err.Error())
	}
	failOn, err := parseFailOn(p.failOn)
	if err != nil {
		return apperrors.NewInvalidFlag("fail-on", err.Error())
	}

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "execintel",
		ServiceVersion: a.info.Version,
		Environment:    environment(),
		Enabled:        cfg.Observability.Tracing,
	})
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to initialize tracing: %v", err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			a.logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// A fresh registry per invocation: nothing scrapes a CLI, and repeated
	// in-process runs must not collide on collector registration.
	met := metrics.NewWith(prometheus.NewRegistry(), a.logger)
	auditLog := audit.NewLogger(a.logger, cfg.Observability.Audit)

	deps, cleanup, err := a.buildDeps(cfg, p.noPatterns, met, auditLog)
	if err != nil {
		return err
	}
	defer cleanup()

	inputs, err := collectInputs(cfg)
	if err != nil {
		return err
	}

	eng := analyzer.New(deps, analyzer.Options{
		Timeout:         cfg.AnalysisTimeout(),
		Workers:         cfg.WorkerCount(),
		AIMinConfidence: cfg.AI.MinConfidence,
	})

	a.logger.Info("analysis starting",
		zap.String("run_id", eng.RunID()),
		zap.Int("tests", len(inputs)),
		zap.Int("workers", cfg.WorkerCount()),
		zap.Bool("ai_enabled", cfg.AI.Enabled))

	started := time.Now()
	results := eng.AnalyzeBatch(ctx, inputs)
	summary := analyzer.Summarize(results)

	grouper := group.New(group.Config{
		SimilarityThreshold: cfg.Grouping.SimilarityThreshold,
		TimeWindow:          cfg.GroupingWindow(),
		MinGroupSize:        cfg.Grouping.MinGroupSize,
	}, a.logger)
	groups := grouper.Group(results)

	failed := analyzer.ShouldFailCI(results, failOn)
	auditLog.LogGateDecision(ctx, eng.RunID(), failOn, failed, summary)

	a.logger.Info("analysis finished",
		zap.String("run_id", eng.RunID()),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("groups", len(groups)),
		zap.Bool("gate_failed", failed))

	rep := &report.Report{
		Summary: &summary,
		Results: results,
		Groups:  groups,
		Gate:    &report.Gate{FailOn: failOn, Failed: failed},
	}
	if err := writeReport(cmd.OutOrStdout(), p.output, format, rep); err != nil {
		return err
	}
	printErrorSummary(cmd.ErrOrStderr(), results)
	met.LogStats()

	a.gateFailed = failed
	return nil
}

// applyFlags layers the command line over the loaded configuration. Log
// source flags replace the configured automation sources; everything else
// overrides field by field.
func applyFlags(cfg *config.Config, p *analyzeParams) {
	if len(p.logFiles) > 0 || p.logDir != "" {
		cfg.Execution.Logs.Automation = append([]string{}, p.logFiles...)
		if p.logDir != "" {
			cfg.Execution.Logs.Automation = append(cfg.Execution.Logs.Automation, p.logDir)
		}
	}
	for _, path := range p.appLogs {
		cfg.Execution.Logs.Application = append(cfg.Execution.Logs.Application, config.ApplicationLog{Path: path})
	}
	if p.framework != "" {
		cfg.Execution.Framework = p.framework
	}
	if p.sourceRoot != "" {
		cfg.Execution.SourceRoot = p.sourceRoot
	}
	if len(p.rulePaths) > 0 {
		cfg.Rules.Paths = append(cfg.Rules.Paths, p.rulePaths...)
	}
	if p.parallel > 0 {
		cfg.Analysis.Workers = p.parallel
	}
}

// buildDeps constructs the pipeline stages from the configuration. The
// returned cleanup closes the pattern store.
func (a *app) buildDeps(cfg *config.Config, noPatterns bool, met *metrics.Metrics, auditLog *audit.Logger) (analyzer.Deps, func(), error) {
	engine, err := rules.Load(rules.Options{
		Overrides: ruleOverrides(cfg.Rules.Overrides),
		UserPaths: cfg.Rules.Paths,
		Logger:    a.logger,
	})
	if err != nil {
		return analyzer.Deps{}, nil, err
	}

	deps := analyzer.Deps{
		Router:    router.New(nil, nil, a.logger),
		Extractor: extract.NewRunner(performanceThresholds(cfg), a.logger),
		Engine:    engine,
		Resolver: resolver.New(resolver.Config{
			SourceRoot:    cfg.Execution.SourceRoot,
			SnippetRadius: cfg.Resolver.SnippetRadius,
			SkipPrefixes:  cfg.Resolver.SkipPrefixes,
		}, a.logger),
		Correlator: correlate.New(correlate.Config{
			Window:          cfg.CorrelationWindow(),
			MinSharedTokens: cfg.Correlation.MinSharedTokens,
		}, a.logger),
		Metrics: met,
		Audit:   auditLog,
		Logger:  a.logger,
	}

	cleanup := func() {}
	if cfg.Pattern.Enabled {
		store, closer := a.openPatternStore(cfg, noPatterns, met)
		deps.Tracker = pattern.NewTracker(store, cfg.Pattern.NCap, a.logger)
		cleanup = closer
	}

	if cfg.AI.Enabled {
		enricher, err := enrich.NewHTTP(enrich.HTTPConfig{
			Endpoint:          cfg.AI.Endpoint,
			APIKey:            cfg.AI.APIKey,
			Model:             cfg.AI.Model,
			Timeout:           cfg.AITimeout(),
			MaxRetries:        cfg.AI.MaxRetries,
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
			Burst:             cfg.AI.Burst,
		}, a.info.Version, a.logger)
		if err != nil {
			cleanup()
			return analyzer.Deps{}, nil, err
		}
		deps.Enricher = enricher
	}

	return deps, cleanup, nil
}

// openPatternStore returns the pattern store and its closer. Storage being
// unavailable never blocks analysis: a failed open degrades to the
// in-memory store for this run.
func (a *app) openPatternStore(cfg *config.Config, noPatterns bool, met *metrics.Metrics) (pattern.Store, func()) {
	if noPatterns {
		return pattern.NewMemoryStore(), func() {}
	}
	store, err := pattern.NewSQLiteStore(cfg.Pattern.StorePath)
	if err != nil {
		a.logger.Warn("pattern store unavailable, tracking in memory for this run",
			zap.String("path", cfg.Pattern.StorePath), zap.Error(err))
		met.RecordPatternError()
		return pattern.NewMemoryStore(), func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("pattern store close failed", zap.Error(err))
		}
	}
}

// collectInputs expands the configured automation sources into one test
// input per log file. Directories contribute their immediate visible files
// in name order; the test name is the file base without its extension.
func collectInputs(cfg *config.Config) ([]analyzer.TestInput, error) {
	var paths []string
	for _, p := range cfg.Execution.Logs.Automation {
		expanded, err := expandPath(p)
		if err != nil {
			return nil, err
		}
		paths = append(paths, expanded...)
	}
	if len(paths) == 0 {
		return nil, apperrors.NewNoAutomationLogs()
	}

	framework := cfg.Execution.Framework
	if strings.EqualFold(framework, "auto") {
		framework = ""
	}

	appSources := make([]model.LogSource, 0, len(cfg.Execution.Logs.Application))
	for _, al := range cfg.Execution.Logs.Application {
		appSources = append(appSources, model.LogSource{Path: al.Path, ServiceName: al.Service})
	}

	inputs := make([]analyzer.TestInput, 0, len(paths))
	for _, path := range paths {
		inputs = append(inputs, analyzer.TestInput{
			TestName: testNameFor(path),
			Sources: model.LogSourceCollection{
				Automation:  []model.LogSource{{Path: path, Framework: framework}},
				Application: appSources,
			},
		})
	}
	return inputs, nil
}

// expandPath lists a directory's visible files, or returns the path itself.
// An unreadable file is left in place for the per-test fault boundary to
// report; only a directory that cannot be listed is fatal.
func expandPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, apperrors.NewInvalidConfig(fmt.Sprintf("cannot list log directory %s: %v", path, err))
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	return files, nil
}

func testNameFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseFailOn parses the comma-separated gate list. "none" disables gating.
func parseFailOn(raw string) ([]model.FailureType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return []model.FailureType{}, nil
	}
	var failOn []model.FailureType
	for _, part := range strings.Split(raw, ",") {
		ft, ok := model.ParseFailureType(part)
		if !ok {
			return nil, fmt.Errorf("unknown failure type %q", strings.TrimSpace(part))
		}
		failOn = append(failOn, ft)
	}
	return failOn, nil
}

func ruleOverrides(overrides []config.RuleOverride) []rules.Rule {
	converted := make([]rules.Rule, 0, len(overrides))
	for _, o := range overrides {
		converted = append(converted, rules.Rule{
			ID:          o.ID,
			Description: o.Description,
			FailureType: o.FailureType,
			Confidence:  o.Confidence,
			Priority:    o.Priority,
			Framework:   o.Framework,
			MatchAny:    o.MatchAny,
			RequiresAll: o.RequiresAll,
			Excludes:    o.Excludes,
		})
	}
	return converted
}

func performanceThresholds(cfg *config.Config) extract.Thresholds {
	return extract.Thresholds{
		Unit:        secondsToDuration(cfg.Performance.Unit),
		Integration: secondsToDuration(cfg.Performance.Integration),
		E2E:         secondsToDuration(cfg.Performance.E2E),
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func environment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

// writeReport emits the result document to the output path, or to w when no
// path is given. The document is written once analysis ran, whatever the
// per-test outcomes were.
func writeReport(w io.Writer, path string, format report.Format, rep *report.Report) error {
	if path == "" {
		if err := report.Write(w, format, rep); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to write report: %v", err))
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewInvalidConfig(fmt.Sprintf("cannot create output file: %v", err))
	}
	if err := report.Write(f, format, rep); err != nil {
		_ = f.Close()
		return apperrors.NewInternalError(fmt.Sprintf("failed to write report: %v", err))
	}
	if err := f.Close(); err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to write report: %v", err))
	}
	return nil
}

// printErrorSummary lists the first few tests whose analysis itself failed,
// so a red CI job shows the cause without opening the report.
func printErrorSummary(w io.Writer, results []*model.AnalysisResult) {
	var errored []*model.AnalysisResult
	for _, res := range results {
		if res.Status == model.StatusError {
			errored = append(errored, res)
		}
	}
	if len(errored) == 0 {
		return
	}
	fmt.Fprintf(w, "%d test(s) could not be analyzed:\n", len(errored))
	for i, res := range errored {
		if i == maxStderrErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(errored)-maxStderrErrors)
			break
		}
		fmt.Fprintf(w, "  %s: %s\n", res.TestName, res.Error)
	}
}
