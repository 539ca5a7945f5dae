// Package metrics tracks pipeline counters with both internal atomic
// state for fast GetStats access and Prometheus metrics for scraping.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

const namespace = "execintel"

// Prometheus metric labels
const (
	labelFramework = "framework"
	labelStatus    = "status"
	labelType      = "type"
	labelRule      = "rule"
	labelOutcome   = "outcome"
)

// Enrichment outcomes.
const (
	EnrichmentApplied   = "applied"
	EnrichmentDiscarded = "discarded"
	EnrichmentError     = "error"
)

// Metrics tracks analysis activity. All methods are safe for concurrent
// use by batch workers.
type Metrics struct {
	totalAnalyses  atomic.Uint64
	failedAnalyses atomic.Uint64

	// Duration tracking, microseconds
	totalDuration atomic.Int64
	durationCount atomic.Uint64
	maxDuration   atomic.Int64
	minDuration   atomic.Int64

	patternUpserts atomic.Uint64
	patternErrors  atomic.Uint64

	mu            sync.RWMutex
	byStatus      map[model.TestStatus]uint64
	byFailureType map[model.FailureType]uint64
	bySignalType  map[model.SignalType]uint64
	ruleHits      map[string]uint64
	enrichment    map[string]uint64

	logger *zap.Logger

	promAnalyses        *prometheus.CounterVec
	promClassifications *prometheus.CounterVec
	promSignals         *prometheus.CounterVec
	promRuleHits        *prometheus.CounterVec
	promPatternUpserts  prometheus.Counter
	promPatternErrors   prometheus.Counter
	promEnrichment      *prometheus.CounterVec
	promDuration        prometheus.Histogram
}

// New registers the metrics with the default Prometheus registry.
func New(logger *zap.Logger) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, logger)
}

// NewWith registers the metrics with the given registerer. Tests pass a
// fresh registry so repeated construction cannot collide.
func NewWith(reg prometheus.Registerer, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		byStatus:      make(map[model.TestStatus]uint64),
		byFailureType: make(map[model.FailureType]uint64),
		bySignalType:  make(map[model.SignalType]uint64),
		ruleHits:      make(map[string]uint64),
		enrichment:    make(map[string]uint64),
		logger:        logger.Named("metrics"),

		promAnalyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyzed tests by framework and status",
		}, []string{labelFramework, labelStatus}),
		promClassifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Failure classifications by failure type",
		}, []string{labelType}),
		promSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Extracted failure signals by signal type",
		}, []string{labelType}),
		promRuleHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_hits_total",
			Help:      "Rule evaluations that produced the classification, by rule id",
		}, []string{labelRule}),
		promPatternUpserts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_upserts_total",
			Help:      "Pattern occurrence upserts attempted against the store",
		}),
		promPatternErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_errors_total",
			Help:      "Pattern store operations that failed",
		}),
		promEnrichment: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Enrichment requests by outcome (applied, discarded, error)",
		}, []string{labelOutcome}),
		promDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time spent analyzing one test",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
	}

	m.minDuration.Store(int64(time.Hour))
	return m
}

// RecordAnalysis records one finished per-test analysis.
func (m *Metrics) RecordAnalysis(framework string, status model.TestStatus, duration time.Duration) {
	m.totalAnalyses.Add(1)
	if status == model.StatusFail || status == model.StatusError {
		m.failedAnalyses.Add(1)
	}

	m.promAnalyses.WithLabelValues(framework, string(status)).Inc()
	m.promDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.byStatus[status]++
	m.mu.Unlock()

	m.recordDuration(duration)
}

// RecordClassification records the failure type verdict of one test.
func (m *Metrics) RecordClassification(ft model.FailureType) {
	m.promClassifications.WithLabelValues(string(ft)).Inc()
	m.mu.Lock()
	m.byFailureType[ft]++
	m.mu.Unlock()
}

// RecordSignal records one extracted signal.
func (m *Metrics) RecordSignal(st model.SignalType) {
	m.promSignals.WithLabelValues(string(st)).Inc()
	m.mu.Lock()
	m.bySignalType[st]++
	m.mu.Unlock()
}

// RecordRuleHit records the rule that decided a classification.
func (m *Metrics) RecordRuleHit(ruleID string) {
	m.promRuleHits.WithLabelValues(ruleID).Inc()
	m.mu.Lock()
	m.ruleHits[ruleID]++
	m.mu.Unlock()
}

// RecordPatternUpsert records a successful pattern store write.
func (m *Metrics) RecordPatternUpsert() {
	m.patternUpserts.Add(1)
	m.promPatternUpserts.Inc()
}

// RecordPatternError records a failed pattern store operation.
func (m *Metrics) RecordPatternError() {
	m.patternErrors.Add(1)
	m.promPatternErrors.Inc()
}

// RecordEnrichment records an enrichment request outcome.
func (m *Metrics) RecordEnrichment(outcome string) {
	m.promEnrichment.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.enrichment[outcome]++
	m.mu.Unlock()
}

func (m *Metrics) recordDuration(duration time.Duration) {
	us := duration.Microseconds()

	m.totalDuration.Add(us)
	m.durationCount.Add(1)

	for {
		currentMax := m.maxDuration.Load()
		if us <= currentMax {
			break
		}
		if m.maxDuration.CompareAndSwap(currentMax, us) {
			break
		}
	}
	for {
		currentMin := m.minDuration.Load()
		if us >= currentMin {
			break
		}
		if m.minDuration.CompareAndSwap(currentMin, us) {
			break
		}
	}
}

// Stats is a snapshot of the internal counters.
type Stats struct {
	TotalAnalyses   uint64
	FailedAnalyses  uint64
	ByStatus        map[model.TestStatus]uint64
	ByFailureType   map[model.FailureType]uint64
	BySignalType    map[model.SignalType]uint64
	RuleHits        map[string]uint64
	PatternUpserts  uint64
	PatternErrors   uint64
	Enrichment      map[string]uint64
	AverageDuration time.Duration
	MaxDuration     time.Duration
	MinDuration     time.Duration
}

// GetStats returns a copy of the current counters.
func (m *Metrics) GetStats() Stats {
	m.mu.RLock()
	byStatus := make(map[model.TestStatus]uint64, len(m.byStatus))
	for k, v := range m.byStatus {
		byStatus[k] = v
	}
	byFailureType := make(map[model.FailureType]uint64, len(m.byFailureType))
	for k, v := range m.byFailureType {
		byFailureType[k] = v
	}
	bySignalType := make(map[model.SignalType]uint64, len(m.bySignalType))
	for k, v := range m.bySignalType {
		bySignalType[k] = v
	}
	ruleHits := make(map[string]uint64, len(m.ruleHits))
	for k, v := range m.ruleHits {
		ruleHits[k] = v
	}
	enrichment := make(map[string]uint64, len(m.enrichment))
	for k, v := range m.enrichment {
		enrichment[k] = v
	}
	m.mu.RUnlock()

	var avg time.Duration
	if count := m.durationCount.Load(); count > 0 {
		avgUs := float64(m.totalDuration.Load()) / float64(count)
		avg = time.Duration(avgUs) * time.Microsecond
	}

	return Stats{
		TotalAnalyses:   m.totalAnalyses.Load(),
		FailedAnalyses:  m.failedAnalyses.Load(),
		ByStatus:        byStatus,
		ByFailureType:   byFailureType,
		BySignalType:    bySignalType,
		RuleHits:        ruleHits,
		PatternUpserts:  m.patternUpserts.Load(),
		PatternErrors:   m.patternErrors.Load(),
		Enrichment:      enrichment,
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.maxDuration.Load()) * time.Microsecond,
		MinDuration:     time.Duration(m.minDuration.Load()) * time.Microsecond,
	}
}

// LogStats logs the snapshot; the CLI calls it once at shutdown.
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var failureRate float64
	if stats.TotalAnalyses > 0 {
		failureRate = float64(stats.FailedAnalyses) / float64(stats.TotalAnalyses) * 100
	}

	m.logger.Info("analysis metrics",
		zap.Uint64("total_analyses", stats.TotalAnalyses),
		zap.Uint64("failed_analyses", stats.FailedAnalyses),
		zap.Float64("failure_rate_pct", failureRate),
		zap.Uint64("pattern_upserts", stats.PatternUpserts),
		zap.Uint64("pattern_errors", stats.PatternErrors),
		zap.Duration("avg_duration", stats.AverageDuration),
		zap.Duration("max_duration", stats.MaxDuration),
		zap.Duration("min_duration", stats.MinDuration),
		zap.Any("by_status", stats.ByStatus),
		zap.Any("by_failure_type", stats.ByFailureType),
		zap.Any("enrichment", stats.Enrichment),
	)
}
