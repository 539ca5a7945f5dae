package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWith(prometheus.NewRegistry(), zap.NewNop())
}

func TestRecordAnalysis(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordAnalysis("pytest", model.StatusFail, 20*time.Millisecond)
	m.RecordAnalysis("pytest", model.StatusPass, 10*time.Millisecond)
	m.RecordAnalysis("junit", model.StatusError, 30*time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, uint64(3), stats.TotalAnalyses)
	assert.Equal(t, uint64(2), stats.FailedAnalyses)
	assert.Equal(t, uint64(1), stats.ByStatus[model.StatusFail])
	assert.Equal(t, uint64(1), stats.ByStatus[model.StatusPass])
	assert.Equal(t, uint64(1), stats.ByStatus[model.StatusError])

	assert.Equal(t, 20*time.Millisecond, stats.AverageDuration)
	assert.Equal(t, 30*time.Millisecond, stats.MaxDuration)
	assert.Equal(t, 10*time.Millisecond, stats.MinDuration)
}

func TestRecordClassificationAndSignals(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordClassification(model.ProductDefect)
	m.RecordClassification(model.ProductDefect)
	m.RecordClassification(model.AutomationDefect)
	m.RecordSignal(model.SignalNullPointer)
	m.RecordSignal(model.SignalHTTPError)
	m.RecordRuleHit("selenium-stale-element")
	m.RecordRuleHit("selenium-stale-element")

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.ByFailureType[model.ProductDefect])
	assert.Equal(t, uint64(1), stats.ByFailureType[model.AutomationDefect])
	assert.Equal(t, uint64(1), stats.BySignalType[model.SignalNullPointer])
	assert.Equal(t, uint64(1), stats.BySignalType[model.SignalHTTPError])
	assert.Equal(t, uint64(2), stats.RuleHits["selenium-stale-element"])
}

func TestRecordPatternAndEnrichment(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPatternUpsert()
	m.RecordPatternUpsert()
	m.RecordPatternError()
	m.RecordEnrichment(EnrichmentApplied)
	m.RecordEnrichment(EnrichmentDiscarded)
	m.RecordEnrichment(EnrichmentError)
	m.RecordEnrichment(EnrichmentApplied)

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.PatternUpserts)
	assert.Equal(t, uint64(1), stats.PatternErrors)
	assert.Equal(t, uint64(2), stats.Enrichment[EnrichmentApplied])
	assert.Equal(t, uint64(1), stats.Enrichment[EnrichmentDiscarded])
	assert.Equal(t, uint64(1), stats.Enrichment[EnrichmentError])
}

func TestGetStatsReturnsCopies(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordAnalysis("pytest", model.StatusFail, time.Millisecond)

	stats := m.GetStats()
	stats.ByStatus[model.StatusFail] = 99

	assert.Equal(t, uint64(1), m.GetStats().ByStatus[model.StatusFail])
}

func TestGetStatsEmpty(t *testing.T) {
	m := newTestMetrics(t)

	stats := m.GetStats()
	assert.Zero(t, stats.TotalAnalyses)
	assert.Zero(t, stats.AverageDuration)
	assert.Empty(t, stats.ByStatus)
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				m.RecordAnalysis("robot", model.StatusFail, time.Millisecond)
				m.RecordSignal(model.SignalTimeout)
				m.RecordEnrichment(EnrichmentApplied)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	stats := m.GetStats()
	require.Equal(t, uint64(800), stats.TotalAnalyses)
	assert.Equal(t, uint64(800), stats.BySignalType[model.SignalTimeout])
	assert.Equal(t, uint64(800), stats.Enrichment[EnrichmentApplied])
}
