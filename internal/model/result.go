package model

import (
	"strings"
	"time"
)

// TestStatus is the outcome of one test according to its log.
type TestStatus string

// Test outcomes.
const (
	StatusPass  TestStatus = "PASS"
	StatusFail  TestStatus = "FAIL"
	StatusError TestStatus = "ERROR"
	StatusSkip  TestStatus = "SKIP"
)

// ParseTestStatus resolves framework outcome strings onto the canonical set.
func ParseTestStatus(raw string) (TestStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PASS", "PASSED", "OK", "SUCCESS":
		return StatusPass, true
	case "FAIL", "FAILED", "FAILURE":
		return StatusFail, true
	case "ERROR", "BROKEN":
		return StatusError, true
	case "SKIP", "SKIPPED", "IGNORED", "PENDING", "NOTRUN", "INCONCLUSIVE":
		return StatusSkip, true
	default:
		return "", false
	}
}

// AnalysisResult is the per-test output of the pipeline. Classification is
// nil for PASS and SKIP. Error carries the cause for ERROR-status results
// produced by the per-test fault boundary (for example ANALYSIS_TIMEOUT).
type AnalysisResult struct {
	TestName           string                 `json:"test_name"`
	Framework          string                 `json:"framework"`
	Status             TestStatus             `json:"status"`
	Classification     *FailureClassification `json:"classification,omitempty"`
	Events             []ExecutionEvent       `json:"events,omitempty"`
	Signals            []*FailureSignal       `json:"signals,omitempty"`
	CodeReference      *CodeReference         `json:"code_reference,omitempty"`
	DurationMS         int64                  `json:"duration_ms"`
	Timestamp          time.Time              `json:"timestamp"`
	HasApplicationLogs bool                   `json:"has_application_logs"`
	Error              string                 `json:"error,omitempty"`
	Metadata           map[string]string      `json:"metadata,omitempty"`
}

// Failed reports whether the result represents a non-passing test that
// carries a classification worth gating on.
func (r *AnalysisResult) Failed() bool {
	return r.Status == StatusFail || r.Status == StatusError
}

// PatternCount ties one tracked pattern to the number of tests it affected
// within a batch.
type PatternCount struct {
	PatternHash string     `json:"pattern_hash"`
	Message     string     `json:"message"`
	SignalType  SignalType `json:"signal_type"`
	Tests       int        `json:"tests"`
}

// Summary aggregates a batch of results for reporting and gating.
type Summary struct {
	Total       int                      `json:"total"`
	ByType      map[FailureType]int      `json:"by_type"`
	ByBucket    map[ConfidenceBucket]int `json:"by_confidence_bucket"`
	ByStatus    map[TestStatus]int       `json:"by_status"`
	TopPatterns []PatternCount           `json:"top_patterns,omitempty"`
}
