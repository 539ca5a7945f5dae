// Package audit keeps a structured trail of analysis and gate decisions.
// Entries go to the zap logger and to an in-memory ring for inspection.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
	"github.com/tareqmamari/execintel/internal/tracing"
)

// Pipeline stages recorded in the trail.
const (
	StageAnalysis = "analysis"
	StageGate     = "gate"
)

// Entry is one audit record.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	TraceID     string            `json:"trace_id,omitempty"`
	SpanID      string            `json:"span_id,omitempty"`
	RunID       string            `json:"run_id"`
	Stage       string            `json:"stage"`
	TestName    string            `json:"test_name,omitempty"`
	Framework   string            `json:"framework,omitempty"`
	Status      string            `json:"status,omitempty"`
	FailureType string            `json:"failure_type,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Duration    time.Duration     `json:"duration_ms"`
	Success     bool              `json:"success"`
	ErrorCode   string            `json:"error_code,omitempty"`
	ErrorMsg    string            `json:"error_message,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// Logger records audit entries.
type Logger struct {
	enabled bool
	logger  *zap.Logger

	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates an audit logger keeping the last 1000 entries in memory.
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		entries:    make([]Entry, 0, 1000),
		maxEntries: 1000,
	}
}

// Log records an entry, filling in id, timestamp, and trace identity.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if !l.enabled {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	traceInfo := tracing.FromContext(ctx)
	if traceInfo.TraceID != "" {
		entry.TraceID = traceInfo.TraceID
	}
	if traceInfo.SpanID != "" {
		entry.SpanID = traceInfo.SpanID
	}

	fields := []zap.Field{
		zap.Time("timestamp", entry.Timestamp),
		zap.String("run_id", entry.RunID),
		zap.String("stage", entry.Stage),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.TestName != "" {
		fields = append(fields, zap.String("test_name", entry.TestName))
	}
	if entry.Framework != "" {
		fields = append(fields, zap.String("framework", entry.Framework))
	}
	if entry.Status != "" {
		fields = append(fields, zap.String("status", entry.Status))
	}
	if entry.FailureType != "" {
		fields = append(fields, zap.String("failure_type", entry.FailureType))
		fields = append(fields, zap.Float64("confidence", entry.Confidence))
	}
	if entry.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", entry.ErrorCode))
	}
	if entry.ErrorMsg != "" {
		fields = append(fields, zap.String("error_message", entry.ErrorMsg))
	}

	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// LogAnalysis records the outcome of one per-test analysis.
func (l *Logger) LogAnalysis(ctx context.Context, runID string, res *model.AnalysisResult, duration time.Duration) {
	entry := Entry{
		RunID:     runID,
		Stage:     StageAnalysis,
		TestName:  res.TestName,
		Framework: res.Framework,
		Status:    string(res.Status),
		Duration:  duration,
		Success:   res.Error == "",
	}
	if res.Classification != nil {
		entry.FailureType = string(res.Classification.FailureType)
		entry.Confidence = res.Classification.Confidence
	}
	if res.Error != "" {
		entry.ErrorCode = res.Error
	}
	l.Log(ctx, entry)
}

// LogGateDecision records the CI gate verdict for a batch.
func (l *Logger) LogGateDecision(ctx context.Context, runID string, failOn []model.FailureType, failed bool, summary model.Summary) {
	details := map[string]string{
		"total": strconv.Itoa(summary.Total),
	}
	for ft, n := range summary.ByType {
		if n > 0 {
			details[string(ft)] = strconv.Itoa(n)
		}
	}
	types := make([]string, len(failOn))
	for i, ft := range failOn {
		types[i] = string(ft)
	}

	entry := Entry{
		RunID:   runID,
		Stage:   StageGate,
		Success: !failed,
		Details: details,
	}
	if len(types) > 0 {
		entry.Details["fail_on"] = strings.Join(types, ",")
	}
	l.Log(ctx, entry)
}

// GetRecentEntries returns up to limit entries, newest first.
func (l *Logger) GetRecentEntries(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	start := len(l.entries) - limit

	result := make([]Entry, limit)
	copy(result, l.entries[start:])
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// GetEntriesByStage returns up to limit entries for one stage, newest first.
func (l *Logger) GetEntriesByStage(stage string, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if l.entries[i].Stage == stage {
			result = append(result, l.entries[i])
		}
	}
	return result
}

// GetEntriesByRun returns all entries for one run, oldest first.
func (l *Logger) GetEntriesByRun(runID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for _, entry := range l.entries {
		if entry.RunID == runID {
			result = append(result, entry)
		}
	}
	return result
}

// Stats aggregates the in-memory trail.
type Stats struct {
	TotalEntries    int            `json:"total_entries"`
	SuccessRate     float64        `json:"success_rate_pct"`
	AverageDuration time.Duration  `json:"average_duration"`
	StageCounts     map[string]int `json:"stage_counts"`
	StatusCounts    map[string]int `json:"status_counts"`
	TypeCounts      map[string]int `json:"type_counts"`
	ErrorCounts     map[string]int `json:"error_counts"`
}

// GetStats returns aggregated statistics over the buffered entries.
func (l *Logger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries: len(l.entries),
		StageCounts:  make(map[string]int),
		StatusCounts: make(map[string]int),
		TypeCounts:   make(map[string]int),
		ErrorCounts:  make(map[string]int),
	}

	var successCount int
	var totalDuration time.Duration
	for _, entry := range l.entries {
		stats.StageCounts[entry.Stage]++
		if entry.Status != "" {
			stats.StatusCounts[entry.Status]++
		}
		if entry.FailureType != "" {
			stats.TypeCounts[entry.FailureType]++
		}
		if entry.Success {
			successCount++
		} else if entry.ErrorCode != "" {
			stats.ErrorCounts[entry.ErrorCode]++
		}
		totalDuration += entry.Duration
	}

	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
		stats.AverageDuration = totalDuration / time.Duration(len(l.entries))
	}
	return stats
}

// ToJSON returns the stats as indented JSON.
func (s Stats) ToJSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Clear drops all buffered entries.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// IsEnabled reports whether audit logging is on.
func (l *Logger) IsEnabled() bool {
	return l.enabled
}
