// Package model defines the events, signals, classifications, and results
// shared by every stage of the analysis pipeline.
package model

import (
	"strings"
	"time"
)

// LogLevel is the canonical severity of a parsed log record.
type LogLevel string

// Canonical log levels, ordered from least to most severe.
const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
	LevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// AtLeast reports whether l is at or above min.
func (l LogLevel) AtLeast(min LogLevel) bool {
	return levelRank[l] >= levelRank[min]
}

// ParseLogLevel maps framework-specific level names onto the canonical set.
// Unknown names default to INFO.
func ParseLogLevel(raw string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TRACE", "VERBOSE", "DEBUG", "FINE", "FINER", "FINEST", "DBUG":
		return LevelDebug
	case "INFO", "INFORMATION", "NOTICE":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "ERR", "SEVERE", "FAIL", "EROR":
		return LevelError
	case "FATAL", "CRITICAL", "CRIT", "PANIC", "EMERGENCY":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// LogSourceType tags an event with the kind of log it came from. Adapters
// set it at creation; nothing downstream ever infers or rewrites it.
type LogSourceType string

// The two log source families.
const (
	SourceAutomation  LogSourceType = "AUTOMATION"
	SourceApplication LogSourceType = "APPLICATION"
)

// ExecutionEvent is one normalized log record. An event is created by an
// adapter and is immutable afterwards; downstream components only read it.
type ExecutionEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	Level         LogLevel          `json:"level"`
	Source        string            `json:"source"`
	Message       string            `json:"message"`
	LogSourceType LogSourceType     `json:"log_source_type"`
	TestName      string            `json:"test_name,omitempty"`
	TestFile      string            `json:"test_file,omitempty"`
	ExceptionType string            `json:"exception_type,omitempty"`
	Stacktrace    string            `json:"stacktrace,omitempty"`
	ServiceName   string            `json:"service_name,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
