package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCategory classifies the type of error
type ErrorCategory string

const (
	// ConfigError indicates invalid or missing configuration; the CLI exits 2
	ConfigError ErrorCategory = "CONFIG_ERROR"
	// AnalysisError indicates a failure inside the analysis pipeline
	AnalysisError ErrorCategory = "ANALYSIS_ERROR"
	// StorageError indicates the pattern store misbehaved
	StorageError ErrorCategory = "STORAGE_ERROR"
	// ExternalError indicates an external dependency (enrichment API) failed
	ExternalError ErrorCategory = "EXTERNAL_ERROR"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	CodeNoAutomationLogs ErrorCode = "NO_AUTOMATION_LOGS"
	CodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	CodeInvalidRulePack  ErrorCode = "INVALID_RULE_PACK"
	CodeInvalidFlag      ErrorCode = "INVALID_FLAG"

	// Analysis errors
	CodeAnalysisTimeout   ErrorCode = "ANALYSIS_TIMEOUT"
	CodeAnalysisCancelled ErrorCode = "ANALYSIS_CANCELLED"
	CodeAnalysisPanic     ErrorCode = "ANALYSIS_PANIC"
	CodeNoEvents          ErrorCode = "NO_EVENTS"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"

	// Storage errors
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	CodeStorageUpsert      ErrorCode = "STORAGE_UPSERT_FAILED"

	// External (enrichment) errors
	CodeEnrichmentTimeout     ErrorCode = "ENRICHMENT_TIMEOUT"
	CodeEnrichmentRateLimited ErrorCode = "ENRICHMENT_RATE_LIMITED"
	CodeEnrichmentUnavailable ErrorCode = "ENRICHMENT_UNAVAILABLE"
	CodeEnrichmentRejected    ErrorCode = "ENRICHMENT_REJECTED"
	CodeNetworkError          ErrorCode = "NETWORK_ERROR"
)

// Process exit codes. Gate failure is a verdict, not an error, so it has a
// code here but no StructuredError.
const (
	ExitOK         = 0
	ExitGateFailed = 1
	ExitConfig     = 2
	ExitInternal   = 3
)

// StructuredError represents a detailed error with category, code, and recovery suggestion
type StructuredError struct {
	Code       ErrorCode     `json:"code"`
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Details    interface{}   `json:"details,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// ToJSON converts the error to JSON string
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","category":"%s","message":"%s"}`, e.Code, e.Category, e.Message)
	}
	return string(bytes)
}

// New creates a new structured error
func New(code ErrorCode, category ErrorCategory, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// WithDetails adds details to the error
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion adds a recovery suggestion to the error
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// Common error constructors

// NewNoAutomationLogs creates the fail-fast error for a run without any
// automation log sources.
func NewNoAutomationLogs() *StructuredError {
	return New(CodeNoAutomationLogs, ConfigError, "No automation log sources configured").
		WithSuggestion("Provide --log-file, --log-dir, or execution.logs.automation in the config")
}

// NewInvalidConfig creates an invalid configuration error
func NewInvalidConfig(message string) *StructuredError {
	return New(CodeInvalidConfig, ConfigError, message).
		WithSuggestion("Check the configuration file and environment overrides")
}

// NewInvalidRulePack creates an error for a rule pack that failed to load
func NewInvalidRulePack(path, message string) *StructuredError {
	return New(CodeInvalidRulePack, ConfigError, fmt.Sprintf("Rule pack %s: %s", path, message)).
		WithDetails(map[string]interface{}{"path": path}).
		WithSuggestion("Run 'execintel rules validate' against the pack")
}

// NewInvalidFlag creates an error for a bad CLI flag value
func NewInvalidFlag(flag, message string) *StructuredError {
	return New(CodeInvalidFlag, ConfigError, fmt.Sprintf("Invalid value for --%s: %s", flag, message))
}

// NewAnalysisTimeout creates the per-test wall budget error
func NewAnalysisTimeout(testName string) *StructuredError {
	return New(CodeAnalysisTimeout, AnalysisError, fmt.Sprintf("Analysis of '%s' exceeded its time budget", testName)).
		WithSuggestion("Raise analysis.timeout_seconds or split the log")
}

// NewAnalysisCancelled marks a test whose analysis never ran because the
// batch context was cancelled first.
func NewAnalysisCancelled(testName string) *StructuredError {
	return New(CodeAnalysisCancelled, AnalysisError, fmt.Sprintf("Analysis of '%s' was cancelled", testName))
}

// NewAnalysisPanic captures a recovered panic from one test's pipeline
func NewAnalysisPanic(testName string, cause interface{}) *StructuredError {
	return New(CodeAnalysisPanic, AnalysisError, fmt.Sprintf("Analysis of '%s' panicked", testName)).
		WithDetails(map[string]interface{}{"cause": fmt.Sprint(cause)})
}

// NewInternalError creates an internal error
func NewInternalError(message string) *StructuredError {
	return New(CodeInternalError, AnalysisError, message)
}

// NewStorageUnavailable creates a pattern store connectivity error
func NewStorageUnavailable(message string) *StructuredError {
	return New(CodeStorageUnavailable, StorageError, message).
		WithSuggestion("Check pattern.store_path and filesystem permissions")
}

// NewStorageUpsert creates a pattern upsert error
func NewStorageUpsert(hash string, cause error) *StructuredError {
	return New(CodeStorageUpsert, StorageError, fmt.Sprintf("Upsert of pattern %s failed: %v", hash, cause)).
		WithDetails(map[string]interface{}{"pattern_hash": hash})
}

// NewEnrichmentTimeout creates an enrichment timeout error
func NewEnrichmentTimeout() *StructuredError {
	return New(CodeEnrichmentTimeout, ExternalError, "Enrichment request timed out").
		WithSuggestion("Raise ai.timeout_ms or disable enrichment")
}

// NewEnrichmentRateLimited creates an enrichment rate limit error
func NewEnrichmentRateLimited() *StructuredError {
	return New(CodeEnrichmentRateLimited, ExternalError, "Enrichment API rate limit exceeded")
}

// NewEnrichmentUnavailable creates an enrichment availability error
func NewEnrichmentUnavailable(message string) *StructuredError {
	return New(CodeEnrichmentUnavailable, ExternalError, message)
}

// NewEnrichmentRejected creates an error for a request the enrichment API
// rejected outright; these are never retried.
func NewEnrichmentRejected(statusCode int, message string) *StructuredError {
	return New(CodeEnrichmentRejected, ExternalError, fmt.Sprintf("Enrichment API rejected the request (HTTP %d): %s", statusCode, message)).
		WithDetails(map[string]interface{}{"status_code": statusCode})
}

// NewNetworkError creates a network error
func NewNetworkError(message string) *StructuredError {
	return New(CodeNetworkError, ExternalError, message).
		WithSuggestion("Check your network connection and try again")
}

// FromHTTPStatus maps an enrichment API status code onto the taxonomy.
func FromHTTPStatus(statusCode int, responseBody string) *StructuredError {
	switch {
	case statusCode == 429:
		return NewEnrichmentRateLimited()
	case statusCode >= 500 && statusCode < 600:
		return NewEnrichmentUnavailable(fmt.Sprintf("Enrichment API error (HTTP %d): %s", statusCode, responseBody))
	case statusCode >= 400 && statusCode < 500:
		return NewEnrichmentRejected(statusCode, responseBody)
	default:
		return NewInternalError(fmt.Sprintf("Unexpected HTTP status %d: %s", statusCode, responseBody))
	}
}

// Transient reports whether an error is worth retrying: rate limits,
// upstream 5xx, timeouts, and network failures. Rejections and anything
// non-structured are not.
func Transient(err error) bool {
	se := AsStructured(err)
	if se == nil {
		return false
	}
	switch se.Code {
	case CodeEnrichmentTimeout, CodeEnrichmentRateLimited, CodeEnrichmentUnavailable, CodeNetworkError:
		return true
	default:
		return false
	}
}

// AsStructured unwraps err to a StructuredError, or nil.
func AsStructured(err error) *StructuredError {
	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// ExitCode maps an error to the process exit code: configuration errors
// exit 2, everything else that reaches main exits 3.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if se := AsStructured(err); se != nil && se.Category == ConfigError {
		return ExitConfig
	}
	return ExitInternal
}
