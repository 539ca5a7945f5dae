package model

// SignalType identifies the failure mode a signal is evidence of.
type SignalType string

// All signal types the extractors can emit.
const (
	SignalTimeout         SignalType = "TIMEOUT"
	SignalAssertion       SignalType = "ASSERTION"
	SignalLocator         SignalType = "LOCATOR"
	SignalHTTPError       SignalType = "HTTP_ERROR"
	SignalConnectionError SignalType = "CONNECTION_ERROR"
	SignalDNSError        SignalType = "DNS_ERROR"
	SignalInfra           SignalType = "INFRA"
	SignalSlowTest        SignalType = "SLOW_TEST"
	SignalMemoryLeak      SignalType = "MEMORY_LEAK"
	SignalHighCPU         SignalType = "HIGH_CPU"
	SignalDatabase        SignalType = "DATABASE"
	SignalNullPointer     SignalType = "NULL_POINTER"
	SignalSyntax          SignalType = "SYNTAX"
	SignalImport          SignalType = "IMPORT"
	SignalOther           SignalType = "OTHER"
)

// Canonical metadata keys. An adapter that knows one of these facts stores
// it under the shared key so downstream stages can read it without knowing
// which framework produced the event.
const (
	MetadataStatusCode = "status_code"
	MetadataStatus     = "status"
	MetadataMethod     = "method"
	MetadataURL        = "url"
	MetadataDurationMS = "duration_ms"
)

// Retryable reports whether a failure of the given type is worth retrying.
// It depends only on the signal type and metadata: timeouts, connection and
// DNS failures are transient by nature, and HTTP 429 is a rate limit.
func Retryable(st SignalType, metadata map[string]string) bool {
	switch st {
	case SignalTimeout, SignalConnectionError, SignalDNSError:
		return true
	case SignalHTTPError:
		return metadata[MetadataStatusCode] == "429"
	default:
		return false
	}
}

// InfraRelated reports whether the signal type points at infrastructure
// rather than test or product code. Pure function of the signal type.
func InfraRelated(st SignalType) bool {
	switch st {
	case SignalConnectionError, SignalDNSError, SignalInfra, SignalDatabase, SignalHTTPError:
		return true
	default:
		return false
	}
}

// FailureSignal is structured evidence of one failure mode found in a
// test's event stream. Extractors create signals; the analysis result owns
// them afterwards.
type FailureSignal struct {
	SignalType     SignalType        `json:"signal_type"`
	Message        string            `json:"message"`
	Confidence     float64           `json:"confidence"`
	Stacktrace     string            `json:"stacktrace,omitempty"`
	File           string            `json:"file,omitempty"`
	Line           int               `json:"line,omitempty"`
	Keywords       []string          `json:"keywords,omitempty"`
	Patterns       []string          `json:"patterns,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IsRetryable    bool              `json:"is_retryable"`
	IsInfraRelated bool              `json:"is_infra_related"`
}

// NewFailureSignal builds a signal with the derived flags computed from the
// signal type and metadata, the only inputs they are allowed to depend on.
func NewFailureSignal(st SignalType, message string, confidence float64, metadata map[string]string) *FailureSignal {
	return &FailureSignal{
		SignalType:     st,
		Message:        message,
		Confidence:     confidence,
		Metadata:       metadata,
		IsRetryable:    Retryable(st, metadata),
		IsInfraRelated: InfraRelated(st),
	}
}

// PrimarySignal returns the signal that drives classification and history
// boosting: the highest confidence, with ties won by the earliest extractor.
// Returns nil for an empty slice.
func PrimarySignal(signals []*FailureSignal) *FailureSignal {
	if len(signals) == 0 {
		return nil
	}
	primary := signals[0]
	for _, sig := range signals[1:] {
		if sig.Confidence > primary.Confidence {
			primary = sig
		}
	}
	return primary
}
