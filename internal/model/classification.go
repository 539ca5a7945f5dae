package model

import "strings"

// FailureType is the classification verdict for one failed test.
type FailureType string

// The five classification outcomes. The enrichment layer may never add to
// or change this set; rule packs map everything onto these.
const (
	ProductDefect      FailureType = "PRODUCT_DEFECT"
	AutomationDefect   FailureType = "AUTOMATION_DEFECT"
	EnvironmentIssue   FailureType = "ENVIRONMENT_ISSUE"
	ConfigurationIssue FailureType = "CONFIGURATION_ISSUE"
	UnknownFailure     FailureType = "UNKNOWN"
)

// FailureTypes lists every classification outcome in canonical order.
var FailureTypes = []FailureType{
	ProductDefect,
	AutomationDefect,
	EnvironmentIssue,
	ConfigurationIssue,
	UnknownFailure,
}

// ParseFailureType resolves a case-insensitive failure type name.
func ParseFailureType(raw string) (FailureType, bool) {
	candidate := FailureType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, ft := range FailureTypes {
		if ft == candidate {
			return ft, true
		}
	}
	return "", false
}

// ConfidenceBucket coarsens a confidence score for reporting and for the
// enrichment boundary rule.
type ConfidenceBucket string

// Buckets: <0.5 VERY_LOW, [0.5,0.7) LOW, [0.7,0.9) MEDIUM, >=0.9 HIGH.
const (
	BucketVeryLow ConfidenceBucket = "VERY_LOW"
	BucketLow     ConfidenceBucket = "LOW"
	BucketMedium  ConfidenceBucket = "MEDIUM"
	BucketHigh    ConfidenceBucket = "HIGH"
)

// ConfidenceBuckets lists the buckets in ascending order.
var ConfidenceBuckets = []ConfidenceBucket{BucketVeryLow, BucketLow, BucketMedium, BucketHigh}

// BucketFor returns the bucket a confidence value falls into.
func BucketFor(confidence float64) ConfidenceBucket {
	switch {
	case confidence < 0.5:
		return BucketVeryLow
	case confidence < 0.7:
		return BucketLow
	case confidence < 0.9:
		return BucketMedium
	default:
		return BucketHigh
	}
}

// CodeReference is the resolved user-code site of a failure.
type CodeReference struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	Function     string `json:"function,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	LanguageHint string `json:"language_hint,omitempty"`
}

// AIInsights carries advisory enrichment output. It never feeds back into
// the deterministic classification fields.
type AIInsights struct {
	Provider     string   `json:"provider,omitempty"`
	Insights     []string `json:"insights,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

// FailureClassification is the verdict for one test. FailureType is decided
// exclusively by rule evaluation (or UNKNOWN when no rule fires).
type FailureClassification struct {
	FailureType   FailureType      `json:"failure_type"`
	Confidence    float64          `json:"confidence"`
	Reason        string           `json:"reason"`
	Evidence      []string         `json:"evidence"`
	Signals       []*FailureSignal `json:"signals,omitempty"`
	RulesApplied  []string         `json:"rules_applied,omitempty"`
	CodeReference *CodeReference   `json:"code_reference,omitempty"`
	AIInsights    *AIInsights      `json:"ai_insights,omitempty"`
}
