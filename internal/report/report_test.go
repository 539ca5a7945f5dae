package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareqmamari/execintel/internal/model"
)

func sampleReport() *Report {
	return &Report{
		Summary: &model.Summary{
			Total: 3,
			ByType: map[model.FailureType]int{
				model.ProductDefect:  1,
				model.UnknownFailure: 1,
			},
			ByBucket: map[model.ConfidenceBucket]int{
				model.BucketHigh:    1,
				model.BucketVeryLow: 1,
			},
		},
		Results: []*model.AnalysisResult{
			{
				TestName:   "test_checkout",
				Framework:  "pytest",
				Status:     model.StatusFail,
				DurationMS: 1200,
				Classification: &model.FailureClassification{
					FailureType:  model.ProductDefect,
					Confidence:   0.92,
					Reason:       "HTTP 500 during checkout [Application logs confirm product error]",
					Evidence:     []string{"assertion raised on status 500 from POST /v1/checkout"},
					RulesApplied: []string{"product_http_5xx_assertion"},
					CodeReference: &model.CodeReference{
						File:    "tests/test_checkout.py",
						Line:    42,
						Snippet: "assert resp.status_code == 200",
					},
				},
				HasApplicationLogs: true,
			},
			{
				TestName:   "test_login",
				Framework:  "pytest",
				Status:     model.StatusPass,
				DurationMS: 800,
			},
			{
				TestName:  "test_search",
				Framework: "selenium",
				Status:    model.StatusError,
				Error:     "ANALYSIS_TIMEOUT",
				Classification: &model.FailureClassification{
					FailureType: model.UnknownFailure,
					Confidence:  0,
					Reason:      "analysis timed out",
				},
			},
		},
		Groups: []*model.CorrelationGroup{
			{
				GroupID:        "3f2a1b",
				Pattern:        "operationalerror database connection pool exhausted on <HOST>",
				AffectedTests:  2,
				FailureType:    model.EnvironmentIssue,
				SignalType:     model.SignalDatabase,
				Confidence:     0.9,
				RootCause:      "DB connection pool saturation or a database outage is affecting every test that touches it",
				Recommendation: "Check database health and connection pool sizing before rerunning.",
				Strategy:       "message_similarity",
				Members: []model.GroupMember{
					{TestName: "test_orders", Similarity: 1},
					{TestName: "test_refunds", Similarity: 0.93},
				},
			},
		},
		Gate: &Gate{FailOn: []model.FailureType{model.ProductDefect}, Failed: true},
	}
}

const goldenJSON = `{
  "version": "1",
  "summary": {
    "total": 3,
    "by_type": {
      "PRODUCT_DEFECT": 1,
      "AUTOMATION_DEFECT": 0,
      "ENVIRONMENT_ISSUE": 0,
      "CONFIGURATION_ISSUE": 0,
      "UNKNOWN": 1
    },
    "by_confidence_bucket": {
      "VERY_LOW": 1,
      "LOW": 0,
      "MEDIUM": 0,
      "HIGH": 1
    }
  },
  "results": [
    {
      "test_name": "test_checkout",
      "framework": "pytest",
      "status": "FAIL",
      "duration_ms": 1200,
      "classification": {
        "failure_type": "PRODUCT_DEFECT",
        "confidence": 0.9200,
        "reason": "HTTP 500 during checkout [Application logs confirm product error]",
        "evidence": [
          "assertion raised on status 500 from POST /v1/checkout"
        ],
        "rules_applied": [
          "product_http_5xx_assertion"
        ],
        "code_reference": {
          "file": "tests/test_checkout.py",
          "line": 42,
          "snippet": "assert resp.status_code == 200"
        },
        "has_application_logs": true
      }
    },
    {
      "test_name": "test_login",
      "framework": "pytest",
      "status": "PASS",
      "duration_ms": 800
    },
    {
      "test_name": "test_search",
      "framework": "selenium",
      "status": "ERROR",
      "duration_ms": 0,
      "error": "ANALYSIS_TIMEOUT",
      "classification": {
        "failure_type": "UNKNOWN",
        "confidence": 0.0000,
        "reason": "analysis timed out",
        "evidence": [],
        "has_application_logs": false
      }
    }
  ],
  "groups": [
    {
      "group_id": "3f2a1b",
      "pattern": "operationalerror database connection pool exhausted on <HOST>",
      "affected_tests": 2,
      "failure_type": "ENVIRONMENT_ISSUE",
      "signal_type": "DATABASE",
      "confidence": 0.9000,
      "root_cause": "DB connection pool saturation or a database outage is affecting every test that touches it",
      "recommendation": "Check database health and connection pool sizing before rerunning.",
      "strategy": "message_similarity",
      "members": [
        {
          "test_name": "test_orders",
          "similarity": 1.0000
        },
        {
          "test_name": "test_refunds",
          "similarity": 0.9300
        }
      ]
    }
  ]
}
`

func TestJSONDocumentIsByteStable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))
	require.Equal(t, goldenJSON, buf.String())

	// A second render of the same report must be byte-identical.
	var again bytes.Buffer
	require.NoError(t, Write(&again, FormatJSON, sampleReport()))
	assert.Equal(t, buf.String(), again.String())
}

func TestJSONSortsResultsByTestName(t *testing.T) {
	rep := &Report{
		Results: []*model.AnalysisResult{
			{TestName: "test_zeta", Status: model.StatusPass},
			{TestName: "test_alpha", Status: model.StatusPass},
			{TestName: "test_mid", Status: model.StatusPass},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, rep))

	out := buf.String()
	alpha := strings.Index(out, "test_alpha")
	mid := strings.Index(out, "test_mid")
	zeta := strings.Index(out, "test_zeta")
	assert.True(t, alpha < mid && mid < zeta, "results must be ordered by test name, got %q", out)
}

func TestJSONDoesNotEscapeHTMLOrUnicode(t *testing.T) {
	rep := &Report{
		Results: []*model.AnalysisResult{
			{
				TestName: "test_totals",
				Status:   model.StatusFail,
				Classification: &model.FailureClassification{
					FailureType: model.ProductDefect,
					Confidence:  0.8,
					Reason:      "订单总额 < 100 & status >= 500",
					Evidence:    []string{"<expected> != <actual>"},
				},
			},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, rep))

	out := buf.String()
	assert.Contains(t, out, "订单总额 < 100 & status >= 500")
	assert.Contains(t, out, "<expected> != <actual>")
	assert.NotContains(t, out, `\u003c`)
	assert.NotContains(t, out, `\u0026`)
}

func TestJSONClassificationOnlyForFailures(t *testing.T) {
	rep := &Report{
		Results: []*model.AnalysisResult{
			{
				TestName: "test_pass",
				Status:   model.StatusPass,
				// A stray classification on a passing result must not leak out.
				Classification: &model.FailureClassification{FailureType: model.UnknownFailure},
			},
			{
				TestName: "test_skip",
				Status:   model.StatusSkip,
			},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, rep))
	assert.NotContains(t, buf.String(), "classification")
	assert.NotContains(t, buf.String(), "error")
}

func TestFixed4Rendering(t *testing.T) {
	cases := map[float64]string{
		0:      "0.0000",
		1:      "1.0000",
		0.8999: "0.8999",
		0.5:    "0.5000",
		0.925:  "0.9250",
	}
	for in, want := range cases {
		got, err := fixed4(in).MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]Format{
		"json":    FormatJSON,
		"JSON":    FormatJSON,
		" text ":  FormatText,
		"summary": FormatSummary,
	} {
		got, err := ParseFormat(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yaml")
}

func TestTextReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Execution Intelligence Report")
	assert.Contains(t, out, "Tests: 3 (1 passed, 1 failed, 1 errored, 0 skipped)")
	assert.Contains(t, out, "Product Defect")
	assert.Contains(t, out, "FAIL test_checkout [pytest] 1.2s")
	assert.Contains(t, out, "Reason:   HTTP 500 during checkout")
	assert.Contains(t, out, "tests/test_checkout.py:42")
	assert.Contains(t, out, "Error:    ANALYSIS_TIMEOUT")
	assert.Contains(t, out, "Correlated Groups")
	assert.Contains(t, out, "Group 3f2a1b: 2 tests, Environment Issue via Message Similarity")
	assert.Contains(t, out, "test_refunds (0.93)")
	assert.Contains(t, out, "Gate: FAILED (fail-on: PRODUCT_DEFECT)")
}

func TestSummaryReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatSummary, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Analyzed 3 tests: 1 passed, 1 failed, 1 errored, 0 skipped")
	assert.Contains(t, out, "Failures by type: Product Defect 1, Unknown 1")
	assert.Contains(t, out, "Gate: FAILED (fail-on: PRODUCT_DEFECT)")
	assert.NotContains(t, out, "Evidence")
}

func TestSummaryGatePassedWithoutFailOn(t *testing.T) {
	rep := &Report{
		Results: []*model.AnalysisResult{{TestName: "test_ok", Status: model.StatusPass}},
		Gate:    &Gate{},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatSummary, rep))
	assert.Contains(t, buf.String(), "Gate: PASSED\n")
}

func TestGateLineOmittedWhenNoGate(t *testing.T) {
	rep := &Report{Results: []*model.AnalysisResult{{TestName: "t", Status: model.StatusPass}}}

	for _, format := range []Format{FormatText, FormatSummary} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, format, rep))
		assert.NotContains(t, buf.String(), "Gate:", "format %s", format)
	}
}
