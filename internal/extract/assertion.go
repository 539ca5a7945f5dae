package extract

import (
	"regexp"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	// "expected 200 but got 500", "Expected: <200> but was: <500>"
	expectedActualRe = regexp.MustCompile(`(?i)expected\s*[:=]?\s*<?([^\s<>,]{1,80})>?,?\s+(?:but\s+)?(?:was|got|found|received|actual(?:ly)?)\s*[:=]?\s*<?([^\s<>,]{1,80})>?`)
	// pytest introspection: "E       assert 500 == 200". The left side is
	// the observed value, the right side the expectation.
	pytestCompareRe = regexp.MustCompile(`(?im)^\s*(?:e\s+)?assert\s+(\S{1,80})\s*[=!<>]=\s*(\S{1,80})`)
)

func newAssertionExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "assertion",
		signalType: model.SignalAssertion,
		confidence: confAssertion,
		patterns: []pattern{
			pat("assertion-error", `(?i)assertion\s*error|assertionfailederror|assert\w*exception`),
			pat("assertion-failed", `(?i)assert(?:ion)?\s+fail(?:ed|ure)?`),
			pat("assert-expression", `(?im)^\s*(?:e\s+)?assert\s+\S`),
			pat("assert-call", `(?i)\bassert_?(?:equals?|that|true|false|in|is)\b|\bexpect\(`),
			pat("expected-actual", `(?i)\bexpected\b.{0,120}?\b(?:but (?:was|got|found)|got|received|actual)\b`),
			pat("matcher-failure", `(?i)\bto\s+(?:deep\s+)?(?:equal|eq|be|contain)\b|\bshould\s+(?:be|equal|have|contain)\b`),
		},
		capture: func(meta map[string]string, _ *model.ExecutionEvent, corpus string, _ []string) {
			if m := expectedActualRe.FindStringSubmatch(corpus); m != nil {
				setIfAbsent(meta, "expected", m[1])
				setIfAbsent(meta, "actual", m[2])
				return
			}
			if m := pytestCompareRe.FindStringSubmatch(corpus); m != nil {
				setIfAbsent(meta, "actual", m[1])
				setIfAbsent(meta, "expected", m[2])
			}
		},
	}
}
