package extract

import (
	"regexp"

	"github.com/tareqmamari/execintel/internal/model"
)

// Selector capture, most specific form first. These only run on events the
// locator patterns already matched, so the generic forms stay safe.
var selectorRes = []*regexp.Regexp{
	regexp.MustCompile(`"selector"\s*:\s*"([^"]+)"`),       // selenium remote payload
	regexp.MustCompile(`(?i)locator\(['"]([^'"]+)['"]\)`),  // playwright
	regexp.MustCompile("`([^`]+)`"),                        // cypress backtick quoting
	regexp.MustCompile(`(?i)\b(?:css selector|xpath|selector|locator)\s*[:=]\s*['"]?([^'"\s,}]+)`),
}

func newLocatorExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "locator",
		signalType: model.SignalLocator,
		confidence: confLocator,
		patterns: []pattern{
			pat("no-such-element", `(?i)nosuchelement|no such element`),
			pat("stale-element", `(?i)stale\s*element`),
			pat("not-interactable", `(?i)element\s*(?:is\s+)?not\s*interactable|elementnotinteractable`),
			pat("click-intercepted", `(?i)element\s*click\s*intercepted|is not clickable at point`),
			pat("unable-to-locate", `(?i)unable to locate (?:the )?element|(?:could not|failed to) find (?:the )?element`),
			pat("never-found", `(?i)expected to find element|never found it`),
			pat("waiting-for-locator", `(?i)waiting for (?:locator|selector|element)`),
			pat("not-visible", `(?i)element (?:is )?not (?:visible|displayed)|elementnotvisible`),
		},
		capture: func(meta map[string]string, _ *model.ExecutionEvent, corpus string, _ []string) {
			for _, re := range selectorRes {
				if m := re.FindStringSubmatch(corpus); m != nil {
					setIfAbsent(meta, "selector", m[1])
					return
				}
			}
		},
	}
}
