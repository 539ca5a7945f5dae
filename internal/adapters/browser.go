package adapters

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

// ---- Selenium ----

// seleniumAdapter handles raw WebDriver test logs (Python or Java flavored).
// The line grammar is the freeform one; only the signature check is
// Selenium-specific.
type seleniumAdapter struct{}

func newSeleniumAdapter() *seleniumAdapter { return &seleniumAdapter{} }

func (a *seleniumAdapter) Name() string { return FrameworkSelenium }

func (a *seleniumAdapter) CanHandle(raw []byte) bool {
	return containsAny(raw,
		"org.openqa.selenium",
		"selenium.common.exceptions",
		"selenium.webdriver",
		"chromedriver",
		"geckodriver",
		"NoSuchElementException",
		"ElementNotInteractableException",
		"StaleElementReferenceException",
		"WebDriverException",
	)
}

func (a *seleniumAdapter) Parse(raw []byte) []model.ExecutionEvent {
	return parseFreeform(raw, FrameworkSelenium)
}

// ---- Cypress ----

var (
	cypressRunningRe = regexp.MustCompile(`^\s*Running:\s+(\S+)`)
	cypressPassRe    = regexp.MustCompile(`^\s*[✓√]\s+(.+?)(?:\s+\(\d+(?:\.\d+)?(?:ms|s|m)\))?$`)
	cypressFailHdrRe = regexp.MustCompile(`^\s*(\d+)\)\s+(.+?):?$`)
	cypressErrorRe   = regexp.MustCompile(`^\s*([A-Za-z]\w*(?:Error|Exception)):\s*(.*)$`)
	cypressFrameRe   = regexp.MustCompile(`^\s+at\s+\S`)
)

// cypressAdapter parses Cypress (mocha reporter) console output: checkmarks
// for passes, numbered sections for failures with the error and its js
// stack indented below.
type cypressAdapter struct{}

func newCypressAdapter() *cypressAdapter { return &cypressAdapter{} }

func (a *cypressAdapter) Name() string { return FrameworkCypress }

func (a *cypressAdapter) CanHandle(raw []byte) bool {
	return containsAny(raw, "cypress", "CypressError", "cy.visit", "cy.get", "cy.request", "(Run Starting)")
}

func (a *cypressAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events   []model.ExecutionEvent
		specFile string
		current  string
		inBody   bool
		message  string
		excType  string
		stack    []string
	)
	flush := func() {
		if current == "" || (message == "" && len(stack) == 0) {
			inBody = false
			return
		}
		if message == "" {
			message = "test failed: " + current
		}
		events = append(events, statusEvent(FrameworkCypress, time.Time{}, model.StatusFail, current, specFile, 0))
		events = append(events, failureEvent(FrameworkCypress, time.Time{}, current, specFile, message, excType, strings.Join(stack, "\n")))
		current, message, excType, stack, inBody = "", "", "", nil, false
	}

	for _, line := range scanLines(raw) {
		if m := cypressRunningRe.FindStringSubmatch(line); m != nil {
			flush()
			specFile = m[1]
			continue
		}
		if m := cypressPassRe.FindStringSubmatch(line); m != nil {
			flush()
			events = append(events, statusEvent(FrameworkCypress, time.Time{}, model.StatusPass, strings.TrimSpace(m[1]), specFile, 0))
			continue
		}
		if m := cypressFailHdrRe.FindStringSubmatch(line); m != nil {
			flush()
			current = strings.TrimSpace(m[2])
			inBody = true
			continue
		}
		if !inBody {
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			// Blank lines separate the failure title from its error body.
		case cypressErrorRe.MatchString(trimmed) && message == "":
			m := cypressErrorRe.FindStringSubmatch(trimmed)
			excType = m[1]
			message = trimmed
		case cypressFrameRe.MatchString(line):
			stack = append(stack, trimmed)
		case strings.HasSuffix(trimmed, ":") && message == "":
			// Continuation of the suite > test title path.
			current = current + " " + strings.TrimSuffix(trimmed, ":")
		case message != "" && len(stack) == 0:
			message = message + "\n" + trimmed
		}
	}
	flush()
	model.FillTimestamps(events)
	return events
}

// ---- Playwright ----

var (
	playwrightResultRe  = regexp.MustCompile(`^\s*[✓✘xX-]\s+\d*\s*\[(\w+)\]\s+›\s+(\S+?):(\d+):\d+\s+›\s+(.+?)(?:\s+\(\S+\))?$`)
	playwrightFailHdrRe = regexp.MustCompile(`^\s*\d+\)\s+\[(\w+)\]\s+›\s+(\S+?):(\d+):\d+\s+›\s+(.+?)\s*─*\s*$`)
	playwrightErrorRe   = regexp.MustCompile(`^\s*(?:Error|([A-Za-z]\w*(?:Error|Exception))):\s*(.*)$`)
	playwrightFrameRe   = regexp.MustCompile(`^\s+at\s+\S`)
)

// playwrightAdapter parses Playwright's list reporter: per-test result rows
// with browser project tags, then numbered failure sections.
type playwrightAdapter struct{}

func newPlaywrightAdapter() *playwrightAdapter { return &playwrightAdapter{} }

func (a *playwrightAdapter) Name() string { return FrameworkPlaywright }

func (a *playwrightAdapter) CanHandle(raw []byte) bool {
	if containsAny(raw, "playwright") {
		return true
	}
	return containsAny(raw, "[chromium] ›", "[firefox] ›", "[webkit] ›")
}

func (a *playwrightAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events  []model.ExecutionEvent
		current string
		curFile string
		inBody  bool
		message string
		excType string
		stack   []string
	)
	flush := func() {
		if inBody && message != "" {
			events = append(events, failureEvent(FrameworkPlaywright, time.Time{}, current, curFile, message, excType, strings.Join(stack, "\n")))
		}
		message, excType, stack, inBody = "", "", nil, false
	}

	for _, line := range scanLines(raw) {
		if m := playwrightResultRe.FindStringSubmatch(line); m != nil {
			flush()
			status := model.StatusPass
			mark := strings.TrimSpace(line)
			if strings.HasPrefix(mark, "✘") || strings.HasPrefix(mark, "x") || strings.HasPrefix(mark, "X") {
				status = model.StatusFail
			} else if strings.HasPrefix(mark, "-") {
				status = model.StatusSkip
			}
			ev := statusEvent(FrameworkPlaywright, time.Time{}, status, m[4], m[2], 0)
			ev.Metadata["browser"] = m[1]
			events = append(events, ev)
			continue
		}
		if m := playwrightFailHdrRe.FindStringSubmatch(line); m != nil {
			flush()
			current, curFile = m[4], m[2]
			inBody = true
			continue
		}
		if !inBody {
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case playwrightErrorRe.MatchString(trimmed) && message == "":
			m := playwrightErrorRe.FindStringSubmatch(trimmed)
			excType = m[1]
			message = trimmed
		case playwrightFrameRe.MatchString(line):
			stack = append(stack, trimmed)
		case message != "" && len(stack) == 0 && !strings.HasPrefix(trimmed, ">") && !strings.HasPrefix(trimmed, "|"):
			message = message + "\n" + trimmed
		}
	}
	flush()
	model.FillTimestamps(events)
	return events
}
