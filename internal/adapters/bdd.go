package adapters

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	gherkinScenarioRe = regexp.MustCompile(`^\s*Scenario(?: Outline)?:\s*(.+?)\s*(?:#\s*(\S+?)(?::(\d+))?)?\s*$`)
	gherkinStepRe     = regexp.MustCompile(`^\s*(Given|When|Then|And|But)\s+(.+?)\s*(?:#\s*\S+(?::\d+)?(?:\s+[\d.]+s)?)?$`)
)

// ---- Behave ----

var (
	behaveAssertRe  = regexp.MustCompile(`^\s*Assertion Failed:?\s*(.*)$`)
	behaveFailingRe = regexp.MustCompile(`^\s*(\S+?\.feature)(?::\d+)?\s+(.+)$`)
)

// behaveAdapter parses behave's pretty output: Gherkin scenarios and steps
// with "# file:line" tails, "Assertion Failed" lines, Python tracebacks, and
// the trailing "Failing scenarios:" list.
type behaveAdapter struct{}

func newBehaveAdapter() *behaveAdapter { return &behaveAdapter{} }

func (a *behaveAdapter) Name() string { return FrameworkBehave }

func (a *behaveAdapter) CanHandle(raw []byte) bool {
	if containsAny(raw, "behave", "Failing scenarios:", "Assertion Failed") {
		return containsAny(raw, "Scenario")
	}
	return containsAny(raw, ".feature:") && containsAny(raw, "Traceback (most recent call last)")
}

func (a *behaveAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events    []model.ExecutionEvent
		current   string
		curFile   string
		pendingTb []string
		inFailing bool
	)
	flushTb := func(terminator string) {
		if pendingTb == nil {
			return
		}
		tb := strings.Join(pendingTb, "\n")
		message := terminator
		if message == "" {
			message = firstLine(tb)
		}
		events = append(events, failureEvent(FrameworkBehave, time.Time{}, current, curFile, message, "", tb))
		pendingTb = nil
	}

	for _, line := range scanLines(raw) {
		trimmed := strings.TrimSpace(line)

		if pyTracebackRe.MatchString(line) {
			pendingTb = []string{trimmed}
			continue
		}
		if pendingTb != nil {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(line, "      ") || strings.HasPrefix(trimmed, "File \"") {
				pendingTb = append(pendingTb, trimmed)
				if exceptionLineRe.MatchString(trimmed) {
					flushTb(trimmed)
				}
				continue
			}
			if exceptionLineRe.MatchString(trimmed) {
				flushTb(trimmed)
				continue
			}
			// Not part of the traceback; flush and handle normally.
			flushTb("")
		}

		if strings.HasPrefix(trimmed, "Failing scenarios:") {
			inFailing = true
			continue
		}
		if inFailing {
			if m := behaveFailingRe.FindStringSubmatch(trimmed); m != nil {
				events = append(events, statusEvent(FrameworkBehave, time.Time{}, model.StatusFail, strings.TrimSpace(m[2]), m[1], 0))
				continue
			}
			inFailing = false
		}

		if m := gherkinScenarioRe.FindStringSubmatch(line); m != nil {
			current, curFile = m[1], m[2]
			events = append(events, model.ExecutionEvent{
				Level:         model.LevelDebug,
				Source:        FrameworkBehave,
				Message:       "scenario: " + current,
				LogSourceType: model.SourceAutomation,
				TestName:      current,
				TestFile:      curFile,
			})
			continue
		}
		if m := behaveAssertRe.FindStringSubmatch(line); m != nil {
			message := "Assertion Failed: " + m[1]
			events = append(events, failureEvent(FrameworkBehave, time.Time{}, current, curFile, message, "AssertionError", ""))
			continue
		}
		if m := gherkinStepRe.FindStringSubmatch(line); m != nil {
			events = append(events, model.ExecutionEvent{
				Level:         model.LevelDebug,
				Source:        FrameworkBehave,
				Message:       m[1] + " " + m[2],
				LogSourceType: model.SourceAutomation,
				TestName:      current,
				TestFile:      curFile,
			})
		}
	}
	flushTb("")
	model.FillTimestamps(events)
	return events
}

// ---- SpecFlow ----

var (
	specflowMarkerRe = regexp.MustCompile(`^\s*->\s*(done|error|skipped|pending)\b:?\s*(.*)$`)
	dotnetFrameRe    = regexp.MustCompile(`^\s+at\s+[\w.<>\[\]]+.*(?:\)| in \S+:line \d+)\s*$`)
)

// specflowAdapter parses SpecFlow console output: bare Gherkin steps each
// followed by a "-> done:", "-> error:" or "-> skipped" marker, with .NET
// stack frames after errors.
type specflowAdapter struct{}

func newSpecFlowAdapter() *specflowAdapter { return &specflowAdapter{} }

func (a *specflowAdapter) Name() string { return FrameworkSpecFlow }

func (a *specflowAdapter) CanHandle(raw []byte) bool {
	return containsAny(raw, "TechTalk.SpecFlow", "-> done:", "-> error:", "-> skipped")
}

func (a *specflowAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events  []model.ExecutionEvent
		current string
		failed  bool
	)

	for _, line := range scanLines(raw) {
		trimmed := strings.TrimSpace(line)

		if m := gherkinScenarioRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			failed = false
			continue
		}
		if m := specflowMarkerRe.FindStringSubmatch(line); m != nil {
			switch m[1] {
			case "error":
				failed = true
				message := strings.TrimSpace(m[2])
				excType := exceptionFromText(message)
				events = append(events, statusEvent(FrameworkSpecFlow, time.Time{}, model.StatusFail, current, "", 0))
				// Failure last so trailing .NET frames attach to it.
				events = append(events, failureEvent(FrameworkSpecFlow, time.Time{}, current, "", message, excType, ""))
			case "skipped", "pending":
				if !failed {
					events = append(events, statusEvent(FrameworkSpecFlow, time.Time{}, model.StatusSkip, current, "", 0))
				}
			}
			continue
		}
		if dotnetFrameRe.MatchString(line) {
			if n := len(events); n > 0 {
				if events[n-1].Stacktrace == "" {
					events[n-1].Stacktrace = trimmed
				} else {
					events[n-1].Stacktrace += "\n" + trimmed
				}
			}
			continue
		}
		if m := gherkinStepRe.FindStringSubmatch(line); m != nil {
			events = append(events, model.ExecutionEvent{
				Level:         model.LevelDebug,
				Source:        FrameworkSpecFlow,
				Message:       m[1] + " " + m[2],
				LogSourceType: model.SourceAutomation,
				TestName:      current,
			})
		}
	}
	model.FillTimestamps(events)
	return events
}

// ---- Cucumber ----

// cucumberAdapter parses Cucumber console output (Java flavored): Gherkin
// scenarios and steps, indented exceptions with their stack frames, and the
// "Failed scenarios:" list.
type cucumberAdapter struct{}

var cucumberFailedRe = regexp.MustCompile(`^\s*(\S+?\.feature):(\d+)\s*#\s*(.+)$`)

func newCucumberAdapter() *cucumberAdapter { return &cucumberAdapter{} }

func (a *cucumberAdapter) Name() string { return FrameworkCucumber }

func (a *cucumberAdapter) CanHandle(raw []byte) bool {
	if containsAny(raw, "cucumber") {
		return true
	}
	return containsAny(raw, "Feature:") && containsAny(raw, "Scenario")
}

func (a *cucumberAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events  []model.ExecutionEvent
		current string
		curFile string
	)
	appendStack := func(line string) {
		if n := len(events); n > 0 {
			if events[n-1].Stacktrace == "" {
				events[n-1].Stacktrace = line
			} else {
				events[n-1].Stacktrace += "\n" + line
			}
		}
	}

	for _, line := range scanLines(raw) {
		trimmed := strings.TrimSpace(line)

		if m := gherkinScenarioRe.FindStringSubmatch(line); m != nil {
			current, curFile = m[1], m[2]
			continue
		}
		if m := cucumberFailedRe.FindStringSubmatch(trimmed); m != nil {
			events = append(events, statusEvent(FrameworkCucumber, time.Time{}, model.StatusFail, strings.TrimSpace(m[3]), m[1], 0))
			continue
		}
		if javaFrameRe.MatchString(line) {
			appendStack(strings.TrimRight(line, " \t"))
			continue
		}
		if m := exceptionLineRe.FindStringSubmatch(trimmed); m != nil {
			events = append(events, failureEvent(FrameworkCucumber, time.Time{}, current, curFile, trimmed, m[1], ""))
			continue
		}
		if m := gherkinStepRe.FindStringSubmatch(line); m != nil {
			events = append(events, model.ExecutionEvent{
				Level:         model.LevelDebug,
				Source:        FrameworkCucumber,
				Message:       m[1] + " " + m[2],
				LogSourceType: model.SourceAutomation,
				TestName:      current,
				TestFile:      curFile,
			})
		}
	}
	model.FillTimestamps(events)
	return events
}
