package adapters

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	tsPrefixRe    = regexp.MustCompile(`^\[?(\d{4}[-/]\d{2}[-/]\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})?|\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?)\]?\s*`)
	levelPrefixRe = regexp.MustCompile(`^[\[(]?(TRACE|VERBOSE|FINE|DEBUG|INFO|WARN|WARNING|ERROR|ERR|SEVERE|FAIL|FAILED|FATAL|CRITICAL|PANIC)[\])]?\s*[:\- ]\s*`)
	pyDashRe      = regexp.MustCompile(`^-?\s*([\w.]+)\s+-\s+(TRACE|DEBUG|INFO|WARNING|WARN|ERROR|CRITICAL|FATAL)\s+-\s+(.*)$`)

	pyTracebackRe   = regexp.MustCompile(`^\s*Traceback \(most recent call last\):`)
	pyFrameRe       = regexp.MustCompile(`^\s+\S`)
	javaFrameRe     = regexp.MustCompile(`^(?:\s+(?:at\s+\S.*|\.\.\. \d+ more)|\s*Caused by: .*)$`)
	exceptionLineRe = regexp.MustCompile(`^([A-Za-z_][\w.]*(?:Exception|Error))\s*:\s*`)

	genericTestStartRe  = regexp.MustCompile(`(?i)^(?:running|starting|executing)\s+test[:\s]+['"]?([\w.:\-/\[\]]+)`)
	genericTestResultRe = regexp.MustCompile(`(?i)^test\s+['"]?([\w.:\-/\[\]]+?)['"]?\s+(passed|failed|errored|skipped)\b`)
)

// parseFreeform handles plain line-oriented logs: an optional timestamp, an
// optional level token, then the message. Java stack frames attach to the
// preceding exception event; Python tracebacks are buffered until their
// trailing exception line arrives.
func parseFreeform(raw []byte, source string) []model.ExecutionEvent {
	var (
		events      []model.ExecutionEvent
		currentTest string
		pendingTb   []string
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
		if strings.TrimSpace(line) == "" {
			continue
		}

		if pyTracebackRe.MatchString(line) {
			pendingTb = []string{strings.TrimSpace(line)}
			continue
		}
		if pendingTb != nil {
			if pyFrameRe.MatchString(line) {
				pendingTb = append(pendingTb, line)
				continue
			}
			// The non-indented line ending a traceback names the exception.
			message := strings.TrimSpace(line)
			ev := failureEvent(source, time.Time{}, currentTest, "", message, "", strings.Join(pendingTb, "\n"))
			events = append(events, ev)
			pendingTb = nil
			continue
		}
		if javaFrameRe.MatchString(line) {
			appendStack(strings.TrimRight(line, " "))
			continue
		}

		rest := line
		var ts time.Time
		if m := tsPrefixRe.FindStringSubmatch(rest); m != nil {
			if parsed, ok := model.ParseTimestamp(m[1]); ok {
				ts = parsed
			}
			rest = rest[len(m[0]):]
		}

		level := model.LevelInfo
		if m := pyDashRe.FindStringSubmatch(rest); m != nil {
			level = model.ParseLogLevel(m[2])
			rest = m[3]
		} else {
			rest = strings.TrimLeft(rest, "- ")
			if m := levelPrefixRe.FindStringSubmatch(rest); m != nil {
				level = model.ParseLogLevel(m[1])
				rest = rest[len(m[0]):]
			}
		}

		message := strings.TrimSpace(rest)
		if message == "" {
			continue
		}

		if m := genericTestStartRe.FindStringSubmatch(message); m != nil {
			currentTest = m[1]
		}
		if m := genericTestResultRe.FindStringSubmatch(message); m != nil {
			currentTest = m[1]
			var status model.TestStatus
			switch strings.ToLower(m[2]) {
			case "passed":
				status = model.StatusPass
			case "failed":
				status = model.StatusFail
			case "errored":
				status = model.StatusError
			case "skipped":
				status = model.StatusSkip
			}
			events = append(events, statusEvent(source, ts, status, currentTest, "", 0))
			continue
		}

		var excType string
		if m := exceptionLineRe.FindStringSubmatch(message); m != nil {
			excType = m[1]
			level = model.LevelError
		}
		events = append(events, model.ExecutionEvent{
			Timestamp:     ts,
			Level:         level,
			Source:        source,
			Message:       message,
			LogSourceType: model.SourceAutomation,
			TestName:      currentTest,
			ExceptionType: excType,
		})
	}
	if len(pendingTb) > 0 {
		tb := strings.Join(pendingTb, "\n")
		events = append(events, failureEvent(source, time.Time{}, currentTest, "", firstLine(tb), "", tb))
	}
	model.FillTimestamps(events)
	return events
}

// genericAdapter is the fallback for anything no other adapter claims.
type genericAdapter struct{}

func newGenericAdapter() *genericAdapter { return &genericAdapter{} }

func (a *genericAdapter) Name() string { return FrameworkGeneric }

func (a *genericAdapter) CanHandle([]byte) bool { return true }

func (a *genericAdapter) Parse(raw []byte) []model.ExecutionEvent {
	return parseFreeform(raw, FrameworkGeneric)
}
