// Package applog parses service logs into ExecutionEvents tagged as
// APPLICATION evidence. It mirrors the automation adapter family: a fixed
// detection order with a plain-text fallback, best-effort parsing, and
// malformed lines skipped rather than failing the run. Application logs are
// purely additive, so nothing in this package can fail an analysis.
package applog

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

// Format names reported on parsed events.
const (
	FormatJSON    = "json"
	FormatDotNet  = "dotnet"
	FormatSpring  = "spring"
	FormatLog4j   = "log4j"
	FormatPython  = "python"
	FormatGeneric = "generic"
)

// MetaLogger is the metadata key carrying the logger or category name when
// the format exposes one.
const MetaLogger = "logger"

// Parser handles one service log format. CanHandle is a cheap signature
// check and must not panic; Parse is best effort and never fails. The
// service name comes from the log source and may be overridden by a
// structured field in the log itself.
type Parser interface {
	Name() string
	CanHandle(raw []byte) bool
	Parse(raw []byte, serviceName string) []model.ExecutionEvent
}

// Family holds the application log parsers in detection order, most
// structurally distinctive first. The order is part of the output contract;
// the generic parser accepts everything.
type Family struct {
	ordered []Parser
	logger  *zap.Logger
}

// NewFamily builds the parser family.
func NewFamily(logger *zap.Logger) *Family {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Family{
		ordered: []Parser{
			jsonParser{},
			dotnetParser{},
			springParser{},
			log4jParser{},
			pythonParser{},
			genericParser{},
		},
		logger: logger,
	}
}

// Detect returns the first parser that accepts the input. It never returns
// nil because the generic parser accepts everything.
func (f *Family) Detect(raw []byte) Parser {
	for _, p := range f.ordered {
		if p.CanHandle(raw) {
			return p
		}
	}
	return f.ordered[len(f.ordered)-1]
}

// Parse detects the format and parses in one step.
func (f *Family) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
	p := f.Detect(raw)
	events := p.Parse(raw, serviceName)
	f.logger.Debug("parsed application log",
		zap.String("format", p.Name()),
		zap.String("service", serviceName),
		zap.Int("events", len(events)))
	return events
}

// Names returns the format names in detection order.
func (f *Family) Names() []string {
	names := make([]string, len(f.ordered))
	for i, p := range f.ordered {
		names[i] = p.Name()
	}
	return names
}

// appEvent is the constructor every parser shares. All application events
// carry their format as Source and the originating service.
func appEvent(ts time.Time, level model.LogLevel, format, service, msg string) model.ExecutionEvent {
	return model.ExecutionEvent{
		Timestamp:     ts,
		Level:         level,
		Source:        format,
		Message:       msg,
		LogSourceType: model.SourceApplication,
		ServiceName:   service,
	}
}

// scanLines splits raw input into lines with line endings canonicalized,
// tolerating lines far beyond bufio's default token size.
func scanLines(raw []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

var (
	// excHeadRe matches the line that opens a printed exception, either
	// Java/.NET style ("java.net.ConnectException: refused") or a Python
	// traceback terminator ("requests.exceptions.ConnectionError: ...").
	excHeadRe = regexp.MustCompile(`^([\w.]+(?:Exception|Error))\b(:.*)?$`)
	// frameRe matches stack continuation lines: indented frames, indented
	// elision markers, and logback/JVM cause chains at any indent.
	frameRe = regexp.MustCompile(`^(?:\s+(?:at\s+\S.*|\.\.\. \d+ (?:more|common frames omitted))|\s*Caused by: .*)$`)

	exceptionTokenRe = regexp.MustCompile(`\b([A-Za-z_][\w.]*(?:Exception|Error|Failure|Timeout))\b`)
)

// exceptionFromText pulls the first exception-looking token out of a
// message or stack blob.
func exceptionFromText(s string) string {
	m := exceptionTokenRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// attachTrace folds an exception head or stack frame line into the most
// recent event, the record that introduced it. A trace with no preceding
// record becomes its own ERROR event. Returns false when the line is not
// part of a trace.
func attachTrace(events []model.ExecutionEvent, line, format, service string) ([]model.ExecutionEvent, bool) {
	if m := excHeadRe.FindStringSubmatch(line); m != nil {
		if n := len(events); n > 0 {
			if events[n-1].ExceptionType == "" {
				events[n-1].ExceptionType = m[1]
			}
			events[n-1].Stacktrace = appendLine(events[n-1].Stacktrace, line)
			return events, true
		}
		ev := appEvent(time.Time{}, model.LevelError, format, service, line)
		ev.ExceptionType = m[1]
		return append(events, ev), true
	}
	if frameRe.MatchString(line) {
		if n := len(events); n > 0 {
			events[n-1].Stacktrace = appendLine(events[n-1].Stacktrace, line)
		}
		return events, true
	}
	return events, false
}

// foldTraceback closes a buffered Python traceback, attaching it to the
// record that introduced it or synthesizing an ERROR event when the trace
// opened the input.
func foldTraceback(events []model.ExecutionEvent, tb []string, format, service string) []model.ExecutionEvent {
	if len(tb) == 0 {
		return events
	}
	stack := strings.Join(tb, "\n")
	excType := ""
	if m := excHeadRe.FindStringSubmatch(tb[len(tb)-1]); m != nil {
		excType = m[1]
	}
	if n := len(events); n > 0 {
		if events[n-1].ExceptionType == "" {
			events[n-1].ExceptionType = excType
		}
		events[n-1].Stacktrace = appendLine(events[n-1].Stacktrace, stack)
		return events
	}
	ev := appEvent(time.Time{}, model.LevelError, format, service, tb[len(tb)-1])
	ev.ExceptionType = excType
	ev.Stacktrace = stack
	return append(events, ev)
}

func appendLine(stack, line string) string {
	if stack == "" {
		return line
	}
	return stack + "\n" + line
}
