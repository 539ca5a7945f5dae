package applog

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	// logging.basicConfig default with a logger name:
	//
	//	2024-01-15 10:23:46,500 - payments - ERROR - charge submit failed
	pyLineRe = regexp.MustCompile(`(?m)^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}[,.]\d{3})\s+-\s+([\w.]+)\s+-\s+(DEBUG|INFO|WARNING|ERROR|CRITICAL)\s+-\s+(.*)$`)
	// The bare "%(levelname)s:%(name)s:%(message)s" root format:
	//
	//	ERROR:payments:gateway returned 502
	pyShortRe = regexp.MustCompile(`(?m)^(DEBUG|INFO|WARNING|ERROR|CRITICAL):([^:\s][^:]*):(.*)$`)
)

const tracebackHead = "Traceback (most recent call last):"

// pythonParser handles the stdlib logging module's common formats.
// logging.exception prints the traceback directly under its record, so a
// buffered traceback folds into the event before it.
type pythonParser struct{}

func (pythonParser) Name() string { return FormatPython }

func (pythonParser) CanHandle(raw []byte) bool {
	return pyLineRe.Match(raw) || pyShortRe.Match(raw)
}

func (pythonParser) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
	var events []model.ExecutionEvent
	var tb []string
	for _, line := range scanLines(raw) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if tb != nil {
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				tb = append(tb, line)
				continue
			}
			if excHeadRe.MatchString(line) {
				tb = append(tb, line)
				events = foldTraceback(events, tb, FormatPython, serviceName)
				tb = nil
				continue
			}
			events = foldTraceback(events, tb, FormatPython, serviceName)
			tb = nil
		}
		if strings.HasPrefix(line, tracebackHead) {
			tb = []string{line}
			continue
		}
		if m := pyLineRe.FindStringSubmatch(line); m != nil {
			ts, _ := model.ParseTimestamp(m[1])
			ev := appEvent(ts, model.ParseLogLevel(m[3]), FormatPython, serviceName, m[4])
			ev.Metadata = map[string]string{MetaLogger: m[2]}
			events = append(events, ev)
			continue
		}
		if m := pyShortRe.FindStringSubmatch(line); m != nil {
			ev := appEvent(time.Time{}, model.ParseLogLevel(m[1]), FormatPython, serviceName, m[3])
			ev.Metadata = map[string]string{MetaLogger: m[2]}
			events = append(events, ev)
			continue
		}
		// Unformatted stderr mixed into the stream.
	}
	events = foldTraceback(events, tb, FormatPython, serviceName)
	model.FillTimestamps(events)
	return events
}
