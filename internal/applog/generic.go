package applog

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	tsPrefixRe    = regexp.MustCompile(`^\[?(\d{4}[-/]\d{2}[-/]\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})?|\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?)\]?\s*`)
	levelPrefixRe = regexp.MustCompile(`^[\[(]?(TRACE|VERBOSE|DEBUG|INFO|WARN|WARNING|ERROR|ERR|SEVERE|FATAL|CRITICAL|PANIC)[\])]?\s*[:\- ]\s*`)
)

// genericParser is the fallback for free-form text. Every non-blank line
// becomes an event; optional timestamp and level prefixes are recognized,
// and Java and Python stack traces fold into the record above them.
type genericParser struct{}

func (genericParser) Name() string { return FormatGeneric }

func (genericParser) CanHandle([]byte) bool { return true }

func (genericParser) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
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
				events = foldTraceback(events, tb, FormatGeneric, serviceName)
				tb = nil
				continue
			}
			events = foldTraceback(events, tb, FormatGeneric, serviceName)
			tb = nil
		}
		if strings.HasPrefix(line, tracebackHead) {
			tb = []string{line}
			continue
		}
		if next, ok := attachTrace(events, line, FormatGeneric, serviceName); ok {
			events = next
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
		if m := levelPrefixRe.FindStringSubmatch(rest); m != nil {
			level = model.ParseLogLevel(m[1])
			rest = rest[len(m[0]):]
		}
		events = append(events, appEvent(ts, level, FormatGeneric, serviceName, strings.TrimSpace(rest)))
	}
	events = foldTraceback(events, tb, FormatGeneric, serviceName)
	model.FillTimestamps(events)
	return events
}
