package applog

import (
	"regexp"
	"strings"

	"github.com/tareqmamari/execintel/internal/model"
)

// Spring Boot console layout, both the classic space-separated form and the
// ISO form newer releases default to:
//
//	2024-01-15T10:23:46.001Z ERROR 1 --- [nio-8080-exec-1] c.s.PaymentController : submit failed
var springLineRe = regexp.MustCompile(`(?m)^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[.,]\d{3}(?:Z|[+-]\d{2}:?\d{2})?)\s+(TRACE|DEBUG|INFO|WARN|ERROR|FATAL)\s+\d+\s+---\s+\[\s*([^\]]*)\]\s+(\S+)\s+:\s*(.*)$`)

// springParser handles Spring Boot console output. Exceptions print after
// the record at column zero with their frames below, logback style.
type springParser struct{}

func (springParser) Name() string { return FormatSpring }

func (springParser) CanHandle(raw []byte) bool {
	return springLineRe.Match(raw)
}

func (springParser) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
	var events []model.ExecutionEvent
	for _, line := range scanLines(raw) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := springLineRe.FindStringSubmatch(line); m != nil {
			ts, _ := model.ParseTimestamp(m[1])
			ev := appEvent(ts, model.ParseLogLevel(m[2]), FormatSpring, serviceName, m[5])
			ev.Metadata = map[string]string{MetaLogger: m[4]}
			events = append(events, ev)
			continue
		}
		if next, ok := attachTrace(events, line, FormatSpring, serviceName); ok {
			events = next
		}
		// Banner art and other noise between records is skipped.
	}
	model.FillTimestamps(events)
	return events
}
