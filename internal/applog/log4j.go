package applog

import (
	"regexp"
	"strings"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	// log4j pattern order, level before thread:
	//
	//	2024-01-15 10:23:47,456 ERROR [http-nio-exec-2] com.shop.ChargeService - charge rejected
	log4jLineRe = regexp.MustCompile(`(?m)^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}[,.]\d{3})\s+(TRACE|DEBUG|INFO|WARN|ERROR|FATAL)\s+\[([^\]]+)\]\s+(\S+)\s+-\s+(.*)$`)
	// logback default order, thread before level, timestamp may be a bare
	// clock:
	//
	//	10:23:45.123 [main] ERROR c.s.ChargeService - gateway unreachable
	logbackLineRe = regexp.MustCompile(`(?m)^(\d{2}:\d{2}:\d{2}[.,]\d{3}|\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}[,.]\d{3})\s+\[([^\]]+)\]\s+(TRACE|DEBUG|INFO|WARN|ERROR|FATAL)\s+(\S+)\s+-\s+(.*)$`)
)

// log4jParser handles log4j and logback console layouts.
type log4jParser struct{}

func (log4jParser) Name() string { return FormatLog4j }

func (log4jParser) CanHandle(raw []byte) bool {
	return log4jLineRe.Match(raw) || logbackLineRe.Match(raw)
}

func (log4jParser) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
	var events []model.ExecutionEvent
	for _, line := range scanLines(raw) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ts, level, logger, msg string
		if m := log4jLineRe.FindStringSubmatch(line); m != nil {
			ts, level, logger, msg = m[1], m[2], m[4], m[5]
		} else if m := logbackLineRe.FindStringSubmatch(line); m != nil {
			ts, level, logger, msg = m[1], m[3], m[4], m[5]
		} else {
			if next, ok := attachTrace(events, line, FormatLog4j, serviceName); ok {
				events = next
			}
			continue
		}
		parsed, _ := model.ParseTimestamp(ts)
		ev := appEvent(parsed, model.ParseLogLevel(level), FormatLog4j, serviceName, msg)
		ev.Metadata = map[string]string{MetaLogger: logger}
		events = append(events, ev)
	}
	model.FillTimestamps(events)
	return events
}
