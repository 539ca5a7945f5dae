package applog

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	// NLog default layout: "2024-01-15 10:23:45.1234|ERROR|Shop.Gateway|msg".
	nlogLineRe = regexp.MustCompile(`(?m)^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}[.,]\d{3,4})\|(\w+)\|([^|]*)\|(.*)$`)
	// ASP.NET Core console header: "fail: Shop.Api.PaymentsController[0]".
	// The record's message, exception, and frames follow on indented lines.
	aspnetHeadRe = regexp.MustCompile(`(?m)^(trce|dbug|info|warn|fail|crit): ([\w.]+)\[\d+\]\s*$`)
	aspnetContRe = regexp.MustCompile(`^\s{2,}(\S.*)$`)
)

var aspnetLevels = map[string]model.LogLevel{
	"trce": model.LevelDebug,
	"dbug": model.LevelDebug,
	"info": model.LevelInfo,
	"warn": model.LevelWarn,
	"fail": model.LevelError,
	"crit": model.LevelFatal,
}

// dotnetParser handles NLog pipe-delimited logs and the ASP.NET Core
// console format.
type dotnetParser struct{}

func (dotnetParser) Name() string { return FormatDotNet }

func (dotnetParser) CanHandle(raw []byte) bool {
	return nlogLineRe.Match(raw) || aspnetHeadRe.Match(raw)
}

func (dotnetParser) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
	var events []model.ExecutionEvent
	open := false // last event is an ASP.NET record still accepting continuations
	for _, line := range scanLines(raw) {
		if strings.TrimSpace(line) == "" {
			open = false
			continue
		}
		if m := nlogLineRe.FindStringSubmatch(line); m != nil {
			ts, _ := model.ParseTimestamp(m[1])
			ev := appEvent(ts, model.ParseLogLevel(m[2]), FormatDotNet, serviceName, m[4])
			if m[3] != "" {
				ev.Metadata = map[string]string{MetaLogger: m[3]}
			}
			events = append(events, ev)
			open = false
			continue
		}
		if m := aspnetHeadRe.FindStringSubmatch(line); m != nil {
			ev := appEvent(time.Time{}, aspnetLevels[m[1]], FormatDotNet, serviceName, "")
			ev.Metadata = map[string]string{MetaLogger: m[2]}
			events = append(events, ev)
			open = true
			continue
		}
		if open && aspnetContRe.MatchString(line) {
			trimmed := strings.TrimSpace(line)
			last := &events[len(events)-1]
			if m := excHeadRe.FindStringSubmatch(trimmed); m != nil {
				if last.ExceptionType == "" {
					last.ExceptionType = m[1]
				}
				last.Stacktrace = appendLine(last.Stacktrace, trimmed)
			} else if strings.HasPrefix(trimmed, "at ") || strings.HasPrefix(trimmed, "--- End of") {
				last.Stacktrace = appendLine(last.Stacktrace, trimmed)
			} else if last.Message == "" {
				last.Message = trimmed
			} else {
				last.Message += "\n" + trimmed
			}
			continue
		}
		open = false
		// Column-zero exceptions after an NLog record.
		if next, ok := attachTrace(events, line, FormatDotNet, serviceName); ok {
			events = next
		}
	}
	model.FillTimestamps(events)
	return events
}
