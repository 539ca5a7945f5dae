package adapters

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	restRequestMethodRe = regexp.MustCompile(`^Request method:\s*([A-Z]+)\s*$`)
	restRequestURIRe    = regexp.MustCompile(`^Request URI:\s*(\S+)\s*$`)
	restStatusLineRe    = regexp.MustCompile(`^HTTP/\d(?:\.\d)?\s+(\d{3})\s*(.*)$`)
	restExpectationRe   = regexp.MustCompile(`^\s*(?:\d+ expectation[s]? failed\.?|Expected .*but was.*|JSON path .*)$`)
)

// restAssuredAdapter parses REST Assured request/response dumps plus the
// java assertion errors that follow failed expectations.
type restAssuredAdapter struct{}

func newRestAssuredAdapter() *restAssuredAdapter { return &restAssuredAdapter{} }

func (a *restAssuredAdapter) Name() string { return FrameworkRestAssured }

func (a *restAssuredAdapter) CanHandle(raw []byte) bool {
	if containsAny(raw, "io.restassured") {
		return true
	}
	return containsAny(raw, "Request method:") && containsAny(raw, "Request URI:")
}

func (a *restAssuredAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events []model.ExecutionEvent
		method string
		url    string
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

		if m := restRequestMethodRe.FindStringSubmatch(trimmed); m != nil {
			method = m[1]
			continue
		}
		if m := restRequestURIRe.FindStringSubmatch(trimmed); m != nil {
			url = m[1]
			ev := model.ExecutionEvent{
				Level:         model.LevelInfo,
				Source:        FrameworkRestAssured,
				Message:       method + " " + url,
				LogSourceType: model.SourceAutomation,
				Metadata:      map[string]string{MetaMethod: method, MetaURL: url},
			}
			events = append(events, ev)
			continue
		}
		if m := restStatusLineRe.FindStringSubmatch(trimmed); m != nil {
			code, _ := strconv.Atoi(m[1])
			level := model.LevelInfo
			if code >= 400 {
				level = model.LevelError
			}
			ev := model.ExecutionEvent{
				Level:         level,
				Source:        FrameworkRestAssured,
				Message:       trimmed,
				LogSourceType: model.SourceAutomation,
				Metadata:      map[string]string{MetaStatusCode: m[1]},
			}
			if method != "" {
				ev.Metadata[MetaMethod] = method
			}
			if url != "" {
				ev.Metadata[MetaURL] = url
			}
			events = append(events, ev)
			continue
		}
		if javaFrameRe.MatchString(line) {
			appendStack(strings.TrimRight(line, " \t"))
			continue
		}
		if m := exceptionLineRe.FindStringSubmatch(trimmed); m != nil {
			ev := failureEvent(FrameworkRestAssured, time.Time{}, "", "", trimmed, m[1], "")
			if url != "" {
				ev.Metadata = map[string]string{MetaMethod: method, MetaURL: url}
			}
			events = append(events, ev)
			continue
		}
		if restExpectationRe.MatchString(trimmed) {
			if n := len(events); n > 0 && events[n-1].Level == model.LevelError && events[n-1].Stacktrace == "" {
				events[n-1].Message += "\n" + trimmed
				continue
			}
			events = append(events, failureEvent(FrameworkRestAssured, time.Time{}, "", "", trimmed, "AssertionError", ""))
		}
	}
	model.FillTimestamps(events)
	return events
}
