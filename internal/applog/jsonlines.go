package applog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

// jsonParser handles newline-delimited JSON logs as emitted by zap, logrus,
// bunyan, serilog and friends. Field names vary across libraries, so each
// field is resolved through an ordered list of common spellings.
type jsonParser struct{}

func (jsonParser) Name() string { return FormatJSON }

// CanHandle accepts input whose leading lines contain at least one valid
// JSON object. It stops after a few lines so a huge plain-text log is not
// scanned twice.
func (jsonParser) CanHandle(raw []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	checked := 0
	for scanner.Scan() && checked < 10 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") && json.Valid([]byte(line)) {
			return true
		}
		checked++
	}
	return false
}

func (jsonParser) Parse(raw []byte, serviceName string) []model.ExecutionEvent {
	var events []model.ExecutionEvent
	for _, line := range scanLines(raw) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
			continue
		}
		ev := appEvent(timeOfRecord(rec), levelOfRecord(rec), FormatJSON, serviceName, "")
		ev.Message = stringField(rec, "message", "msg")
		if ev.Message == "" {
			ev.Message = trimmed
		}
		if s := stringField(rec, "service", "app", "logger"); s != "" {
			ev.ServiceName = s
		}
		if s := stringField(rec, "stack_trace", "stacktrace", "exception"); s != "" {
			ev.Stacktrace = s
			ev.ExceptionType = exceptionFromText(s)
		}
		events = append(events, ev)
	}
	model.FillTimestamps(events)
	return events
}

func timeOfRecord(rec map[string]any) time.Time {
	if s := stringField(rec, "timestamp", "time", "@timestamp"); s != "" {
		if ts, ok := model.ParseTimestamp(s); ok {
			return ts
		}
	}
	return time.Time{}
}

func levelOfRecord(rec map[string]any) model.LogLevel {
	if s := stringField(rec, "level", "severity"); s != "" {
		return model.ParseLogLevel(s)
	}
	return model.LevelInfo
}

// stringField returns the first non-empty string value among the given keys.
func stringField(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
