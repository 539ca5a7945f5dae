package model

import (
	"strings"
	"time"
)

// SynthEpoch anchors synthesized timestamps. A fixed instant rather than the
// wall clock, so parsing the same input twice yields identical events.
var SynthEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// timestampLayouts are tried in order by ParseTimestamp. Comma decimal
// separators are normalized to dots first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.0000", // NLog default
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
}

var clockLayouts = []string{
	"15:04:05.000",
	"15:04:05",
}

// ParseTimestamp parses the common timestamp spellings found in test and
// service logs. Bare clock times are anchored to the synthetic epoch's date.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	for _, layout := range clockLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return time.Date(SynthEpoch.Year(), SynthEpoch.Month(), SynthEpoch.Day(),
				ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), true
		}
	}
	return time.Time{}, false
}

// FillTimestamps gives every event a timestamp: parsed ones are kept, gaps
// inherit the most recent parsed time plus a millisecond per event, and a
// fully untimestamped log counts up from the fixed epoch.
func FillTimestamps(events []ExecutionEvent) {
	last := SynthEpoch
	for i := range events {
		if events[i].Timestamp.IsZero() {
			last = last.Add(time.Millisecond)
			events[i].Timestamp = last
		} else {
			last = events[i].Timestamp
		}
	}
}
