package model

import (
	"strings"
	"time"
)

// PatternStatus tracks the triage state of a recurring failure signature.
type PatternStatus string

// Pattern lifecycle states.
const (
	PatternOpen          PatternStatus = "OPEN"
	PatternInvestigating PatternStatus = "INVESTIGATING"
	PatternResolved      PatternStatus = "RESOLVED"
	PatternIgnored       PatternStatus = "IGNORED"
)

// PatternStatuses lists the lifecycle states in canonical order.
var PatternStatuses = []PatternStatus{
	PatternOpen,
	PatternInvestigating,
	PatternResolved,
	PatternIgnored,
}

// ParsePatternStatus resolves a case-insensitive status name.
func ParsePatternStatus(raw string) (PatternStatus, bool) {
	candidate := PatternStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, ps := range PatternStatuses {
		if ps == candidate {
			return ps, true
		}
	}
	return "", false
}

// Pattern is a deduplicated failure signature tracked across runs. The hash
// is a deterministic function of the normalized message and signal type, so
// the same failure always lands on the same row.
type Pattern struct {
	PatternHash       string        `json:"pattern_hash"`
	NormalizedMessage string        `json:"normalized_message"`
	SignalType        SignalType    `json:"signal_type"`
	FirstSeen         time.Time     `json:"first_seen"`
	LastSeen          time.Time     `json:"last_seen"`
	OccurrenceCount   int64         `json:"occurrence_count"`
	Status            PatternStatus `json:"status"`
}
