package adapters

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	robotResultRe    = regexp.MustCompile(`^(.*?)\s*\|\s*(PASS|FAIL|SKIP)\s*\|\s*(.*)$`)
	robotSeparatorRe = regexp.MustCompile(`^[-=]{10,}$`)
	robotTallyRe     = regexp.MustCompile(`^\d+ tests?, \d+ passed, \d+ failed`)
)

// robotAdapter parses Robot Framework console output: a test row ends with
// "| PASS |" or "| FAIL |", and the failure message follows on the next
// lines until the separator rule. Suite rows are told apart from test rows
// by the "N tests, M passed, K failed" tally that follows them.
type robotAdapter struct{}

func newRobotAdapter() *robotAdapter { return &robotAdapter{} }

func (a *robotAdapter) Name() string { return FrameworkRobot }

func (a *robotAdapter) CanHandle(raw []byte) bool {
	return containsAny(raw, "| PASS |", "| FAIL |", "robot framework")
}

func (a *robotAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events   []model.ExecutionEvent
		current  string
		pending  []string
		awaiting bool
	)
	flush := func() {
		if awaiting && len(pending) > 0 {
			message := strings.Join(pending, "\n")
			events = append(events, failureEvent(FrameworkRobot, time.Time{}, current, "", message, "", ""))
		}
		pending, awaiting = nil, false
	}

	lines := scanLines(raw)
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if robotSeparatorRe.MatchString(trimmed) {
			flush()
			continue
		}
		if m := robotResultRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			if i+1 < len(lines) && robotTallyRe.MatchString(strings.TrimSpace(lines[i+1])) {
				// Suite result row, not a test.
				i++
				continue
			}
			// "Test Name :: documentation" keeps only the name part.
			name := strings.TrimSpace(m[1])
			if idx := strings.Index(name, " :: "); idx >= 0 {
				name = name[:idx]
			}
			if name == "" {
				continue
			}
			current = name
			status, _ := model.ParseTestStatus(m[2])
			events = append(events, statusEvent(FrameworkRobot, time.Time{}, status, name, "", 0))
			if status == model.StatusFail {
				awaiting = true
				if rest := strings.TrimSpace(m[3]); rest != "" {
					pending = append(pending, rest)
				}
			}
			continue
		}
		if awaiting && trimmed != "" {
			pending = append(pending, trimmed)
		}
	}
	flush()
	model.FillTimestamps(events)
	return events
}
