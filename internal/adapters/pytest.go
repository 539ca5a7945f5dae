package adapters

import (
	"regexp"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	pytestSessionRe  = regexp.MustCompile(`={3,} test session starts ={3,}`)
	pytestSectionRe  = regexp.MustCompile(`^={3,}.*={3,}$`)
	pytestHeaderRe   = regexp.MustCompile(`^_{5,}\s+(.+?)\s+_{5,}$`)
	pytestProgressRe = regexp.MustCompile(`^(\S+\.py)::(\S+)\s+(PASSED|FAILED|ERROR|SKIPPED|XFAIL|XPASS)`)
	pytestSummaryRe  = regexp.MustCompile(`^(FAILED|ERROR|PASSED|SKIPPED)\s+(\S+\.py)::(\S+?)(?:\s+-\s+(.*))?$`)
	pytestErrorRe    = regexp.MustCompile(`^E\s+(.*)$`)
	pytestFrameRe    = regexp.MustCompile(`^(\S+\.py):(\d+)(?::| in )`)
)

// pytestAdapter parses pytest console output: verbose progress lines,
// underscore-framed failure sections with "E " detail lines, and the short
// test summary.
type pytestAdapter struct{}

func newPytestAdapter() *pytestAdapter { return &pytestAdapter{} }

func (a *pytestAdapter) Name() string { return FrameworkPytest }

func (a *pytestAdapter) CanHandle(raw []byte) bool {
	if pytestSessionRe.Match(raw) {
		return true
	}
	return containsAny(raw, "short test summary info", "rootdir:") ||
		(pytestSummaryRe.Match(raw) && containsAny(raw, ".py::"))
}

func (a *pytestAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var (
		events    []model.ExecutionEvent
		current   string
		curFile   string
		message   string
		excType   string
		stack     []string
		inFailure bool
	)
	flush := func() {
		if !inFailure {
			return
		}
		if message == "" && len(stack) > 0 {
			message = firstLine(strings.Join(stack, "\n"))
		}
		if message != "" {
			ev := failureEvent(FrameworkPytest, time.Time{}, current, curFile, message, excType, strings.Join(stack, "\n"))
			events = append(events, ev)
		}
		message, excType, stack, inFailure = "", "", nil, false
	}

	for _, line := range scanLines(raw) {
		switch {
		case pytestSectionRe.MatchString(line):
			// Section banners (FAILURES, short test summary info, the
			// final tally) terminate any failure block in progress.
			flush()

		case pytestHeaderRe.MatchString(line):
			flush()
			current = pytestHeaderRe.FindStringSubmatch(line)[1]
			curFile = ""
			inFailure = true

		case pytestProgressRe.MatchString(line):
			m := pytestProgressRe.FindStringSubmatch(line)
			var status model.TestStatus
			switch m[3] {
			case "XFAIL":
				status = model.StatusSkip
			case "XPASS":
				status = model.StatusPass
			default:
				status, _ = model.ParseTestStatus(m[3])
			}
			ev := statusEvent(FrameworkPytest, time.Time{}, status, m[2], m[1], 0)
			events = append(events, ev)

		case pytestSummaryRe.MatchString(line):
			flush()
			m := pytestSummaryRe.FindStringSubmatch(line)
			status, _ := model.ParseTestStatus(m[1])
			ev := statusEvent(FrameworkPytest, time.Time{}, status, m[3], m[2], 0)
			if m[4] != "" {
				ev.Message = m[4]
				ev.ExceptionType = exceptionFromText(m[4])
			}
			events = append(events, ev)

		default:
			if !inFailure {
				continue
			}
			trimmed := strings.TrimRight(line, " ")
			if m := pytestErrorRe.FindStringSubmatch(trimmed); m != nil {
				if message == "" {
					message = m[1]
					excType = exceptionFromText(m[1])
				}
				stack = append(stack, trimmed)
				continue
			}
			if m := pytestFrameRe.FindStringSubmatch(strings.TrimSpace(trimmed)); m != nil {
				if curFile == "" {
					curFile = m[1]
				}
				stack = append(stack, strings.TrimSpace(trimmed))
				continue
			}
			if strings.TrimSpace(trimmed) != "" {
				stack = append(stack, trimmed)
			}
		}
	}
	flush()
	model.FillTimestamps(events)
	return events
}
