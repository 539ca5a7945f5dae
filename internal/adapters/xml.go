package adapters

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

// statusLevel maps a test status to the level of its summary event.
func statusLevel(status model.TestStatus) model.LogLevel {
	switch status {
	case model.StatusFail, model.StatusError:
		return model.LevelError
	default:
		return model.LevelInfo
	}
}

func statusEvent(framework string, ts time.Time, status model.TestStatus, testName, testFile string, durationMS int64) model.ExecutionEvent {
	return model.ExecutionEvent{
		Timestamp:     ts,
		Level:         statusLevel(status),
		Source:        framework,
		Message:       "test " + strings.ToLower(string(status)) + ": " + testName,
		LogSourceType: model.SourceAutomation,
		TestName:      testName,
		TestFile:      testFile,
		Metadata: map[string]string{
			MetaStatus:     string(status),
			MetaDurationMS: strconv.FormatInt(durationMS, 10),
		},
	}
}

func failureEvent(framework string, ts time.Time, testName, testFile, message, excType, stacktrace string) model.ExecutionEvent {
	if excType == "" {
		excType = exceptionFromText(message + "\n" + stacktrace)
	}
	return model.ExecutionEvent{
		Timestamp:     ts,
		Level:         model.LevelError,
		Source:        framework,
		Message:       message,
		LogSourceType: model.SourceAutomation,
		TestName:      testName,
		TestFile:      testFile,
		ExceptionType: excType,
		Stacktrace:    strings.TrimSpace(stacktrace),
	}
}

// secondsToMS converts a "12.345" seconds attribute to milliseconds.
func secondsToMS(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(f * 1000)
}

// ---- JUnit ----

type junitSuites struct {
	Suites []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name      string      `xml:"name,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	Cases     []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	File      string        `xml:"file,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitProblem `xml:"failure"`
	Error     *junitProblem `xml:"error"`
	Skipped   *junitProblem `xml:"skipped"`
}

type junitProblem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitAdapter struct {
	logger *zap.Logger
}

func newJUnitAdapter(logger *zap.Logger) *junitAdapter {
	return &junitAdapter{logger: logger.Named("junit")}
}

func (a *junitAdapter) Name() string { return FrameworkJUnit }

func (a *junitAdapter) CanHandle(raw []byte) bool {
	return bytes.Contains(raw, []byte("<testsuites")) || bytes.Contains(raw, []byte("<testsuite"))
}

func (a *junitAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var suites []junitSuite
	if bytes.Contains(raw, []byte("<testsuites")) {
		var doc junitSuites
		if err := xml.Unmarshal(raw, &doc); err != nil {
			a.logger.Warn("junit xml parse failed", zap.Error(err))
			return nil
		}
		suites = doc.Suites
	} else {
		var suite junitSuite
		if err := xml.Unmarshal(raw, &suite); err != nil {
			a.logger.Warn("junit xml parse failed", zap.Error(err))
			return nil
		}
		suites = []junitSuite{suite}
	}

	var events []model.ExecutionEvent
	for _, suite := range suites {
		cursor, _ := model.ParseTimestamp(suite.Timestamp)
		for _, tc := range suite.Cases {
			name := tc.Name
			if tc.ClassName != "" {
				name = tc.ClassName + "." + tc.Name
			}
			durMS := secondsToMS(tc.Time)

			status := model.StatusPass
			problem := tc.Failure
			switch {
			case tc.Error != nil:
				status, problem = model.StatusError, tc.Error
			case tc.Failure != nil:
				status = model.StatusFail
			case tc.Skipped != nil:
				status, problem = model.StatusSkip, nil
			}

			events = append(events, statusEvent(FrameworkJUnit, cursor, status, name, tc.File, durMS))
			if problem != nil {
				message := problem.Message
				if message == "" {
					message = firstLine(strings.TrimSpace(problem.Body))
				}
				events = append(events, failureEvent(FrameworkJUnit, cursor, name, tc.File, message, problem.Type, problem.Body))
			}
			if !cursor.IsZero() {
				cursor = cursor.Add(time.Duration(durMS) * time.Millisecond)
			}
		}
	}
	model.FillTimestamps(events)
	return events
}

// ---- TestNG ----

type testngResults struct {
	Suites []testngSuite `xml:"suite"`
}

type testngSuite struct {
	Name      string       `xml:"name,attr"`
	StartedAt string       `xml:"started-at,attr"`
	Tests     []testngTest `xml:"test"`
}

type testngTest struct {
	Name    string        `xml:"name,attr"`
	Classes []testngClass `xml:"class"`
}

type testngClass struct {
	Name    string         `xml:"name,attr"`
	Methods []testngMethod `xml:"test-method"`
}

type testngMethod struct {
	Name       string           `xml:"name,attr"`
	Status     string           `xml:"status,attr"`
	IsConfig   string           `xml:"is-config,attr"`
	StartedAt  string           `xml:"started-at,attr"`
	DurationMS string           `xml:"duration-ms,attr"`
	Exception  *testngException `xml:"exception"`
}

type testngException struct {
	Class      string `xml:"class,attr"`
	Message    string `xml:"message"`
	Stacktrace string `xml:"full-stacktrace"`
}

var testngTextResultRe = regexp.MustCompile(`^(PASSED|FAILED|SKIPPED): (\S+)`)

type testngAdapter struct {
	logger *zap.Logger
}

func newTestNGAdapter(logger *zap.Logger) *testngAdapter {
	return &testngAdapter{logger: logger.Named("testng")}
}

func (a *testngAdapter) Name() string { return FrameworkTestNG }

func (a *testngAdapter) CanHandle(raw []byte) bool {
	if bytes.Contains(raw, []byte("<testng-results")) {
		return true
	}
	// JUnit XML produced by a TestNG run mentions org.testng in stack
	// traces; leave those to the junit adapter.
	return containsAny(raw, "org.testng") && !bytes.Contains(raw, []byte("<testsuite"))
}

func (a *testngAdapter) Parse(raw []byte) []model.ExecutionEvent {
	if bytes.Contains(raw, []byte("<testng-results")) {
		return a.parseXML(raw)
	}
	return a.parseText(raw)
}

func (a *testngAdapter) parseXML(raw []byte) []model.ExecutionEvent {
	var doc testngResults
	if err := xml.Unmarshal(raw, &doc); err != nil {
		a.logger.Warn("testng xml parse failed", zap.Error(err))
		return nil
	}

	var events []model.ExecutionEvent
	for _, suite := range doc.Suites {
		for _, test := range suite.Tests {
			for _, class := range test.Classes {
				for _, method := range class.Methods {
					if method.IsConfig == "true" {
						continue
					}
					name := method.Name
					if class.Name != "" {
						name = class.Name + "." + method.Name
					}
					status, ok := model.ParseTestStatus(method.Status)
					if !ok {
						status = model.StatusError
					}
					ts, _ := model.ParseTimestamp(method.StartedAt)
					durMS, _ := strconv.ParseInt(method.DurationMS, 10, 64)

					events = append(events, statusEvent(FrameworkTestNG, ts, status, name, "", durMS))
					if exc := method.Exception; exc != nil {
						message := strings.TrimSpace(exc.Message)
						if message == "" {
							message = firstLine(strings.TrimSpace(exc.Stacktrace))
						}
						events = append(events, failureEvent(FrameworkTestNG, ts, name, "", message, exc.Class, exc.Stacktrace))
					}
				}
			}
		}
	}
	model.FillTimestamps(events)
	return events
}

// parseText handles TestNG console output: "FAILED: method" result lines
// followed by the thrown exception and its java stack frames.
func (a *testngAdapter) parseText(raw []byte) []model.ExecutionEvent {
	var (
		events  []model.ExecutionEvent
		current string
		failure *model.ExecutionEvent
		stack   []string
	)
	flush := func() {
		if failure != nil {
			failure.Stacktrace = strings.Join(stack, "\n")
			events = append(events, *failure)
			failure, stack = nil, nil
		}
	}

	for _, line := range scanLines(raw) {
		trimmed := strings.TrimSpace(line)
		if m := testngTextResultRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			current = m[2]
			status, _ := model.ParseTestStatus(m[1])
			events = append(events, statusEvent(FrameworkTestNG, time.Time{}, status, current, "", 0))
			continue
		}
		if strings.HasPrefix(trimmed, "at ") && failure != nil {
			stack = append(stack, line)
			continue
		}
		if exc := exceptionFromText(trimmed); exc != "" && strings.Contains(trimmed, ":") {
			flush()
			ev := failureEvent(FrameworkTestNG, time.Time{}, current, "", trimmed, exc, "")
			failure = &ev
			stack = append(stack, line)
		}
	}
	flush()
	model.FillTimestamps(events)
	return events
}

// ---- NUnit ----

type nunitRun struct {
	Suites []nunitSuite `xml:"test-suite"`
	Cases  []nunitCase  `xml:"test-case"`
}

type nunitSuite struct {
	Suites []nunitSuite `xml:"test-suite"`
	Cases  []nunitCase  `xml:"test-case"`
}

type nunitCase struct {
	Name      string        `xml:"name,attr"`
	FullName  string        `xml:"fullname,attr"`
	Result    string        `xml:"result,attr"`
	Duration  string        `xml:"duration,attr"`
	Time      string        `xml:"time,attr"`
	StartTime string        `xml:"start-time,attr"`
	Failure   *nunitFailure `xml:"failure"`
}

type nunitFailure struct {
	Message    string `xml:"message"`
	StackTrace string `xml:"stack-trace"`
}

type nunitAdapter struct {
	logger *zap.Logger
}

func newNUnitAdapter(logger *zap.Logger) *nunitAdapter {
	return &nunitAdapter{logger: logger.Named("nunit")}
}

func (a *nunitAdapter) Name() string { return FrameworkNUnit }

func (a *nunitAdapter) CanHandle(raw []byte) bool {
	return bytes.Contains(raw, []byte("<test-run")) || bytes.Contains(raw, []byte("<test-results"))
}

func (a *nunitAdapter) Parse(raw []byte) []model.ExecutionEvent {
	var root nunitRun
	if err := xml.Unmarshal(raw, &root); err != nil {
		a.logger.Warn("nunit xml parse failed", zap.Error(err))
		return nil
	}

	var events []model.ExecutionEvent
	var walk func(cases []nunitCase, suites []nunitSuite)
	walk = func(cases []nunitCase, suites []nunitSuite) {
		for _, tc := range cases {
			name := tc.FullName
			if name == "" {
				name = tc.Name
			}
			status, ok := model.ParseTestStatus(tc.Result)
			if !ok {
				status = model.StatusError
			}
			ts, _ := model.ParseTimestamp(strings.TrimSuffix(strings.TrimSpace(tc.StartTime), "Z"))
			durAttr := tc.Duration
			if durAttr == "" {
				durAttr = tc.Time
			}

			events = append(events, statusEvent(FrameworkNUnit, ts, status, name, "", secondsToMS(durAttr)))
			if tc.Failure != nil {
				message := strings.TrimSpace(tc.Failure.Message)
				events = append(events, failureEvent(FrameworkNUnit, ts, name, "", message, "", tc.Failure.StackTrace))
			}
		}
		for _, s := range suites {
			walk(s.Cases, s.Suites)
		}
	}
	walk(root.Cases, root.Suites)
	model.FillTimestamps(events)
	return events
}
