// Package adapters turns raw test-framework output into chronological
// ExecutionEvent sequences. Each adapter owns one framework's format; a
// registry tries them in a fixed order so identical inputs always detect
// identically.
package adapters

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

// Framework names accepted by the registry and reported on results.
const (
	FrameworkTestNG      = "testng"
	FrameworkJUnit       = "junit"
	FrameworkNUnit       = "nunit"
	FrameworkRobot       = "robot"
	FrameworkCypress     = "cypress"
	FrameworkPlaywright  = "playwright"
	FrameworkPytest      = "pytest"
	FrameworkBehave      = "behave"
	FrameworkSpecFlow    = "specflow"
	FrameworkCucumber    = "cucumber"
	FrameworkRestAssured = "restassured"
	FrameworkSelenium    = "selenium"
	FrameworkGeneric     = "generic"
)

// Metadata keys set by adapters on the events they emit.
const (
	MetaStatus     = model.MetadataStatus
	MetaDurationMS = model.MetadataDurationMS
	MetaMethod     = model.MetadataMethod
	MetaURL        = model.MetadataURL
	MetaStatusCode = model.MetadataStatusCode
)

// Adapter parses one framework's output. CanHandle is a cheap signature
// check and must not panic; Parse is best effort and never fails, malformed
// fragments are skipped.
type Adapter interface {
	Name() string
	CanHandle(raw []byte) bool
	Parse(raw []byte) []model.ExecutionEvent
}

// Registry holds all adapters in detection order. The order is part of the
// output contract: the first adapter whose CanHandle accepts the input wins,
// and the generic adapter accepts everything.
type Registry struct {
	ordered []Adapter
	byName  map[string]Adapter
	logger  *zap.Logger
}

// NewRegistry builds the registry with the full adapter set, most
// structurally distinctive formats first.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	ordered := []Adapter{
		newTestNGAdapter(logger),
		newJUnitAdapter(logger),
		newNUnitAdapter(logger),
		newRobotAdapter(),
		newCypressAdapter(),
		newPlaywrightAdapter(),
		newPytestAdapter(),
		newBehaveAdapter(),
		newSpecFlowAdapter(),
		newCucumberAdapter(),
		newRestAssuredAdapter(),
		newSeleniumAdapter(),
		newGenericAdapter(),
	}
	byName := make(map[string]Adapter, len(ordered))
	for _, a := range ordered {
		byName[a.Name()] = a
	}
	return &Registry{ordered: ordered, byName: byName, logger: logger}
}

// Detect returns the first adapter that accepts the input. The generic
// adapter accepts everything, so Detect never returns nil.
func (r *Registry) Detect(raw []byte) Adapter {
	for _, a := range r.ordered {
		if a.CanHandle(raw) {
			return a
		}
	}
	return r.byName[FrameworkGeneric]
}

// Get resolves an explicit framework name, tolerating common aliases.
func (r *Registry) Get(name string) (Adapter, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch key {
	case "robotframework":
		key = FrameworkRobot
	case "py.test":
		key = FrameworkPytest
	case "restassured", "rest":
		key = FrameworkRestAssured
	}
	a, ok := r.byName[key]
	return a, ok
}

// Names returns the framework names in detection order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, a := range r.ordered {
		names[i] = a.Name()
	}
	return names
}

// scanLines splits raw input into lines with line endings canonicalized,
// tolerating lines far beyond bufio's default token size.
func scanLines(raw []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

var exceptionTokenRe = regexp.MustCompile(`\b([A-Za-z_][\w.]*(?:Exception|Error|Failure|Timeout))\b`)

// exceptionFromText pulls the first exception-looking token out of a
// message, e.g. "java.lang.AssertionError" or "TimeoutError".
func exceptionFromText(s string) string {
	m := exceptionTokenRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// containsAny reports whether raw contains any of the needles,
// case-insensitively.
func containsAny(raw []byte, needles ...string) bool {
	lowered := bytes.ToLower(raw)
	for _, n := range needles {
		if bytes.Contains(lowered, []byte(strings.ToLower(n))) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
