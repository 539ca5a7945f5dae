// Package correlate checks whether application-service logs confirm an
// automation failure. A match never downgrades a classification; it only
// adds evidence, and the analyzer applies a confidence boost when the
// failure is a product defect.
package correlate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

// ProductDefectBoost is added to the deterministic confidence when
// correlated application logs back a PRODUCT_DEFECT classification.
const ProductDefectBoost = 0.15

const (
	defaultWindow          = 30 * time.Second
	defaultMinSharedTokens = 3
)

// Correlation bases, strongest first. Evaluation stops at the first hit.
const (
	BasisExceptionType = "exception_type"
	BasisStatusCode    = "status_code"
	BasisSharedTokens  = "shared_tokens"
)

// Config holds the correlation knobs.
type Config struct {
	Window          time.Duration
	MinSharedTokens int
}

// Result reports whether application logs corroborate the failure.
type Result struct {
	Matched     bool
	ServiceName string
	Sample      string
	Basis       string
	Evidence    []string
}

// Correlator matches automation failures against application events.
type Correlator struct {
	window    time.Duration
	minTokens int
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := cfg.Window
	if w <= 0 {
		w = defaultWindow
	}
	mt := cfg.MinSharedTokens
	if mt <= 0 {
		mt = defaultMinSharedTokens
	}
	return &Correlator{window: w, minTokens: mt, logger: logger.Named("correlate")}
}

// Correlate inspects the test's events and signals. Application events
// are candidates when they fall inside the automation window and are at
// least WARN. Bases are tried in order: shared exception type, HTTP
// status occurrence, shared distinctive tokens. The first hit wins.
func (c *Correlator) Correlate(events []*model.ExecutionEvent, signals []*model.FailureSignal) Result {
	var auto, app []*model.ExecutionEvent
	for _, ev := range events {
		switch ev.LogSourceType {
		case model.SourceApplication:
			app = append(app, ev)
		default:
			auto = append(auto, ev)
		}
	}
	if len(app) == 0 {
		return Result{}
	}

	candidates := c.windowCandidates(auto, app)
	if len(candidates) == 0 {
		c.logger.Debug("no application events in correlation window",
			zap.Int("application_events", len(app)))
		return Result{}
	}

	if res, ok := c.byExceptionType(auto, candidates); ok {
		return res
	}
	if res, ok := c.byStatusCode(signals, candidates); ok {
		return res
	}
	if res, ok := c.bySharedTokens(auto, signals, candidates); ok {
		return res
	}
	return Result{}
}

// windowCandidates keeps application events at level >= WARN inside
// [firstAutomation - window, lastAutomation + window]. When automation
// events carry no usable timestamps the window is unbounded.
func (c *Correlator) windowCandidates(auto, app []*model.ExecutionEvent) []*model.ExecutionEvent {
	var first, last time.Time
	for _, ev := range auto {
		if ev.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if last.IsZero() || ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	bounded := !first.IsZero()
	lo := first.Add(-c.window)
	hi := last.Add(c.window)

	var out []*model.ExecutionEvent
	for _, ev := range app {
		if !ev.Level.AtLeast(model.LevelWarn) {
			continue
		}
		if bounded && (ev.Timestamp.Before(lo) || ev.Timestamp.After(hi)) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (c *Correlator) byExceptionType(auto, candidates []*model.ExecutionEvent) (Result, bool) {
	var excTypes []string
	seen := map[string]bool{}
	for _, ev := range auto {
		if ev.ExceptionType == "" || seen[ev.ExceptionType] {
			continue
		}
		seen[ev.ExceptionType] = true
		excTypes = append(excTypes, ev.ExceptionType)
	}
	for _, exc := range excTypes {
		for _, cand := range candidates {
			if strings.EqualFold(cand.ExceptionType, exc) || containsFold(cand.Message, exc) {
				return c.hit(BasisExceptionType, cand,
					fmt.Sprintf("shared exception type %s", exc)), true
			}
		}
	}
	return Result{}, false
}

func (c *Correlator) byStatusCode(signals []*model.FailureSignal, candidates []*model.ExecutionEvent) (Result, bool) {
	var codes []string
	seen := map[string]bool{}
	for _, sig := range signals {
		if sig.SignalType != model.SignalHTTPError {
			continue
		}
		code := sig.Metadata[model.MetadataStatusCode]
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	for _, code := range codes {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(code) + `\b`)
		if err != nil {
			continue
		}
		for _, cand := range candidates {
			if cand.Metadata[model.MetadataStatusCode] == code || re.MatchString(cand.Message) {
				return c.hit(BasisStatusCode, cand,
					fmt.Sprintf("HTTP status %s appears in application logs", code)), true
			}
		}
	}
	return Result{}, false
}

func (c *Correlator) bySharedTokens(auto []*model.ExecutionEvent, signals []*model.FailureSignal, candidates []*model.ExecutionEvent) (Result, bool) {
	var messages []string
	for _, sig := range signals {
		if sig.Message != "" {
			messages = append(messages, sig.Message)
		}
	}
	if len(messages) == 0 {
		for _, ev := range auto {
			if ev.Level.AtLeast(model.LevelError) && ev.Message != "" {
				messages = append(messages, ev.Message)
			}
		}
	}
	for _, msg := range messages {
		want := tokens(msg)
		if len(want) == 0 {
			continue
		}
		for _, cand := range candidates {
			shared := 0
			for tok := range tokens(cand.Message) {
				if _, ok := want[tok]; ok {
					shared++
				}
			}
			if shared >= c.minTokens {
				return c.hit(BasisSharedTokens, cand,
					fmt.Sprintf("%d distinctive tokens shared with application message", shared)), true
			}
		}
	}
	return Result{}, false
}

func (c *Correlator) hit(basis string, cand *model.ExecutionEvent, detail string) Result {
	svc := cand.ServiceName
	if svc == "" {
		svc = cand.Source
	}
	sample := truncate(cand.Message, 160)
	c.logger.Debug("application log correlation",
		zap.String("basis", basis),
		zap.String("service", svc))
	return Result{
		Matched:     true,
		ServiceName: svc,
		Sample:      sample,
		Basis:       basis,
		Evidence: []string{
			fmt.Sprintf("application service %q logged a correlated event: %s", svc, sample),
			detail,
		},
	}
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are generic failure vocabulary, never distinctive enough to
// correlate on. Tokens shorter than four characters are dropped before
// this list applies.
var stopWords = map[string]struct{}{
	"with": {}, "from": {}, "this": {}, "that": {}, "were": {}, "have": {},
	"been": {}, "while": {}, "when": {}, "into": {}, "null": {}, "none": {},
	"true": {}, "false": {}, "could": {}, "should": {}, "would": {},
	"there": {}, "their": {}, "unable": {}, "cannot": {},
	"error": {}, "errors": {}, "failed": {}, "failure": {}, "fail": {},
	"exception": {}, "warning": {}, "warn": {}, "info": {},
	"test": {}, "tests": {},
}

func tokens(msg string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(msg), -1) {
		if len(tok) < 4 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
