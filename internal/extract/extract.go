// Package extract turns a test's event stream into FailureSignals. Each
// extractor owns one failure mode and emits at most one signal per test
// (performance emits up to three), so downstream stages can rely on the
// signal list being small and ordered.
package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

// Extractor finds one class of failure evidence in a test's event stream.
// Implementations are stateless and deterministic: same events in, same
// signals out.
type Extractor interface {
	Name() string
	Extract(events []model.ExecutionEvent) []*model.FailureSignal
}

// Baseline confidences per extractor. An import error in a stacktrace is
// near-certain evidence of its failure mode; a timeout string alone is
// weaker because timeouts have many causes.
const (
	confTimeout     = 0.80
	confAssertion   = 0.85
	confLocator     = 0.90
	confHTTP        = 0.85
	confConnection  = 0.85
	confDNS         = 0.85
	confInfra       = 0.80
	confDatabase    = 0.80
	confNullPointer = 0.85
	confImport      = 0.90
	confSyntax      = 0.90
	confSlowTest    = 0.60
	confMemoryLeak  = 0.70
	confHighCPU     = 0.65
)

// Runner executes the extractors in their canonical order. The order is the
// tiebreak for primary-signal selection and must stay stable across runs.
type Runner struct {
	extractors []Extractor
	logger     *zap.Logger
}

// NewRunner builds the full extractor chain. Zero-valued thresholds fall
// back to the defaults.
func NewRunner(thresholds Thresholds, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		extractors: []Extractor{
			newTimeoutExtractor(),
			newAssertionExtractor(),
			newLocatorExtractor(),
			newHTTPExtractor(),
			newConnectionExtractor(),
			newDNSExtractor(),
			newInfraExtractor(),
			newDatabaseExtractor(),
			newNullPointerExtractor(),
			newImportExtractor(),
			newSyntaxExtractor(),
			newPerformanceExtractor(thresholds),
		},
		logger: logger,
	}
}

// Extract runs every extractor over the events and concatenates their
// signals in extractor order.
func (r *Runner) Extract(events []model.ExecutionEvent) []*model.FailureSignal {
	var signals []*model.FailureSignal
	for _, e := range r.extractors {
		out := e.Extract(events)
		if len(out) > 0 {
			r.logger.Debug("extractor matched",
				zap.String("extractor", e.Name()),
				zap.Int("signals", len(out)))
		}
		signals = append(signals, out...)
	}
	return signals
}

// Names returns the extractor names in execution order.
func (r *Runner) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}

// eventProbe lets an extractor match structured event fields that the text
// patterns cannot see, such as an adapter-supplied status code.
type eventProbe func(ev *model.ExecutionEvent) (id, keyword string, ok bool)

// keywordExtractor is the shared engine behind most extractors: scan every
// event, record which named patterns matched, and fold the matches into at
// most one signal. The first matching event supplies the representative
// message; the first matching event with a stacktrace supplies the stack.
type keywordExtractor struct {
	name       string
	signalType model.SignalType
	confidence float64
	patterns   []pattern
	probe      eventProbe
	capture    func(meta map[string]string, ev *model.ExecutionEvent, corpus string, hits []string)
}

func (e *keywordExtractor) Name() string { return e.name }

func (e *keywordExtractor) Extract(events []model.ExecutionEvent) []*model.FailureSignal {
	var (
		rep      *model.ExecutionEvent
		stack    string
		file     string
		keywords []string
		ids      []string
		meta     = map[string]string{}
	)
	for i := range events {
		ev := &events[i]
		corpus := eventCorpus(ev)
		var hits []string
		for _, p := range e.patterns {
			hit := p.re.FindString(corpus)
			if hit == "" {
				continue
			}
			hits = append(hits, hit)
			keywords = appendUnique(keywords, strings.ToLower(strings.TrimSpace(hit)))
			ids = appendUnique(ids, e.name+"/"+p.id)
		}
		if e.probe != nil {
			if id, kw, ok := e.probe(ev); ok {
				hits = append(hits, kw)
				keywords = appendUnique(keywords, strings.ToLower(kw))
				ids = appendUnique(ids, e.name+"/"+id)
			}
		}
		if len(hits) == 0 {
			continue
		}
		if rep == nil {
			rep = ev
		}
		if stack == "" && ev.Stacktrace != "" {
			stack = ev.Stacktrace
		}
		if file == "" && ev.TestFile != "" {
			file = ev.TestFile
		}
		if e.capture != nil {
			e.capture(meta, ev, corpus, hits)
		}
	}
	if rep == nil {
		return nil
	}
	if len(meta) == 0 {
		meta = nil
	}
	sig := model.NewFailureSignal(e.signalType, representative(rep), e.confidence, meta)
	sig.Stacktrace = stack
	sig.File = file
	sig.Keywords = keywords
	sig.Patterns = ids
	return []*model.FailureSignal{sig}
}

// eventCorpus is the text an extractor matches against: message, exception
// type, and stacktrace of one event.
func eventCorpus(ev *model.ExecutionEvent) string {
	parts := make([]string, 0, 3)
	if ev.Message != "" {
		parts = append(parts, ev.Message)
	}
	if ev.ExceptionType != "" {
		parts = append(parts, ev.ExceptionType)
	}
	if ev.Stacktrace != "" {
		parts = append(parts, ev.Stacktrace)
	}
	return strings.Join(parts, "\n")
}

func representative(ev *model.ExecutionEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	return firstLine(ev.Stacktrace)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// setIfAbsent keeps the first captured value; later events never overwrite.
func setIfAbsent(meta map[string]string, key, value string) {
	if value == "" {
		return
	}
	if _, ok := meta[key]; !ok {
		meta[key] = value
	}
}
