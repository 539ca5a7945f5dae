package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tareqmamari/execintel/internal/model"
)

// Thresholds are the per-test-type duration limits for the SLOW_TEST
// signal. A zero field means "use the default for that type".
type Thresholds struct {
	Unit        time.Duration
	Integration time.Duration
	E2E         time.Duration
}

// DefaultThresholds returns the stock limits: unit tests get one second,
// integration tests ten, end-to-end tests thirty.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Unit:        time.Second,
		Integration: 10 * time.Second,
		E2E:         30 * time.Second,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Unit <= 0 {
		t.Unit = d.Unit
	}
	if t.Integration <= 0 {
		t.Integration = d.Integration
	}
	if t.E2E <= 0 {
		t.E2E = d.E2E
	}
	return t
}

func (t Thresholds) forKind(kind string) time.Duration {
	switch kind {
	case "e2e":
		return t.E2E
	case "integration":
		return t.Integration
	default:
		return t.Unit
	}
}

// performanceExtractor emits SLOW_TEST from structured durations and
// MEMORY_LEAK / HIGH_CPU from resource keywords. It is the one extractor
// allowed to produce more than one signal per test.
type performanceExtractor struct {
	thresholds Thresholds
	memory     *keywordExtractor
	cpu        *keywordExtractor
}

func newPerformanceExtractor(t Thresholds) *performanceExtractor {
	return &performanceExtractor{
		thresholds: t.withDefaults(),
		memory: &keywordExtractor{
			name:       "performance",
			signalType: model.SignalMemoryLeak,
			confidence: confMemoryLeak,
			patterns: []pattern{
				pat("memory-leak", `(?i)memory leak|leak(?:ed|ing)? (?:memory|\d+ bytes)`),
				pat("heap-exhausted", `(?i)heap space|heap exhausted|gc overhead limit exceeded`),
			},
		},
		cpu: &keywordExtractor{
			name:       "performance",
			signalType: model.SignalHighCPU,
			confidence: confHighCPU,
			patterns: []pattern{
				pat("high-cpu", `(?i)high cpu|cpu usage (?:exceeded|above|at \d)|cpu throttl`),
			},
		},
	}
}

func (e *performanceExtractor) Name() string { return "performance" }

func (e *performanceExtractor) Extract(events []model.ExecutionEvent) []*model.FailureSignal {
	var signals []*model.FailureSignal
	if sig := e.slowTest(events); sig != nil {
		signals = append(signals, sig)
	}
	signals = append(signals, e.memory.Extract(events)...)
	signals = append(signals, e.cpu.Extract(events)...)
	return signals
}

// slowTest flags the first event whose recorded duration exceeds the limit
// for its inferred test type.
func (e *performanceExtractor) slowTest(events []model.ExecutionEvent) *model.FailureSignal {
	for i := range events {
		ev := &events[i]
		raw := ev.Metadata[model.MetadataDurationMS]
		if raw == "" {
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			continue
		}
		kind := classifyTestKind(ev.TestName, ev.TestFile)
		limit := e.thresholds.forKind(kind)
		if time.Duration(ms)*time.Millisecond <= limit {
			continue
		}
		msg := fmt.Sprintf("test ran %dms, over the %s threshold of %dms", ms, kind, limit.Milliseconds())
		sig := model.NewFailureSignal(model.SignalSlowTest, msg, confSlowTest, map[string]string{
			model.MetadataDurationMS: raw,
			"threshold_ms":           strconv.FormatInt(limit.Milliseconds(), 10),
			"test_type":              kind,
		})
		sig.File = ev.TestFile
		sig.Keywords = []string{"slow test"}
		sig.Patterns = []string{"performance/slow-test"}
		return sig
	}
	return nil
}

// classifyTestKind infers unit / integration / e2e from the test name and
// file. Unknown shapes default to unit, the strictest threshold.
func classifyTestKind(name, file string) string {
	s := strings.ToLower(name + " " + file)
	switch {
	case strings.Contains(s, "e2e") || strings.Contains(s, "end-to-end") ||
		strings.Contains(s, "end_to_end") || strings.Contains(s, "end2end"):
		return "e2e"
	case strings.Contains(s, "integration") || strings.Contains(s, "_it_"):
		return "integration"
	default:
		return "unit"
	}
}
