package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
)

// Pack precedence. At equal priority a rule from a lower rank wins; inside
// one rank, declaration order decides.
const (
	rankOverride = iota
	rankUser
	rankFramework
	rankGeneric
)

type compiled struct {
	rule        Rule
	failureType model.FailureType
	packName    string
	rank        int
	seq         int
	matchAny    []matcher
	requiresAll []matcher
	excludes    []matcher
}

// Engine holds every loaded rule pre-sorted into evaluation order.
type Engine struct {
	rules  []compiled
	packs  []string
	logger *zap.Logger
}

// Options configures rule loading. Overrides come from inline config and
// outrank everything; UserPaths are external pack files evaluated before
// the embedded packs.
type Options struct {
	Overrides []Rule
	UserPaths []string
	Logger    *zap.Logger
}

// Load builds an engine from inline overrides, user pack files, and the
// embedded packs. A pack that fails to parse aborts the load; bad rules are
// configuration errors, not something to analyze around.
func Load(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{logger: logger}
	seq := 0

	if len(opts.Overrides) > 0 {
		override := &Pack{Name: "override", Rules: opts.Overrides}
		if err := override.validate(); err != nil {
			return nil, errors.NewInvalidRulePack("config override", err.Error())
		}
		if err := e.addPack(override, rankOverride, &seq); err != nil {
			return nil, errors.NewInvalidRulePack("config override", err.Error())
		}
	}

	for _, path := range opts.UserPaths {
		pack, err := LoadPackFile(path)
		if err != nil {
			return nil, errors.NewInvalidRulePack(path, err.Error())
		}
		if err := e.addPack(pack, rankUser, &seq); err != nil {
			return nil, errors.NewInvalidRulePack(path, err.Error())
		}
	}

	frameworks, generic, err := loadEmbedded()
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("embedded rule packs: %v", err))
	}
	for _, pack := range frameworks {
		if err := e.addPack(pack, rankFramework, &seq); err != nil {
			return nil, errors.NewInternalError(err.Error())
		}
	}
	if err := e.addPack(generic, rankGeneric, &seq); err != nil {
		return nil, errors.NewInternalError(err.Error())
	}

	sort.SliceStable(e.rules, func(i, j int) bool {
		a, b := e.rules[i], e.rules[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority > b.rule.Priority
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return a.seq < b.seq
	})

	logger.Debug("rule engine loaded",
		zap.Int("rules", len(e.rules)),
		zap.Strings("packs", e.packs))
	return e, nil
}

func (e *Engine) addPack(pack *Pack, rank int, seq *int) error {
	for i := range pack.Rules {
		r := pack.Rules[i]
		ft, _ := model.ParseFailureType(r.FailureType)
		matchAny, err := compileMatchers(r.MatchAny)
		if err != nil {
			return err
		}
		requiresAll, err := compileMatchers(r.RequiresAll)
		if err != nil {
			return err
		}
		excludes, err := compileMatchers(r.Excludes)
		if err != nil {
			return err
		}
		e.rules = append(e.rules, compiled{
			rule:        r,
			failureType: ft,
			packName:    pack.Name,
			rank:        rank,
			seq:         *seq,
			matchAny:    matchAny,
			requiresAll: requiresAll,
			excludes:    excludes,
		})
		*seq++
	}
	e.packs = append(e.packs, pack.Name)
	return nil
}

// Evaluate classifies one test from its signals. The first rule (in
// priority order) whose match_any, requires_all, and excludes all hold
// decides the verdict; no rule means UNKNOWN with confidence clamped to
// the strongest signal, at most 0.5.
func (e *Engine) Evaluate(framework string, signals []*model.FailureSignal) *model.FailureClassification {
	corpus := buildCorpus(signals)

	for i := range e.rules {
		c := &e.rules[i]
		if c.rule.Framework != "" && !strings.EqualFold(c.rule.Framework, framework) {
			continue
		}
		matched := matchedPatterns(c.matchAny, corpus)
		if len(matched) == 0 {
			continue
		}
		required, allHold := allPatterns(c.requiresAll, corpus)
		if !allHold {
			continue
		}
		if anyMatches(c.excludes, corpus) {
			continue
		}

		e.logger.Debug("rule matched",
			zap.String("rule", c.rule.ID),
			zap.String("pack", c.packName),
			zap.String("failure_type", string(c.failureType)))

		evidence := make([]string, 0, len(matched)+len(required)+len(signals))
		for _, raw := range matched {
			evidence = append(evidence, fmt.Sprintf("rule %s matched %q", c.rule.ID, raw))
		}
		for _, raw := range required {
			evidence = append(evidence, fmt.Sprintf("rule %s required %q", c.rule.ID, raw))
		}
		for _, sig := range signals {
			evidence = append(evidence, signalEvidence(sig))
		}

		reason := c.rule.Description
		if reason == "" {
			reason = fmt.Sprintf("Matched rule %s", c.rule.ID)
		}
		return &model.FailureClassification{
			FailureType:  c.failureType,
			Confidence:   c.rule.Confidence,
			Reason:       reason,
			Evidence:     evidence,
			Signals:      signals,
			RulesApplied: []string{c.rule.ID},
		}
	}

	return unknownClassification(signals)
}

// unknownClassification is the no-rule fallback. Its confidence never
// exceeds 0.5: without a rule the engine refuses to sound sure.
func unknownClassification(signals []*model.FailureSignal) *model.FailureClassification {
	confidence := 0.0
	reason := "No classification rule matched"
	if primary := model.PrimarySignal(signals); primary != nil {
		confidence = math.Min(primary.Confidence, 0.5)
		reason = fmt.Sprintf("No classification rule matched; strongest signal is %s", primary.SignalType)
	}
	evidence := make([]string, 0, len(signals))
	for _, sig := range signals {
		evidence = append(evidence, signalEvidence(sig))
	}
	return &model.FailureClassification{
		FailureType: model.UnknownFailure,
		Confidence:  confidence,
		Reason:      reason,
		Evidence:    evidence,
		Signals:     signals,
	}
}

// Rules returns every loaded rule in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// PackNames returns the loaded pack names in load order.
func (e *Engine) PackNames() []string {
	out := make([]string, len(e.packs))
	copy(out, e.packs)
	return out
}

// buildCorpus joins the signal messages and keywords into the lowercased
// text rules match against.
func buildCorpus(signals []*model.FailureSignal) string {
	var b strings.Builder
	for _, sig := range signals {
		if sig.Message != "" {
			b.WriteString(sig.Message)
			b.WriteByte('\n')
		}
		for _, kw := range sig.Keywords {
			b.WriteString(kw)
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}
	return strings.ToLower(b.String())
}

func signalEvidence(sig *model.FailureSignal) string {
	return fmt.Sprintf("signal %s (confidence %.2f): %s", sig.SignalType, sig.Confidence, truncate(sig.Message, 160))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func matchedPatterns(ms []matcher, corpus string) []string {
	var out []string
	for _, m := range ms {
		if m.matches(corpus) {
			out = append(out, m.raw)
		}
	}
	return out
}

func allPatterns(ms []matcher, corpus string) ([]string, bool) {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		if !m.matches(corpus) {
			return nil, false
		}
		out = append(out, m.raw)
	}
	return out, true
}

func anyMatches(ms []matcher, corpus string) bool {
	for _, m := range ms {
		if m.matches(corpus) {
			return true
		}
	}
	return false
}
