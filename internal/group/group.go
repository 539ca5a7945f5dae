// Package group clusters the failed analyses of one batch into correlation
// groups so that one incident shows up as one line instead of N test
// failures. Four strategies propose candidate groups; each test then joins
// the highest-confidence candidate it qualifies for, and surviving groups
// of at least two tests are emitted.
package group

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
	"github.com/tareqmamari/execintel/internal/pattern"
	"github.com/tareqmamari/execintel/internal/resolver"
)

// Strategy names, in evaluation order.
const (
	StrategyMessage  = "message_similarity"
	StrategyCategory = "category"
	StrategyTemporal = "temporal"
	StrategyStack    = "stack_signature"
)

const (
	defaultSimilarityThreshold = 0.8
	defaultTimeWindow          = 5 * time.Minute
	defaultMinGroupSize        = 2
	defaultStackTopK           = 3
)

// Config holds the grouping knobs.
type Config struct {
	SimilarityThreshold float64
	TimeWindow          time.Duration
	MinGroupSize        int
	StackTopK           int
}

// Grouper builds correlation groups from a batch of analysis results.
type Grouper struct {
	threshold float64
	window    time.Duration
	minSize   int
	topK      int
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Grouper {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Grouper{
		threshold: cfg.SimilarityThreshold,
		window:    cfg.TimeWindow,
		minSize:   cfg.MinGroupSize,
		topK:      cfg.StackTopK,
		logger:    logger.Named("group"),
	}
	if g.threshold <= 0 || g.threshold > 1 {
		g.threshold = defaultSimilarityThreshold
	}
	if g.window <= 0 {
		g.window = defaultTimeWindow
	}
	if g.minSize < 2 {
		g.minSize = defaultMinGroupSize
	}
	if g.topK <= 0 {
		g.topK = defaultStackTopK
	}
	return g
}

// candidate is a proposed group before member assignment.
type candidate struct {
	id       string
	strategy string
	tests    []string
	conf     float64
}

// Group clusters failed results. Output ordering is deterministic: most
// affected tests first, then group id.
func (g *Grouper) Group(results []*model.AnalysisResult) []*model.CorrelationGroup {
	byName := make(map[string]*model.AnalysisResult, len(results))
	var failed []string
	for _, res := range results {
		if res == nil || !res.Failed() {
			continue
		}
		if _, dup := byName[res.TestName]; dup {
			continue
		}
		byName[res.TestName] = res
		failed = append(failed, res.TestName)
	}
	sort.Strings(failed)
	if len(failed) < 2 {
		return nil
	}

	var candidates []*candidate
	candidates = append(candidates, g.byMessage(failed, byName)...)
	candidates = append(candidates, g.byCategory(failed, byName)...)
	candidates = append(candidates, g.byTemporal(failed, byName)...)
	candidates = append(candidates, g.byStack(failed, byName)...)
	if len(candidates) == 0 {
		return nil
	}

	assigned := assignMembers(failed, candidates)

	var groups []*model.CorrelationGroup
	for _, cand := range candidates {
		members := assigned[cand.id]
		if len(members) < g.minSize {
			continue
		}
		groups = append(groups, g.build(cand, members, byName))
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].AffectedTests != groups[j].AffectedTests {
			return groups[i].AffectedTests > groups[j].AffectedTests
		}
		return groups[i].GroupID < groups[j].GroupID
	})
	g.logger.Debug("grouping complete",
		zap.Int("failed_tests", len(failed)),
		zap.Int("candidates", len(candidates)),
		zap.Int("groups", len(groups)))
	return groups
}

// byMessage unions tests whose normalized failure messages are cosine
// similar at or above the threshold.
func (g *Grouper) byMessage(failed []string, byName map[string]*model.AnalysisResult) []*candidate {
	var names []string
	var vectors []map[string]int
	for _, name := range failed {
		vec := tokenVector(primaryMessage(byName[name]))
		if len(vec) == 0 {
			continue
		}
		names = append(names, name)
		vectors = append(vectors, vec)
	}
	if len(names) < 2 {
		return nil
	}

	uf := newUnionFind(len(names))
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if cosine(vectors[i], vectors[j]) >= g.threshold {
				uf.union(i, j)
			}
		}
	}

	components := map[int][]string{}
	for i, name := range names {
		root := uf.find(i)
		components[root] = append(components[root], name)
	}
	var roots []int
	for root, members := range components {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	var out []*candidate
	for _, root := range roots {
		out = append(out, newCandidate(StrategyMessage, components[root], byName))
	}
	return out
}

// byCategory groups tests sharing (failure_type, signal_type).
func (g *Grouper) byCategory(failed []string, byName map[string]*model.AnalysisResult) []*candidate {
	buckets := map[string][]string{}
	for _, name := range failed {
		ft, st := category(byName[name])
		key := string(ft) + "/" + string(st)
		buckets[key] = append(buckets[key], name)
	}
	var keys []string
	for key, members := range buckets {
		if len(members) >= g.minSize {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var out []*candidate
	for _, key := range keys {
		out = append(out, newCandidate(StrategyCategory, buckets[key], byName))
	}
	return out
}

// byTemporal chains same-category failures whose timestamps are within the
// window of the previous failure in the chain.
func (g *Grouper) byTemporal(failed []string, byName map[string]*model.AnalysisResult) []*candidate {
	buckets := map[string][]string{}
	for _, name := range failed {
		res := byName[name]
		if res.Timestamp.IsZero() {
			continue
		}
		ft, st := category(res)
		key := string(ft) + "/" + string(st)
		buckets[key] = append(buckets[key], name)
	}
	var keys []string
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []*candidate
	for _, key := range keys {
		members := buckets[key]
		sort.Slice(members, func(i, j int) bool {
			ti, tj := byName[members[i]].Timestamp, byName[members[j]].Timestamp
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return members[i] < members[j]
		})

		var chain []string
		flush := func() {
			if len(chain) >= g.minSize {
				out = append(out, newCandidate(StrategyTemporal, chain, byName))
			}
			chain = nil
		}
		for i, name := range members {
			if i > 0 {
				gap := byName[name].Timestamp.Sub(byName[members[i-1]].Timestamp)
				if gap > g.window {
					flush()
				}
			}
			chain = append(chain, name)
		}
		flush()
	}
	return out
}

// byStack groups tests whose top-K stack frames are identical.
func (g *Grouper) byStack(failed []string, byName map[string]*model.AnalysisResult) []*candidate {
	buckets := map[string][]string{}
	for _, name := range failed {
		sig := g.stackSignature(byName[name])
		if sig == "" {
			continue
		}
		buckets[sig] = append(buckets[sig], name)
	}
	var sigs []string
	for sig, members := range buckets {
		if len(members) >= 2 {
			sigs = append(sigs, sig)
		}
	}
	sort.Strings(sigs)

	var out []*candidate
	for _, sig := range sigs {
		out = append(out, newCandidate(StrategyStack, buckets[sig], byName))
	}
	return out
}

// stackSignature is the top-K frames of the primary signal's stacktrace,
// file:function per frame. Line numbers are excluded so the same broken
// call path matches across slightly different failure sites.
func (g *Grouper) stackSignature(res *model.AnalysisResult) string {
	primary := model.PrimarySignal(res.Signals)
	if primary == nil || primary.Stacktrace == "" {
		return ""
	}
	frames := resolver.ParseStack(primary.Stacktrace)
	if len(frames) == 0 {
		return ""
	}
	k := g.topK
	if k > len(frames) {
		k = len(frames)
	}
	parts := make([]string, 0, k)
	for _, f := range frames[:k] {
		parts = append(parts, f.File+":"+f.Function)
	}
	return strings.Join(parts, "|")
}

func newCandidate(strategy string, tests []string, byName map[string]*model.AnalysisResult) *candidate {
	sorted := append([]string(nil), tests...)
	sort.Strings(sorted)
	var sum float64
	for _, name := range sorted {
		if cls := byName[name].Classification; cls != nil {
			sum += cls.Confidence
		}
	}
	return &candidate{
		id:       groupID(strategy, sorted),
		strategy: strategy,
		tests:    sorted,
		conf:     sum / float64(len(sorted)),
	}
}

// assignMembers resolves overlapping candidates: each test joins the
// highest-confidence candidate it appears in, ties broken by candidate id.
func assignMembers(failed []string, candidates []*candidate) map[string][]string {
	byTest := map[string][]*candidate{}
	for _, cand := range candidates {
		for _, name := range cand.tests {
			byTest[name] = append(byTest[name], cand)
		}
	}

	assigned := map[string][]string{}
	for _, name := range failed {
		cands := byTest[name]
		if len(cands) == 0 {
			continue
		}
		best := cands[0]
		for _, cand := range cands[1:] {
			if cand.conf > best.conf || (cand.conf == best.conf && cand.id < best.id) {
				best = cand
			}
		}
		assigned[best.id] = append(assigned[best.id], name)
	}
	for id := range assigned {
		sort.Strings(assigned[id])
	}
	return assigned
}

func (g *Grouper) build(cand *candidate, members []string, byName map[string]*model.AnalysisResult) *model.CorrelationGroup {
	ft, st := dominantCategory(members, byName)

	var sum float64
	for _, name := range members {
		if cls := byName[name].Classification; cls != nil {
			sum += cls.Confidence
		}
	}

	anchor := byName[members[0]]
	pat := pattern.Normalize(primaryMessage(anchor))
	if cand.strategy == StrategyStack {
		pat = g.stackSignature(anchor)
	}

	groupMembers := make([]model.GroupMember, 0, len(members))
	anchorVec := tokenVector(primaryMessage(anchor))
	for _, name := range members {
		similarity := 1.0
		if cand.strategy == StrategyMessage && name != members[0] {
			similarity = cosine(anchorVec, tokenVector(primaryMessage(byName[name])))
		}
		groupMembers = append(groupMembers, model.GroupMember{TestName: name, Similarity: similarity})
	}

	rootCause, recommendation := causeTemplate(ft, st)
	return &model.CorrelationGroup{
		GroupID:        groupID(cand.strategy, members),
		Pattern:        pat,
		AffectedTests:  len(members),
		FailureType:    ft,
		SignalType:     st,
		Confidence:     sum / float64(len(members)),
		RootCause:      rootCause,
		Recommendation: recommendation,
		Strategy:       cand.strategy,
		Members:        groupMembers,
	}
}

// groupID hashes the strategy and the sorted member names into a short
// stable identifier.
func groupID(strategy string, sortedTests []string) string {
	sum := sha256.Sum256([]byte(strategy + "|" + strings.Join(sortedTests, ",")))
	return "grp-" + hex.EncodeToString(sum[:])[:12]
}

func primaryMessage(res *model.AnalysisResult) string {
	if primary := model.PrimarySignal(res.Signals); primary != nil {
		return primary.Message
	}
	return ""
}

func category(res *model.AnalysisResult) (model.FailureType, model.SignalType) {
	ft := model.UnknownFailure
	if res.Classification != nil {
		ft = res.Classification.FailureType
	}
	st := model.SignalOther
	if primary := model.PrimarySignal(res.Signals); primary != nil {
		st = primary.SignalType
	}
	return ft, st
}

// dominantCategory picks the most frequent failure type and signal type
// among members. Failure-type ties resolve in canonical order, signal ties
// lexically.
func dominantCategory(members []string, byName map[string]*model.AnalysisResult) (model.FailureType, model.SignalType) {
	ftCounts := map[model.FailureType]int{}
	stCounts := map[model.SignalType]int{}
	for _, name := range members {
		ft, st := category(byName[name])
		ftCounts[ft]++
		stCounts[st]++
	}

	bestFT := model.UnknownFailure
	bestFTCount := -1
	for _, ft := range model.FailureTypes {
		if ftCounts[ft] > bestFTCount {
			bestFT = ft
			bestFTCount = ftCounts[ft]
		}
	}

	var sts []string
	for st := range stCounts {
		sts = append(sts, string(st))
	}
	sort.Strings(sts)
	bestST := model.SignalOther
	bestSTCount := -1
	for _, st := range sts {
		if stCounts[model.SignalType(st)] > bestSTCount {
			bestST = model.SignalType(st)
			bestSTCount = stCounts[model.SignalType(st)]
		}
	}
	return bestFT, bestST
}

type causePair struct {
	rootCause      string
	recommendation string
}

var signalCauses = map[model.SignalType]causePair{
	model.SignalDatabase: {
		"DB connection pool saturation or a database outage is affecting every test that touches it",
		"Scale the connection pool or add retries, and check database health",
	},
	model.SignalConnectionError: {
		"A shared backend or network path is refusing connections",
		"Verify the target service is up and reachable from the test environment",
	},
	model.SignalDNSError: {
		"Name resolution is failing across tests",
		"Check DNS configuration and service hostnames in the test environment",
	},
	model.SignalTimeout: {
		"A slow or unresponsive dependency is stalling multiple tests",
		"Check downstream service health before tuning individual test timeouts",
	},
	model.SignalHTTPError: {
		"A shared API endpoint is returning errors",
		"Inspect the failing service's logs and recent deployments",
	},
	model.SignalLocator: {
		"A UI change broke the selectors these tests share",
		"Update the shared page objects to match the current DOM",
	},
	model.SignalAssertion: {
		"A behavior change broke the same expectation across tests",
		"Review the latest application change against the failing assertions",
	},
	model.SignalInfra: {
		"Test infrastructure resources are exhausted",
		"Check runner capacity, disk space, and memory",
	},
	model.SignalImport: {
		"A dependency or module is missing from the test environment",
		"Verify dependency installation in the test image",
	},
	model.SignalNullPointer: {
		"The same null dereference is hit by every test on this path",
		"Guard the dereference site and fix the producer of the missing value",
	},
}

var failureCauses = map[model.FailureType]causePair{
	model.ProductDefect: {
		"Multiple tests hit the same product defect",
		"File one defect and link all affected tests to it",
	},
	model.AutomationDefect: {
		"A shared test-code defect affects every member",
		"Fix the shared helper or page object once",
	},
	model.EnvironmentIssue: {
		"The test environment degraded for all member tests",
		"Check environment health before rerunning the batch",
	},
	model.ConfigurationIssue: {
		"A shared configuration problem affects every member",
		"Review recent configuration and dependency changes",
	},
	model.UnknownFailure: {
		"Multiple tests failed the same unclassified way",
		"Inspect the grouped failures together before triaging individually",
	},
}

func causeTemplate(ft model.FailureType, st model.SignalType) (string, string) {
	if pair, ok := signalCauses[st]; ok {
		return pair.rootCause, pair.recommendation
	}
	if pair, ok := failureCauses[ft]; ok {
		return pair.rootCause, pair.recommendation
	}
	pair := failureCauses[model.UnknownFailure]
	return pair.rootCause, pair.recommendation
}

// tokenVector builds a term-frequency bag from the normalized message.
func tokenVector(msg string) map[string]int {
	if msg == "" {
		return nil
	}
	vec := map[string]int{}
	for _, tok := range strings.Fields(pattern.Normalize(msg)) {
		if len(tok) < 2 {
			continue
		}
		if _, stop := vectorStopWords[tok]; stop {
			continue
		}
		vec[tok]++
	}
	return vec
}

// vectorStopWords holds plain English filler; failure vocabulary stays in
// the vectors because it discriminates between failure kinds.
var vectorStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "to": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "with": {}, "by": {}, "it": {}, "its": {}, "this": {},
	"that": {}, "be": {}, "been": {}, "not": {}, "but": {},
}

func cosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for tok, ca := range a {
		normA += float64(ca * ca)
		if cb, ok := b[tok]; ok {
			dot += float64(ca * cb)
		}
	}
	for _, cb := range b {
		normB += float64(cb * cb)
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra > rb {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
