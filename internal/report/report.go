// Package report renders a finished run in the formats downstream tooling
// consumes: a bit-stable JSON document, a human-readable text report, and a
// one-line summary with the gate verdict. The JSON layout is a contract;
// structs fix the field order and every float renders at four decimals.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tareqmamari/execintel/internal/model"
)

// Format selects one of the supported output renderings.
type Format string

// Supported output formats.
const (
	FormatJSON    Format = "json"
	FormatText    Format = "text"
	FormatSummary Format = "summary"
)

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	case FormatSummary:
		return FormatSummary, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected json, text, or summary)", raw)
	}
}

// Gate is the CI gating decision for a run.
type Gate struct {
	FailOn []model.FailureType
	Failed bool
}

// Report bundles everything one run produced.
type Report struct {
	Summary *model.Summary
	Results []*model.AnalysisResult
	Groups  []*model.CorrelationGroup
	Gate    *Gate
}

// Write renders the report to w in the requested format.
func Write(w io.Writer, format Format, rep *Report) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatText:
		return writeText(w, rep)
	case FormatSummary:
		return writeSummary(w, rep)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// fixed4 renders a float with exactly four decimals so that the document is
// byte-identical across runs and platforms.
type fixed4 float64

func (f fixed4) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(f), 'f', 4, 64)), nil
}

// The document mirrors the model types instead of marshaling them directly:
// field order, float precision, and conditional presence are part of the
// output contract and must not drift when the internal types grow fields.
type document struct {
	Version string      `json:"version"`
	Summary summaryDoc  `json:"summary"`
	Results []resultDoc `json:"results"`
	Groups  []groupDoc  `json:"groups"`
}

type summaryDoc struct {
	Total    int         `json:"total"`
	ByType   byTypeDoc   `json:"by_type"`
	ByBucket byBucketDoc `json:"by_confidence_bucket"`
}

// byTypeDoc always carries all five classification outcomes, zeroes included.
type byTypeDoc struct {
	ProductDefect      int `json:"PRODUCT_DEFECT"`
	AutomationDefect   int `json:"AUTOMATION_DEFECT"`
	EnvironmentIssue   int `json:"ENVIRONMENT_ISSUE"`
	ConfigurationIssue int `json:"CONFIGURATION_ISSUE"`
	Unknown            int `json:"UNKNOWN"`
}

type byBucketDoc struct {
	VeryLow int `json:"VERY_LOW"`
	Low     int `json:"LOW"`
	Medium  int `json:"MEDIUM"`
	High    int `json:"HIGH"`
}

type resultDoc struct {
	TestName       string             `json:"test_name"`
	Framework      string             `json:"framework"`
	Status         string             `json:"status"`
	DurationMS     int64              `json:"duration_ms"`
	Error          string             `json:"error,omitempty"`
	Classification *classificationDoc `json:"classification,omitempty"`
}

type classificationDoc struct {
	FailureType        string         `json:"failure_type"`
	Confidence         fixed4         `json:"confidence"`
	Reason             string         `json:"reason"`
	Evidence           []string       `json:"evidence"`
	RulesApplied       []string       `json:"rules_applied,omitempty"`
	CodeReference      *codeRefDoc    `json:"code_reference,omitempty"`
	AIInsights         *aiInsightsDoc `json:"ai_insights,omitempty"`
	HasApplicationLogs bool           `json:"has_application_logs"`
}

type codeRefDoc struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	Function     string `json:"function,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	LanguageHint string `json:"language_hint,omitempty"`
}

type aiInsightsDoc struct {
	Provider     string   `json:"provider,omitempty"`
	Insights     []string `json:"insights,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Confidence   fixed4   `json:"confidence"`
}

type groupDoc struct {
	GroupID        string      `json:"group_id"`
	Pattern        string      `json:"pattern"`
	AffectedTests  int         `json:"affected_tests"`
	FailureType    string      `json:"failure_type"`
	SignalType     string      `json:"signal_type"`
	Confidence     fixed4      `json:"confidence"`
	RootCause      string      `json:"root_cause"`
	Recommendation string      `json:"recommendation"`
	Strategy       string      `json:"strategy"`
	Members        []memberDoc `json:"members"`
}

type memberDoc struct {
	TestName   string `json:"test_name"`
	Similarity fixed4 `json:"similarity"`
}

func writeJSON(w io.Writer, rep *Report) error {
	doc := buildDocument(rep)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func buildDocument(rep *Report) *document {
	doc := &document{
		Version: "1",
		Results: make([]resultDoc, 0, len(rep.Results)),
		Groups:  make([]groupDoc, 0, len(rep.Groups)),
	}
	if rep.Summary != nil {
		doc.Summary = buildSummaryDoc(rep.Summary)
	} else {
		doc.Summary.Total = len(rep.Results)
	}
	for _, res := range rep.Results {
		if res == nil {
			continue
		}
		doc.Results = append(doc.Results, buildResultDoc(res))
	}
	sort.SliceStable(doc.Results, func(i, j int) bool {
		return doc.Results[i].TestName < doc.Results[j].TestName
	})
	for _, g := range rep.Groups {
		if g == nil {
			continue
		}
		doc.Groups = append(doc.Groups, buildGroupDoc(g))
	}
	return doc
}

func buildSummaryDoc(s *model.Summary) summaryDoc {
	return summaryDoc{
		Total: s.Total,
		ByType: byTypeDoc{
			ProductDefect:      s.ByType[model.ProductDefect],
			AutomationDefect:   s.ByType[model.AutomationDefect],
			EnvironmentIssue:   s.ByType[model.EnvironmentIssue],
			ConfigurationIssue: s.ByType[model.ConfigurationIssue],
			Unknown:            s.ByType[model.UnknownFailure],
		},
		ByBucket: byBucketDoc{
			VeryLow: s.ByBucket[model.BucketVeryLow],
			Low:     s.ByBucket[model.BucketLow],
			Medium:  s.ByBucket[model.BucketMedium],
			High:    s.ByBucket[model.BucketHigh],
		},
	}
}

func buildResultDoc(res *model.AnalysisResult) resultDoc {
	doc := resultDoc{
		TestName:   res.TestName,
		Framework:  res.Framework,
		Status:     string(res.Status),
		DurationMS: res.DurationMS,
	}
	if res.Status == model.StatusError {
		doc.Error = res.Error
	}
	if res.Failed() && res.Classification != nil {
		doc.Classification = buildClassificationDoc(res.Classification, res.HasApplicationLogs)
	}
	return doc
}

func buildClassificationDoc(cls *model.FailureClassification, hasAppLogs bool) *classificationDoc {
	doc := &classificationDoc{
		FailureType:        string(cls.FailureType),
		Confidence:         fixed4(cls.Confidence),
		Reason:             cls.Reason,
		Evidence:           cls.Evidence,
		RulesApplied:       cls.RulesApplied,
		HasApplicationLogs: hasAppLogs,
	}
	if doc.Evidence == nil {
		doc.Evidence = []string{}
	}
	if ref := cls.CodeReference; ref != nil {
		doc.CodeReference = &codeRefDoc{
			File:         ref.File,
			Line:         ref.Line,
			Function:     ref.Function,
			ClassName:    ref.ClassName,
			Snippet:      ref.Snippet,
			LanguageHint: ref.LanguageHint,
		}
	}
	if ai := cls.AIInsights; ai != nil {
		doc.AIInsights = &aiInsightsDoc{
			Provider:     ai.Provider,
			Insights:     ai.Insights,
			SuggestedFix: ai.SuggestedFix,
			Confidence:   fixed4(ai.Confidence),
		}
	}
	return doc
}

func buildGroupDoc(g *model.CorrelationGroup) groupDoc {
	doc := groupDoc{
		GroupID:        g.GroupID,
		Pattern:        g.Pattern,
		AffectedTests:  g.AffectedTests,
		FailureType:    string(g.FailureType),
		SignalType:     string(g.SignalType),
		Confidence:     fixed4(g.Confidence),
		RootCause:      g.RootCause,
		Recommendation: g.Recommendation,
		Strategy:       g.Strategy,
		Members:        make([]memberDoc, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		doc.Members = append(doc.Members, memberDoc{TestName: m.TestName, Similarity: fixed4(m.Similarity)})
	}
	return doc
}

func writeText(w io.Writer, rep *Report) error {
	title := cases.Title(language.English)
	var sb strings.Builder

	sb.WriteString("Execution Intelligence Report\n")
	sb.WriteString("=============================\n\n")

	writeTextCounts(&sb, rep)
	writeTextBreakdown(&sb, title, rep.Summary)
	writeTextFailures(&sb, title, rep.Results)
	writeTextGroups(&sb, title, rep.Groups)
	writeTextPatterns(&sb, rep.Summary)
	writeGateLine(&sb, rep.Gate)

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeTextCounts(sb *strings.Builder, rep *Report) {
	var passed, failed, errored, skipped int
	for _, res := range rep.Results {
		switch res.Status {
		case model.StatusPass:
			passed++
		case model.StatusFail:
			failed++
		case model.StatusError:
			errored++
		case model.StatusSkip:
			skipped++
		}
	}
	fmt.Fprintf(sb, "Tests: %d (%d passed, %d failed, %d errored, %d skipped)\n\n",
		len(rep.Results), passed, failed, errored, skipped)
}

func writeTextBreakdown(sb *strings.Builder, title cases.Caser, summary *model.Summary) {
	if summary == nil {
		return
	}
	sb.WriteString("Failures By Type\n")
	sb.WriteString("----------------\n")
	any := false
	for _, ft := range model.FailureTypes {
		if n := summary.ByType[ft]; n > 0 {
			fmt.Fprintf(sb, "  %-22s %d\n", humanizeEnum(title, string(ft)), n)
			any = true
		}
	}
	if !any {
		sb.WriteString("  none\n")
	}
	sb.WriteString("\n")

	sb.WriteString("Confidence\n")
	sb.WriteString("----------\n")
	for _, bucket := range model.ConfidenceBuckets {
		if n := summary.ByBucket[bucket]; n > 0 {
			fmt.Fprintf(sb, "  %-22s %d\n", humanizeEnum(title, string(bucket)), n)
		}
	}
	sb.WriteString("\n")
}

func writeTextFailures(sb *strings.Builder, title cases.Caser, results []*model.AnalysisResult) {
	var failing []*model.AnalysisResult
	for _, res := range results {
		if res.Failed() {
			failing = append(failing, res)
		}
	}
	if len(failing) == 0 {
		return
	}
	sb.WriteString("Failed Tests\n")
	sb.WriteString("------------\n")
	for _, res := range failing {
		fmt.Fprintf(sb, "%s %s [%s]", res.Status, res.TestName, res.Framework)
		if res.DurationMS > 0 {
			fmt.Fprintf(sb, " %s", (time.Duration(res.DurationMS) * time.Millisecond).String())
		}
		sb.WriteString("\n")
		if res.Error != "" {
			fmt.Fprintf(sb, "  Error:    %s\n", res.Error)
		}
		if cls := res.Classification; cls != nil {
			fmt.Fprintf(sb, "  Type:     %s (%.0f%% confidence, %s)\n",
				humanizeEnum(title, string(cls.FailureType)), cls.Confidence*100,
				humanizeEnum(title, string(model.BucketFor(cls.Confidence))))
			fmt.Fprintf(sb, "  Reason:   %s\n", cls.Reason)
			for _, ev := range cls.Evidence {
				fmt.Fprintf(sb, "    - %s\n", ev)
			}
			if len(cls.RulesApplied) > 0 {
				fmt.Fprintf(sb, "  Rules:    %s\n", strings.Join(cls.RulesApplied, ", "))
			}
			if ref := cls.CodeReference; ref != nil {
				fmt.Fprintf(sb, "  Code:     %s:%d", ref.File, ref.Line)
				if ref.Function != "" {
					fmt.Fprintf(sb, " (%s)", ref.Function)
				}
				sb.WriteString("\n")
			}
			if ai := cls.AIInsights; ai != nil && ai.SuggestedFix != "" {
				fmt.Fprintf(sb, "  Suggest:  %s\n", ai.SuggestedFix)
			}
		}
		sb.WriteString("\n")
	}
}

func writeTextGroups(sb *strings.Builder, title cases.Caser, groups []*model.CorrelationGroup) {
	if len(groups) == 0 {
		return
	}
	sb.WriteString("Correlated Groups\n")
	sb.WriteString("-----------------\n")
	for _, g := range groups {
		fmt.Fprintf(sb, "Group %s: %d tests, %s via %s\n",
			g.GroupID, g.AffectedTests, humanizeEnum(title, string(g.FailureType)),
			humanizeEnum(title, g.Strategy))
		fmt.Fprintf(sb, "  Root cause:     %s\n", g.RootCause)
		fmt.Fprintf(sb, "  Recommendation: %s\n", g.Recommendation)
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, fmt.Sprintf("%s (%.2f)", m.TestName, m.Similarity))
		}
		fmt.Fprintf(sb, "  Members:        %s\n\n", strings.Join(members, ", "))
	}
}

func writeTextPatterns(sb *strings.Builder, summary *model.Summary) {
	if summary == nil || len(summary.TopPatterns) == 0 {
		return
	}
	sb.WriteString("Top Patterns\n")
	sb.WriteString("------------\n")
	for _, p := range summary.TopPatterns {
		fmt.Fprintf(sb, "  %dx [%s] %s\n", p.Tests, p.SignalType, p.Message)
	}
	sb.WriteString("\n")
}

func writeSummary(w io.Writer, rep *Report) error {
	title := cases.Title(language.English)
	var sb strings.Builder

	var passed, failed, errored, skipped int
	for _, res := range rep.Results {
		switch res.Status {
		case model.StatusPass:
			passed++
		case model.StatusFail:
			failed++
		case model.StatusError:
			errored++
		case model.StatusSkip:
			skipped++
		}
	}
	fmt.Fprintf(&sb, "Analyzed %d tests: %d passed, %d failed, %d errored, %d skipped\n",
		len(rep.Results), passed, failed, errored, skipped)

	if rep.Summary != nil {
		var parts []string
		for _, ft := range model.FailureTypes {
			if n := rep.Summary.ByType[ft]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", humanizeEnum(title, string(ft)), n))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&sb, "Failures by type: %s\n", strings.Join(parts, ", "))
		}
	}
	writeGateLine(&sb, rep.Gate)

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeGateLine(sb *strings.Builder, gate *Gate) {
	if gate == nil {
		return
	}
	names := make([]string, 0, len(gate.FailOn))
	for _, ft := range gate.FailOn {
		names = append(names, string(ft))
	}
	verdict := "PASSED"
	if gate.Failed {
		verdict = "FAILED"
	}
	if len(names) > 0 {
		fmt.Fprintf(sb, "Gate: %s (fail-on: %s)\n", verdict, strings.Join(names, ", "))
	} else {
		fmt.Fprintf(sb, "Gate: %s\n", verdict)
	}
}

// humanizeEnum turns SNAKE_CASE enum names into title-cased words.
func humanizeEnum(title cases.Caser, name string) string {
	return title.String(strings.ReplaceAll(strings.ToLower(name), "_", " "))
}
