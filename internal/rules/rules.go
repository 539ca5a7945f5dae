// Package rules evaluates classification rule packs against the failure
// signals of one test. Verdicts come exclusively from here: the first fully
// matching rule in priority order decides the failure type.
package rules

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tareqmamari/execintel/internal/model"
)

// Rule is one entry in a rule pack. Patterns in match_any, requires_all,
// and excludes are case-insensitive; a pattern containing regex
// metacharacters is compiled as a regex, anything else is a substring.
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	FailureType string   `yaml:"failure_type" json:"failure_type"`
	Confidence  float64  `yaml:"confidence" json:"confidence"`
	Priority    int      `yaml:"priority" json:"priority"`
	Framework   string   `yaml:"framework,omitempty" json:"framework,omitempty"`
	MatchAny    []string `yaml:"match_any" json:"match_any"`
	RequiresAll []string `yaml:"requires_all,omitempty" json:"requires_all,omitempty"`
	Excludes    []string `yaml:"excludes,omitempty" json:"excludes,omitempty"`
}

// Pack is a named collection of rules loaded from one YAML document.
type Pack struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Rules       []Rule `yaml:"rules" json:"rules"`
}

// ParsePack decodes and validates one rule pack. origin is used in error
// messages only (a file path or "embedded:<name>").
func ParsePack(data []byte, origin string) (*Pack, error) {
	var pack Pack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		return nil, fmt.Errorf("%s: %w", origin, err)
	}
	if err := pack.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", origin, err)
	}
	return &pack, nil
}

// LoadPackFile reads and validates a rule pack from disk.
func LoadPackFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	return ParsePack(data, path)
}

func (p *Pack) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("pack has no name")
	}
	seen := make(map[string]bool, len(p.Rules))
	for i := range p.Rules {
		r := &p.Rules[i]
		if err := r.validate(); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.ID, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

func (r *Rule) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("missing id")
	}
	if _, ok := model.ParseFailureType(r.FailureType); !ok {
		return fmt.Errorf("unknown failure_type %q", r.FailureType)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	if len(r.MatchAny) == 0 {
		return fmt.Errorf("match_any is empty")
	}
	for _, group := range [][]string{r.MatchAny, r.RequiresAll, r.Excludes} {
		for _, raw := range group {
			if _, err := compileMatcher(raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// matcher is one compiled pattern. re == nil means substring mode.
type matcher struct {
	raw string
	re  *regexp.Regexp
	sub string
}

const regexMetaChars = `\.+*?()|[]{}^$`

func compileMatcher(raw string) (matcher, error) {
	m := matcher{raw: raw}
	if strings.ContainsAny(raw, regexMetaChars) {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return m, fmt.Errorf("pattern %q: %w", raw, err)
		}
		m.re = re
		return m, nil
	}
	m.sub = strings.ToLower(raw)
	return m, nil
}

// matches runs against the lowercased corpus. Regex matchers carry (?i) so
// both modes are case-insensitive.
func (m matcher) matches(corpus string) bool {
	if m.re != nil {
		return m.re.MatchString(corpus)
	}
	return strings.Contains(corpus, m.sub)
}

func compileMatchers(raws []string) ([]matcher, error) {
	out := make([]matcher, 0, len(raws))
	for _, raw := range raws {
		m, err := compileMatcher(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
