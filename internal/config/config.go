// Package config provides configuration management for the execution
// intelligence engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ApplicationLog names one service log source. In YAML it may be given as a
// bare path or as a mapping with path and service.
type ApplicationLog struct {
	Path    string `yaml:"path"`
	Service string `yaml:"service,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (a *ApplicationLog) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		a.Path = value.Value
		return nil
	}
	type plain ApplicationLog
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = ApplicationLog(p)
	return nil
}

// LogsConfig lists the log sources for one analysis invocation.
type LogsConfig struct {
	Automation  []string         `yaml:"automation"`
	Application []ApplicationLog `yaml:"application,omitempty"`
}

// ExecutionConfig describes what to analyze and where the code lives.
type ExecutionConfig struct {
	Framework  string     `yaml:"framework"`   // adapter name or "auto"
	SourceRoot string     `yaml:"source_root"` // workspace root for snippet resolution
	Logs       LogsConfig `yaml:"logs"`
}

// RuleOverride is one inline rule defined directly in the config document.
// Inline overrides take precedence over every rule pack.
type RuleOverride struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description,omitempty"`
	FailureType string   `yaml:"failure_type"`
	Confidence  float64  `yaml:"confidence"`
	Priority    int      `yaml:"priority"`
	Framework   string   `yaml:"framework,omitempty"`
	MatchAny    []string `yaml:"match_any"`
	RequiresAll []string `yaml:"requires_all,omitempty"`
	Excludes    []string `yaml:"excludes,omitempty"`
}

// RulesConfig points at user rule packs and inline overrides.
type RulesConfig struct {
	Paths     []string       `yaml:"paths,omitempty"`
	Overrides []RuleOverride `yaml:"overrides,omitempty"`
}

// AnalysisConfig bounds the per-test pipeline and the batch pool.
type AnalysisConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"` // per-test wall budget
	Workers        int `yaml:"workers"`         // 0 means runtime.NumCPU()
}

// AIConfig controls the optional enrichment layer. The engine never
// requires it to function.
type AIConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Endpoint          string  `yaml:"endpoint,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	Model             string  `yaml:"model,omitempty"`
	TimeoutMS         int     `yaml:"timeout_ms"`
	MinConfidence     float64 `yaml:"min_confidence"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CorrelationConfig holds the application-log correlation knobs.
type CorrelationConfig struct {
	WindowSeconds   int `yaml:"window_seconds"`
	MinSharedTokens int `yaml:"min_shared_tokens"`
}

// GroupingConfig holds the cross-test grouping knobs.
type GroupingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TimeWindowSeconds   int     `yaml:"time_window_seconds"`
	MinGroupSize        int     `yaml:"min_group_size"`
}

// PatternConfig holds the pattern tracker knobs.
type PatternConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StorePath string `yaml:"store_path"`
	NCap      int    `yaml:"n_cap"`
}

// ResolverConfig holds the code-reference resolution knobs.
type ResolverConfig struct {
	SnippetRadius int      `yaml:"snippet_radius"`
	SkipPrefixes  []string `yaml:"skip_prefixes,omitempty"` // appended to the built-in list
}

// PerformanceThresholds holds slow-test limits per test type, in seconds.
type PerformanceThresholds struct {
	Unit        float64 `yaml:"unit"`
	Integration float64 `yaml:"integration"`
	E2E         float64 `yaml:"e2e"`
}

// ObservabilityConfig toggles tracing and audit logging.
type ObservabilityConfig struct {
	Tracing bool `yaml:"tracing"`
	Audit   bool `yaml:"audit"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Config holds all configuration for the engine.
type Config struct {
	Execution     ExecutionConfig       `yaml:"execution"`
	Rules         RulesConfig           `yaml:"rules"`
	Analysis      AnalysisConfig        `yaml:"analysis"`
	AI            AIConfig              `yaml:"ai"`
	Correlation   CorrelationConfig     `yaml:"correlation"`
	Grouping      GroupingConfig        `yaml:"grouping"`
	Pattern       PatternConfig         `yaml:"pattern"`
	Resolver      ResolverConfig        `yaml:"resolver"`
	Performance   PerformanceThresholds `yaml:"performance"`
	Observability ObservabilityConfig   `yaml:"observability"`
	Logging       LoggingConfig         `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			Framework:  "auto",
			SourceRoot: ".",
		},
		Analysis: AnalysisConfig{
			TimeoutSeconds: 10,
			Workers:        0,
		},
		AI: AIConfig{
			Enabled:           false,
			TimeoutMS:         30000,
			MinConfidence:     0.5,
			MaxRetries:        3,
			RequestsPerSecond: 1,
			Burst:             3,
		},
		Correlation: CorrelationConfig{
			WindowSeconds:   30,
			MinSharedTokens: 3,
		},
		Grouping: GroupingConfig{
			SimilarityThreshold: 0.8,
			TimeWindowSeconds:   300,
			MinGroupSize:        2,
		},
		Pattern: PatternConfig{
			Enabled:   true,
			StorePath: filepath.Join(".execintel", "patterns.db"),
			NCap:      20,
		},
		Resolver: ResolverConfig{
			SnippetRadius: 5,
		},
		Performance: PerformanceThresholds{
			Unit:        1,
			Integration: 10,
			E2E:         30,
		},
		Observability: ObservabilityConfig{
			Tracing: false,
			Audit:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, then the given file (or the
// EXECINTEL_CONFIG environment variable when path is empty), then
// environment overrides, in that precedence order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("EXECINTEL_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// envSubstRe matches ${VAR} and ${VAR:-default} references.
var envSubstRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv performs ${VAR} and ${VAR:-default} substitution over a raw
// configuration document. Unset variables without a default expand to the
// empty string.
func ExpandEnv(raw []byte) []byte {
	return envSubstRe.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envSubstRe.FindSubmatch(match)
		name := string(groups[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if len(groups[2]) > 0 {
			return groups[3]
		}
		return nil
	})
}

func loadFromFile(cfg *Config, path string) error {
	// Validate and clean the file path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return yaml.Unmarshal(ExpandEnv(data), cfg)
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("EXECINTEL_FRAMEWORK"); v != "" {
		cfg.Execution.Framework = v
	}
	if v := os.Getenv("EXECINTEL_SOURCE_ROOT"); v != "" {
		cfg.Execution.SourceRoot = v
	}
	if v := os.Getenv("EXECINTEL_RULES"); v != "" {
		cfg.Rules.Paths = append(cfg.Rules.Paths, filepath.SplitList(v)...)
	}
	if v := os.Getenv("EXECINTEL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("EXECINTEL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Workers = n
		}
	}
	if v := os.Getenv("EXECINTEL_AI_ENABLED"); v != "" {
		cfg.AI.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("EXECINTEL_AI_ENDPOINT"); v != "" {
		cfg.AI.Endpoint = v
	}
	if v := os.Getenv("EXECINTEL_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("EXECINTEL_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("EXECINTEL_AI_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.TimeoutMS = n
		}
	}
	if v := os.Getenv("EXECINTEL_PATTERN_ENABLED"); v != "" {
		cfg.Pattern.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("EXECINTEL_PATTERN_STORE"); v != "" {
		cfg.Pattern.StorePath = v
	}
	if v := os.Getenv("EXECINTEL_TRACING"); v != "" {
		cfg.Observability.Tracing = v == "true" || v == "1"
	}
	if v := os.Getenv("EXECINTEL_AUDIT"); v != "" {
		cfg.Observability.Audit = v == "true" || v == "1"
	}
	if v := os.Getenv("EXECINTEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EXECINTEL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the knob ranges. Log-source presence is checked
// separately by ValidateForAnalysis because subcommands that do not analyze
// (rules, patterns) run without sources.
func (c *Config) Validate() error {
	if c.Analysis.TimeoutSeconds <= 0 {
		return errors.New("analysis.timeout_seconds must be positive")
	}
	if c.Analysis.Workers < 0 {
		return errors.New("analysis.workers must be non-negative")
	}
	if c.AI.Enabled && c.AI.Endpoint == "" {
		return errors.New("ai.endpoint is required when ai.enabled is true")
	}
	if c.AI.TimeoutMS <= 0 {
		return errors.New("ai.timeout_ms must be positive")
	}
	if c.AI.MinConfidence < 0 || c.AI.MinConfidence > 1 {
		return errors.New("ai.min_confidence must be within [0, 1]")
	}
	if c.AI.MaxRetries < 0 {
		return errors.New("ai.max_retries must be non-negative")
	}
	if c.Correlation.WindowSeconds <= 0 {
		return errors.New("correlation.window_seconds must be positive")
	}
	if c.Correlation.MinSharedTokens < 1 {
		return errors.New("correlation.min_shared_tokens must be at least 1")
	}
	if c.Grouping.SimilarityThreshold <= 0 || c.Grouping.SimilarityThreshold > 1 {
		return errors.New("grouping.similarity_threshold must be within (0, 1]")
	}
	if c.Grouping.TimeWindowSeconds <= 0 {
		return errors.New("grouping.time_window_seconds must be positive")
	}
	if c.Grouping.MinGroupSize < 2 {
		return errors.New("grouping.min_group_size must be at least 2")
	}
	if c.Pattern.NCap < 1 {
		return errors.New("pattern.n_cap must be at least 1")
	}
	if c.Pattern.Enabled && c.Pattern.StorePath == "" {
		return errors.New("pattern.store_path is required when pattern tracking is enabled")
	}
	if c.Resolver.SnippetRadius < 0 {
		return errors.New("resolver.snippet_radius must be non-negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ValidateForAnalysis additionally enforces the analysis input contract:
// at least one automation log source.
func (c *Config) ValidateForAnalysis() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Execution.Logs.Automation) == 0 {
		return errors.New("execution.logs.automation must list at least one source")
	}
	return nil
}

// AnalysisTimeout returns the per-test wall budget.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// WorkerCount returns the batch pool size, defaulting to the CPU count.
func (c *Config) WorkerCount() int {
	if c.Analysis.Workers > 0 {
		return c.Analysis.Workers
	}
	return runtime.NumCPU()
}

// AITimeout returns the enrichment request budget.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutMS) * time.Millisecond
}

// CorrelationWindow returns the application-log correlation padding.
func (c *Config) CorrelationWindow() time.Duration {
	return time.Duration(c.Correlation.WindowSeconds) * time.Second
}

// GroupingWindow returns the temporal grouping window.
func (c *Config) GroupingWindow() time.Duration {
	return time.Duration(c.Grouping.TimeWindowSeconds) * time.Second
}

// Redact returns a copy of the config with sensitive data masked.
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.AI.APIKey = MaskAPIKey(redacted.AI.APIKey)
	return &redacted
}

// MaskAPIKey returns a masked version of an API key for safe logging.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}
