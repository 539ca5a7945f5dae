package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConfigDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Execution.Framework != "auto" {
		t.Errorf("Expected default framework auto, got %s", cfg.Execution.Framework)
	}
	if cfg.Analysis.TimeoutSeconds != 10 {
		t.Errorf("Expected default analysis timeout 10s, got %d", cfg.Analysis.TimeoutSeconds)
	}
	if cfg.AI.Enabled {
		t.Error("Expected AI enrichment to be disabled by default")
	}
	if cfg.AI.TimeoutMS != 30000 {
		t.Errorf("Expected default ai timeout 30000ms, got %d", cfg.AI.TimeoutMS)
	}
	if cfg.AI.MinConfidence != 0.5 {
		t.Errorf("Expected default ai min_confidence 0.5, got %v", cfg.AI.MinConfidence)
	}
	if cfg.Correlation.WindowSeconds != 30 {
		t.Errorf("Expected default correlation window 30s, got %d", cfg.Correlation.WindowSeconds)
	}
	if cfg.Correlation.MinSharedTokens != 3 {
		t.Errorf("Expected default min shared tokens 3, got %d", cfg.Correlation.MinSharedTokens)
	}
	if cfg.Grouping.SimilarityThreshold != 0.8 {
		t.Errorf("Expected default similarity threshold 0.8, got %v", cfg.Grouping.SimilarityThreshold)
	}
	if cfg.Grouping.MinGroupSize != 2 {
		t.Errorf("Expected default min group size 2, got %d", cfg.Grouping.MinGroupSize)
	}
	if cfg.Pattern.NCap != 20 {
		t.Errorf("Expected default pattern n_cap 20, got %d", cfg.Pattern.NCap)
	}
	if cfg.Resolver.SnippetRadius != 5 {
		t.Errorf("Expected default snippet radius 5, got %d", cfg.Resolver.SnippetRadius)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestLoadWithoutFileKeepsDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFileAndEnvPrecedence(t *testing.T) {
	os.Clearenv()
	_ = os.Setenv("EXECINTEL_SOURCE_ROOT", "/env/root")

	doc := `
execution:
  framework: pytest
  source_root: /file/root
  logs:
    automation:
      - logs/run.log
    application:
      - path: logs/service.log
        service: payment-service
      - logs/plain.log
ai:
  enabled: false
  timeout_ms: 10000
grouping:
  similarity_threshold: 0.9
`
	path := filepath.Join(t.TempDir(), "execintel.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Execution.Framework != "pytest" {
		t.Errorf("framework = %s, want pytest", cfg.Execution.Framework)
	}
	// Environment overrides the file.
	if cfg.Execution.SourceRoot != "/env/root" {
		t.Errorf("source_root = %s, want /env/root", cfg.Execution.SourceRoot)
	}
	if len(cfg.Execution.Logs.Automation) != 1 {
		t.Fatalf("automation sources = %d, want 1", len(cfg.Execution.Logs.Automation))
	}
	if len(cfg.Execution.Logs.Application) != 2 {
		t.Fatalf("application sources = %d, want 2", len(cfg.Execution.Logs.Application))
	}
	if cfg.Execution.Logs.Application[0].Service != "payment-service" {
		t.Errorf("service = %s, want payment-service", cfg.Execution.Logs.Application[0].Service)
	}
	if cfg.Execution.Logs.Application[1].Path != "logs/plain.log" {
		t.Errorf("plain application path = %s", cfg.Execution.Logs.Application[1].Path)
	}
	if cfg.AI.TimeoutMS != 10000 {
		t.Errorf("ai timeout = %d, want 10000", cfg.AI.TimeoutMS)
	}
	if cfg.Grouping.SimilarityThreshold != 0.9 {
		t.Errorf("similarity threshold = %v, want 0.9", cfg.Grouping.SimilarityThreshold)
	}
	// Untouched knobs keep defaults.
	if cfg.Grouping.MinGroupSize != 2 {
		t.Errorf("min group size = %d, want default 2", cfg.Grouping.MinGroupSize)
	}
}

func TestExpandEnv(t *testing.T) {
	os.Clearenv()
	_ = os.Setenv("EI_TEST_TOKEN", "sekret")

	tests := []struct {
		input    string
		expected string
	}{
		{"key: ${EI_TEST_TOKEN}", "key: sekret"},
		{"key: ${EI_TEST_MISSING:-fallback}", "key: fallback"},
		{"key: ${EI_TEST_MISSING}", "key: "},
		{"key: ${EI_TEST_TOKEN:-unused}", "key: sekret"},
		{"key: plain", "key: plain"},
		{"a=${EI_TEST_TOKEN} b=${EI_TEST_MISSING:-x}", "a=sekret b=x"},
	}

	for _, tt := range tests {
		got := string(ExpandEnv([]byte(tt.input)))
		if got != tt.expected {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	os.Clearenv()
	if _, err := Load("../../etc/passwd"); err == nil {
		t.Error("expected error for path traversal")
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config { return Default() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero analysis timeout", func(c *Config) { c.Analysis.TimeoutSeconds = 0 }, true},
		{"negative workers", func(c *Config) { c.Analysis.Workers = -1 }, true},
		{"ai enabled without endpoint", func(c *Config) { c.AI.Enabled = true }, true},
		{"ai enabled with endpoint", func(c *Config) {
			c.AI.Enabled = true
			c.AI.Endpoint = "https://ai.internal/v1/classify"
		}, false},
		{"min confidence above one", func(c *Config) { c.AI.MinConfidence = 1.5 }, true},
		{"similarity threshold above one", func(c *Config) { c.Grouping.SimilarityThreshold = 1.2 }, true},
		{"similarity threshold zero", func(c *Config) { c.Grouping.SimilarityThreshold = 0 }, true},
		{"group size one", func(c *Config) { c.Grouping.MinGroupSize = 1 }, true},
		{"zero n_cap", func(c *Config) { c.Pattern.NCap = 0 }, true},
		{"negative snippet radius", func(c *Config) { c.Resolver.SnippetRadius = -1 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForAnalysisRequiresAutomationSources(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateForAnalysis(); err == nil {
		t.Error("expected error without automation sources")
	}

	cfg.Execution.Logs.Automation = []string{"logs/run.log"}
	if err := cfg.ValidateForAnalysis(); err != nil {
		t.Errorf("unexpected error with automation sources: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.AnalysisTimeout() != 10*time.Second {
		t.Errorf("AnalysisTimeout() = %v", cfg.AnalysisTimeout())
	}
	if cfg.AITimeout() != 30*time.Second {
		t.Errorf("AITimeout() = %v", cfg.AITimeout())
	}
	if cfg.CorrelationWindow() != 30*time.Second {
		t.Errorf("CorrelationWindow() = %v", cfg.CorrelationWindow())
	}
	if cfg.GroupingWindow() != 5*time.Minute {
		t.Errorf("GroupingWindow() = %v", cfg.GroupingWindow())
	}
	if cfg.WorkerCount() < 1 {
		t.Errorf("WorkerCount() = %d, want at least 1", cfg.WorkerCount())
	}
}

func TestConfigRedact(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "secret-key-12345" // pragma: allowlist secret

	redacted := cfg.Redact()

	if redacted.AI.APIKey == cfg.AI.APIKey { // pragma: allowlist secret
		t.Error("API key should be redacted")
	}

	expectedMasked := "secr...2345"           // pragma: allowlist secret
	if redacted.AI.APIKey != expectedMasked { // pragma: allowlist secret
		t.Errorf("Expected %s, got %s", expectedMasked, redacted.AI.APIKey)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "***"},
		{"exactly8", "***"},
		{"secret-key-12345", "secr...2345"}, // pragma: allowlist secret
		{"abcdefghijklmnopqrstuvwxyz", "abcd...wxyz"},
	}

	for _, tt := range tests {
		result := MaskAPIKey(tt.input)
		if result != tt.expected {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
