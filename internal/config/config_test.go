package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
inbox_dir = "` + filepath.Join(dir, "inbox") + `"
artifact_dir = "` + filepath.Join(dir, "artifacts") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[analyzer]
binary = "analyzer-stub"
output_extension = "yaml"

[outbox]
max_attempts = 3
backoff_seconds = 1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Analyzer.Binary != "analyzer-stub" {
		t.Fatalf("unexpected analyzer binary: %q", cfg.Analyzer.Binary)
	}
	if cfg.Analyzer.OutputExtension != ".yaml" {
		t.Fatalf("expected extension normalized with dot, got %q", cfg.Analyzer.OutputExtension)
	}
	if cfg.Outbox.MaxAttempts != 3 {
		t.Fatalf("expected overridden max attempts, got %d", cfg.Outbox.MaxAttempts)
	}
	if cfg.Workflow.InboxPollInterval != defaultInboxPollInterval {
		t.Fatalf("expected default poll interval, got %d", cfg.Workflow.InboxPollInterval)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, exists, err := Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config to be reported as absent")
	}
	if cfg.Analyzer.Binary != defaultAnalyzerBinary {
		t.Fatalf("expected default analyzer binary, got %q", cfg.Analyzer.Binary)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing binary", func(c *Config) { c.Analyzer.Binary = "" }, "analyzer.binary"},
		{"ingest without url", func(c *Config) { c.Ingest.Enabled = true }, "ingest.url"},
		{"zero attempts", func(c *Config) { c.Outbox.MaxAttempts = 0 }, "outbox.max_attempts"},
		{"cache without url", func(c *Config) { c.ArtifactCache.Enabled = true }, "artifact_cache.base_url"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatalf("normalize failed: %v", err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	if !strings.Contains(SampleConfig(), "streaming_extractor_music") {
		t.Fatal("sample config should document the default analyzer binary")
	}
}
