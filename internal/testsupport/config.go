package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"waveline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.ArtifactCache.Dir = filepath.Join(base, "cache")
	cfgVal.Analyzer.Binary = "analyzer-stub"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithOutboxPolicy overrides the outbox retry policy on the test config.
func WithOutboxPolicy(maxAttempts, backoffSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Outbox.MaxAttempts = maxAttempts
		b.cfg.Outbox.BackoffSeconds = backoffSeconds
	}
}

// WithAnalyzerScript writes an executable shell script, points the analyzer
// binary at it, and returns nothing; the script body is caller-supplied.
func WithAnalyzerScript(body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "analyzer-stub")
		if err := os.WriteFile(target, []byte(body), 0o755); err != nil {
			b.t.Fatalf("write analyzer stub: %v", err)
		}
		b.cfg.Analyzer.Binary = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.InboxDir)
}
