package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"cadence/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.MusicDir = filepath.Join(base, "music")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

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

// WithMaxWorkers overrides the worker pool size on the test config.
func WithMaxWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.MaxWorkers = n
	}
}

// WithAnalyzerBinary points the test config at a specific analyzer tool.
func WithAnalyzerBinary(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analysis.AnalyzerBinary = path
	}
}

// WithStubbedAnalyzer writes a stub analyzer script that prints the provided
// JSON document and exits with the given code, and points the config at it.
func WithStubbedAnalyzer(output string, exitCode int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analysis.AnalyzerBinary = StubAnalyzer(b.t, b.baseDir, output, exitCode)
	}
}

// StubAnalyzer writes an executable shell script into baseDir/bin that echoes
// output and exits with exitCode, returning its path.
func StubAnalyzer(t testing.TB, baseDir, output string, exitCode int) string {
	t.Helper()

	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, "cadence-analyzer")
	script := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\nexit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub analyzer: %v", err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
