package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"podforge/internal/config"
)

// ConfigOption adjusts a test config before its directories are created.
type ConfigOption func(*config.Config)

// WithOutputFormat sets the rendered delivery format.
func WithOutputFormat(format string) ConfigOption {
	return func(cfg *config.Config) { cfg.Render.OutputFormat = format }
}

// NewConfig returns defaults rooted in a fresh temp dir: every path lives
// under it, the API binds an ephemeral port, and the canonical format is
// 8 kHz mono so fixture WAVs stay small. Polling and heartbeats run at
// one-second intervals.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	for dir, field := range map[string]*string{
		"state":     &cfg.Paths.StateDir,
		"scratch":   &cfg.Paths.ScratchDir,
		"artifacts": &cfg.Paths.ArtifactDir,
		"templates": &cfg.Paths.TemplatesDir,
		"logs":      &cfg.Paths.LogDir,
		"locks":     &cfg.Paths.LockDir,
	} {
		*field = filepath.Join(root, dir)
	}
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Render.SampleRate = 8000
	cfg.Render.Channels = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.HeartbeatInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.TemplatesDir, 0o755); err != nil {
		t.Fatalf("mkdir templates: %v", err)
	}
	return &cfg
}

// BaseDir returns the temp root backing a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
