package testsupport

import (
	"path/filepath"
	"testing"

	"clearwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.OutputDir = filepath.Join(base, "barcodes")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Scheduler.Mode = "manual"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAutomaticMode switches the test config scheduler into automatic mode.
func WithAutomaticMode(intervalMinutes int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scheduler.Mode = "automatic"
		if intervalMinutes > 0 {
			cfg.Scheduler.IntervalMinutes = intervalMinutes
		}
	}
}
