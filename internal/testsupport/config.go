// Package testsupport provides shared fixtures for package tests: temp-dir
// configs, ledger stores with cleanup, asset builders, and synthetic images.
package testsupport

import (
	"path/filepath"
	"testing"

	"keeper/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.HoldingDir = filepath.Join(base, "holding")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Detection.Workers = 2

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithThresholds overrides the review and auto-merge thresholds.
func WithThresholds(review, autoMerge float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Detection.ReviewThreshold = review
		cfg.Detection.AutoMergeThreshold = autoMerge
	}
}

// WithUndoRetention overrides the undo retention window and depth.
func WithUndoRetention(days, depth int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Merge.UndoRetentionDays = days
		cfg.Merge.UndoDepth = depth
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
