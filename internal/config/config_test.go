package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"keeper/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "keeper")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.HoldingDir != filepath.Join(wantData, "holding") {
		t.Fatalf("unexpected holding dir: %q", cfg.Paths.HoldingDir)
	}
	if cfg.Paths.LogDir != filepath.Join(wantData, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.LedgerPath() != filepath.Join(wantData, "ledger.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.LedgerPath())
	}
	if cfg.Detection.Workers <= 0 {
		t.Fatalf("expected workers to be normalized, got %d", cfg.Detection.Workers)
	}
	if cfg.Detection.PerceptualDistanceCutoff != config.Default().Detection.PerceptualDistanceCutoff {
		t.Fatalf("unexpected perceptual cutoff: %d", cfg.Detection.PerceptualDistanceCutoff)
	}
	if cfg.Weights.Checksum != 1.0 {
		t.Fatalf("unexpected checksum weight: %v", cfg.Weights.Checksum)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.HoldingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "keeper.toml")

	type payload struct {
		Paths struct {
			DataDir    string `toml:"data_dir"`
			HoldingDir string `toml:"holding_dir"`
		} `toml:"paths"`
		Detection struct {
			PerceptualDistanceCutoff int     `toml:"perceptual_distance_cutoff"`
			ReviewThreshold          float64 `toml:"review_threshold"`
			Workers                  int     `toml:"workers"`
		} `toml:"detection"`
		Merge struct {
			UndoRetentionDays int `toml:"undo_retention_days"`
		} `toml:"merge"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Paths.HoldingDir = filepath.Join(tempDir, "stash")
	custom.Detection.PerceptualDistanceCutoff = 6
	custom.Detection.ReviewThreshold = 0.4
	custom.Detection.Workers = 3
	custom.Merge.UndoRetentionDays = 7
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.DataDir != custom.Paths.DataDir {
		t.Fatalf("expected data dir override, got %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.HoldingDir != custom.Paths.HoldingDir {
		t.Fatalf("expected holding dir override, got %q", cfg.Paths.HoldingDir)
	}
	if cfg.Detection.PerceptualDistanceCutoff != 6 {
		t.Fatalf("expected cutoff 6, got %d", cfg.Detection.PerceptualDistanceCutoff)
	}
	if cfg.Detection.ReviewThreshold != 0.4 {
		t.Fatalf("expected review threshold 0.4, got %v", cfg.Detection.ReviewThreshold)
	}
	if cfg.Detection.Workers != 3 {
		t.Fatalf("expected workers 3, got %d", cfg.Detection.Workers)
	}
	if cfg.Merge.UndoRetentionDays != 7 {
		t.Fatalf("expected undo retention 7, got %d", cfg.Merge.UndoRetentionDays)
	}
	// Unset sections fall back to defaults.
	if cfg.Merge.UndoDepth != config.Default().Merge.UndoDepth {
		t.Fatalf("unexpected undo depth: %d", cfg.Merge.UndoDepth)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tempDir := t.TempDir()

	cases := []struct {
		name string
		body string
	}{
		{"cutoff out of range", "[detection]\nperceptual_distance_cutoff = 65\n"},
		{"review above auto merge", "[detection]\nreview_threshold = 0.95\nauto_merge_threshold = 0.9\n"},
		{"tolerance out of range", "[detection]\nbucket_tolerance = 0.6\n"},
		{"negative weight", "[weights]\nperceptual = -0.1\n"},
		{"checksum below one", "[weights]\nchecksum = 0.5\n"},
		{"non-positive retention", "[merge]\nundo_retention_days = 0\n"},
		{"bad log format", "[logging]\nformat = \"xml\"\n"},
		{"bad log level", "[logging]\nlevel = \"trace\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(tempDir, strings.ReplaceAll(tc.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "auto_merge_threshold") {
		t.Fatalf("sample config missing detection section: %s", contents)
	}

	// The sample must decode and carry the built-in defaults.
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	want := config.Default()
	if cfg.Detection.AutoMergeThreshold != want.Detection.AutoMergeThreshold {
		t.Fatalf("sample auto merge threshold diverges from default: %v", cfg.Detection.AutoMergeThreshold)
	}
	if cfg.Weights != want.Weights {
		t.Fatalf("sample weights diverge from defaults: %+v", cfg.Weights)
	}
	if cfg.Merge != want.Merge {
		t.Fatalf("sample merge settings diverge from defaults: %+v", cfg.Merge)
	}
}
