package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// DataDir holds the ledger database and derived directories.
	DataDir string `toml:"data_dir"`
	// HoldingDir receives relocated non-keeper files until their undo
	// window lapses. Defaults to <data_dir>/holding.
	HoldingDir string `toml:"holding_dir"`
	// LogDir receives engine log files. Defaults to <data_dir>/logs.
	LogDir string `toml:"log_dir"`
}

// Detection contains tunables for a detection pass.
type Detection struct {
	// PerceptualDistanceCutoff is the Hamming distance at or below which
	// two 64-bit signatures count as visually matching.
	PerceptualDistanceCutoff int `toml:"perceptual_distance_cutoff"`
	// AutoMergeThreshold is the aggregate confidence a group needs before
	// it is auto-actionable; groups below it are flagged for review.
	AutoMergeThreshold float64 `toml:"auto_merge_threshold"`
	// ReviewThreshold is the minimum pairwise confidence for two assets to
	// be clustered at all.
	ReviewThreshold float64 `toml:"review_threshold"`
	// BucketTolerance widens candidate bucket edges so true duplicates
	// straddling a band boundary are still co-bucketed. Fraction of the
	// band width, 0..0.5.
	BucketTolerance float64 `toml:"bucket_tolerance"`
	// Workers bounds the detection worker pool. Zero selects GOMAXPROCS.
	Workers int `toml:"workers"`
	// CaptureWindowSeconds is the capture-time proximity window that earns
	// full signal contribution.
	CaptureWindowSeconds int `toml:"capture_window_seconds"`
	// DateGapDays is the capture-time gap beyond which the date-gap
	// penalty applies.
	DateGapDays int `toml:"date_gap_days"`
	// VideoFramesMin/Max bound how many frames a video signature samples.
	VideoFramesMin int `toml:"video_frames_min"`
	VideoFramesMax int `toml:"video_frames_max"`
	// VideoShortSeconds guards sampling for very short clips.
	VideoShortSeconds int `toml:"video_short_seconds"`
}

// Weights contains the signal and penalty weights used to aggregate pairwise
// confidence. Signal contributions minus penalties are clamped to [0,1].
type Weights struct {
	Checksum              float64 `toml:"checksum"`
	Perceptual            float64 `toml:"perceptual"`
	Filename              float64 `toml:"filename"`
	CaptureTime           float64 `toml:"capture_time"`
	Dimensions            float64 `toml:"dimensions"`
	SpecialPairBonus      float64 `toml:"special_pair_bonus"`
	DateGapPenalty        float64 `toml:"date_gap_penalty"`
	CameraMismatchPenalty float64 `toml:"camera_mismatch_penalty"`
}

// Merge contains transactional merge tunables.
type Merge struct {
	// UndoRetentionDays is how long a committed transaction remains
	// undoable.
	UndoRetentionDays int `toml:"undo_retention_days"`
	// UndoDepth caps how many committed transactions stay undo-eligible;
	// older ones age out.
	UndoDepth int `toml:"undo_depth"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the engine.
//
// Sections by subsystem:
//   - Paths: data, holding, and log directories
//   - Detection: thresholds, bucket tolerance, worker pool, video sampling
//   - Weights: confidence signal weights and penalties
//   - Merge: undo retention and depth
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Detection Detection `toml:"detection"`
	Weights   Weights   `toml:"weights"`
	Merge     Merge     `toml:"merge"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/keeper/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("keeper.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the engine needs to operate.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.HoldingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the location of the engine's SQLite ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
