package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateWeights(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if d.PerceptualDistanceCutoff < 0 || d.PerceptualDistanceCutoff > 64 {
		return errors.New("detection.perceptual_distance_cutoff must be between 0 and 64")
	}
	if d.AutoMergeThreshold < 0 || d.AutoMergeThreshold > 1 {
		return errors.New("detection.auto_merge_threshold must be between 0 and 1")
	}
	if d.ReviewThreshold < 0 || d.ReviewThreshold > 1 {
		return errors.New("detection.review_threshold must be between 0 and 1")
	}
	if d.ReviewThreshold > d.AutoMergeThreshold {
		return errors.New("detection.review_threshold must not exceed detection.auto_merge_threshold")
	}
	if d.BucketTolerance < 0 || d.BucketTolerance > 0.5 {
		return errors.New("detection.bucket_tolerance must be between 0 and 0.5")
	}
	if d.CaptureWindowSeconds < 0 {
		return errors.New("detection.capture_window_seconds must not be negative")
	}
	if d.DateGapDays < 0 {
		return errors.New("detection.date_gap_days must not be negative")
	}
	return nil
}

func (c *Config) validateWeights() error {
	w := c.Weights
	for _, entry := range []struct {
		name  string
		value float64
	}{
		{"checksum", w.Checksum},
		{"perceptual", w.Perceptual},
		{"filename", w.Filename},
		{"capture_time", w.CaptureTime},
		{"dimensions", w.Dimensions},
		{"special_pair_bonus", w.SpecialPairBonus},
		{"date_gap_penalty", w.DateGapPenalty},
		{"camera_mismatch_penalty", w.CameraMismatchPenalty},
	} {
		if entry.value < 0 {
			return fmt.Errorf("weights.%s must not be negative", entry.name)
		}
	}
	if w.Checksum < 1 {
		// Exact-checksum pairs must always score 1.0 on their own.
		return errors.New("weights.checksum must be at least 1")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.UndoRetentionDays <= 0 {
		return errors.New("merge.undo_retention_days must be positive")
	}
	if c.Merge.UndoDepth <= 0 {
		return errors.New("merge.undo_depth must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
