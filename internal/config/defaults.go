package config

const (
	defaultDataDir = "~/.local/share/keeper"

	defaultPerceptualDistanceCutoff = 10
	defaultAutoMergeThreshold       = 0.90
	defaultReviewThreshold          = 0.50
	defaultBucketTolerance          = 0.15
	defaultCaptureWindowSeconds     = 3600
	defaultDateGapDays              = 30
	defaultVideoFramesMin           = 3
	defaultVideoFramesMax           = 9
	defaultVideoShortSeconds        = 2

	defaultUndoRetentionDays = 30
	defaultUndoDepth         = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Detection: Detection{
			PerceptualDistanceCutoff: defaultPerceptualDistanceCutoff,
			AutoMergeThreshold:       defaultAutoMergeThreshold,
			ReviewThreshold:          defaultReviewThreshold,
			BucketTolerance:          defaultBucketTolerance,
			CaptureWindowSeconds:     defaultCaptureWindowSeconds,
			DateGapDays:              defaultDateGapDays,
			VideoFramesMin:           defaultVideoFramesMin,
			VideoFramesMax:           defaultVideoFramesMax,
			VideoShortSeconds:        defaultVideoShortSeconds,
		},
		Weights: Weights{
			Checksum:              1.0,
			Perceptual:            0.55,
			Filename:              0.15,
			CaptureTime:           0.15,
			Dimensions:            0.15,
			SpecialPairBonus:      0.10,
			DateGapPenalty:        0.20,
			CameraMismatchPenalty: 0.15,
		},
		Merge: Merge{
			UndoRetentionDays: defaultUndoRetentionDays,
			UndoDepth:         defaultUndoDepth,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
