package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDetection()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HoldingDir) == "" {
		c.Paths.HoldingDir = filepath.Join(c.Paths.DataDir, "holding")
	} else if c.Paths.HoldingDir, err = expandPath(c.Paths.HoldingDir); err != nil {
		return fmt.Errorf("paths.holding_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	} else if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetection() {
	if c.Detection.Workers <= 0 {
		c.Detection.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Detection.VideoFramesMin <= 0 {
		c.Detection.VideoFramesMin = defaultVideoFramesMin
	}
	if c.Detection.VideoFramesMax < c.Detection.VideoFramesMin {
		c.Detection.VideoFramesMax = c.Detection.VideoFramesMin
	}
	if c.Detection.VideoShortSeconds <= 0 {
		c.Detection.VideoShortSeconds = defaultVideoShortSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
