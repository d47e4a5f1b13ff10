package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"keeper/internal/config"
	"keeper/internal/engine"
	"keeper/internal/logging"
	"keeper/internal/media"
)

type commandContext struct {
	configFlag   *string
	manifestFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, manifestFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		manifestFlag: manifestFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openEngine builds the full engine stack: config, logger, ledger with
// startup recovery. Callers must Close the returned engine.
func (c *commandContext) openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	eng, err := engine.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

// loadManifest reads the scanner's asset manifest named by --manifest.
func (c *commandContext) loadManifest() ([]media.Asset, error) {
	var path string
	if c.manifestFlag != nil {
		path = strings.TrimSpace(*c.manifestFlag)
	}
	if path == "" {
		return nil, fmt.Errorf("a scanner manifest is required (--manifest)")
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	assets, err := media.LoadManifest(expanded)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", expanded, err)
	}
	return assets, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
