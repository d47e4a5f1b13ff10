package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"keeper/internal/config"
	"keeper/internal/media"
	"keeper/internal/testsupport"
)

type cliTestEnv struct {
	cfg          *config.Config
	configPath   string
	manifestPath string
	baseDir      string
	assets       []media.Asset
}

// setupCLITestEnv builds a temp library with one exact-duplicate pair plus an
// unrelated photo, a config file pointing at temp directories, and a scanner
// manifest describing the library.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	base := testsupport.BaseDir(cfg)
	lib := filepath.Join(base, "library")

	pathA := filepath.Join(lib, "beach.jpg")
	pathB := filepath.Join(lib, "beach (1).jpg")
	pathC := filepath.Join(lib, "city.png")
	testsupport.WriteFile(t, pathA, 4096)
	testsupport.WriteFile(t, pathB, 2048)
	testsupport.WritePNG(t, pathC, 128, 96, 3)

	assets := []media.Asset{
		testsupport.PhotoAsset("a", pathA,
			testsupport.WithChecksum("dup-sum"),
			testsupport.WithFileSize(4096),
		),
		testsupport.PhotoAsset("b", pathB,
			testsupport.WithChecksum("dup-sum"),
			testsupport.WithFileSize(2048),
			testsupport.WithCaptureTime(testsupport.FixtureTime(-time.Hour)),
		),
		testsupport.PhotoAsset("c", pathC,
			testsupport.WithDimensions(128, 96),
			testsupport.WithFileSize(700),
		),
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	manifestPath := filepath.Join(base, "manifest.json")
	writeTestManifest(t, manifestPath, assets)

	return &cliTestEnv{
		cfg:          cfg,
		configPath:   configPath,
		manifestPath: manifestPath,
		baseDir:      base,
		assets:       assets,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeTestManifest(t *testing.T, path string, assets []media.Asset) {
	t.Helper()
	data, err := json.Marshal(media.Manifest{Assets: assets})
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// runCLI executes one command against a fresh root, the way each process
// invocation would.
func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath, "--manifest", env.manifestPath}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
