package media

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Manifest is the JSON envelope an external scanner writes for the engine.
type Manifest struct {
	GeneratedAt string  `json:"generated_at,omitempty"`
	Assets      []Asset `json:"assets"`
}

// LoadManifest reads and validates a scanner manifest from disk.
func LoadManifest(path string) ([]Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	seen := make(map[string]struct{}, len(manifest.Assets))
	for i := range manifest.Assets {
		asset := &manifest.Assets[i]
		asset.ID = strings.TrimSpace(asset.ID)
		if asset.ID == "" {
			return nil, fmt.Errorf("manifest asset %d: missing id", i)
		}
		if _, dup := seen[asset.ID]; dup {
			return nil, fmt.Errorf("manifest asset %q: duplicate id", asset.ID)
		}
		seen[asset.ID] = struct{}{}
		if asset.Path == "" {
			return nil, fmt.Errorf("manifest asset %q: missing path", asset.ID)
		}
		if _, ok := ParseType(string(asset.Type)); !ok {
			return nil, fmt.Errorf("manifest asset %q: unknown media type %q", asset.ID, asset.Type)
		}
	}
	return manifest.Assets, nil
}
