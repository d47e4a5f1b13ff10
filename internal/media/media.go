package media

import (
	"sort"
	"strings"
	"time"
)

// Type categorizes an asset by its broad media kind.
type Type string

const (
	TypePhoto Type = "photo"
	TypeVideo Type = "video"
	TypeAudio Type = "audio"
)

var typeSet = map[Type]struct{}{
	TypePhoto: {},
	TypeVideo: {},
	TypeAudio: {},
}

// ParseType converts a string into a known Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := typeSet[normalized]
	return normalized, ok
}

// Pairing references companion assets that belong to the same capture:
// RAW+JPEG shots, Live Photo image/video halves, and XMP sidecars. Paired
// assets are scored together but never treated as duplicates of unrelated
// assets.
type Pairing struct {
	RawPartnerID       string `json:"raw_partner_id,omitempty"`
	LivePhotoPartnerID string `json:"live_photo_partner_id,omitempty"`
	SidecarPartnerID   string `json:"sidecar_partner_id,omitempty"`
}

// Location is an optional geotag. Complete means both coordinates are set.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Valid     bool    `json:"valid"`
}

// Complete reports whether the location carries usable coordinates.
func (l Location) Complete() bool {
	return l.Valid && !(l.Latitude == 0 && l.Longitude == 0)
}

// Asset describes one scanned media file. The scanner assigns the stable ID
// and extracts all metadata before the engine ever sees the asset.
type Asset struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Type        Type      `json:"type"`
	FileSize    int64     `json:"file_size"`
	Checksum    string    `json:"checksum"`
	CaptureTime time.Time `json:"capture_time"`
	ModTime     time.Time `json:"mod_time"`

	// Width and Height apply to photos and videos; Duration applies to
	// videos and audio.
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	Format      string   `json:"format,omitempty"`
	Lossless    bool     `json:"lossless,omitempty"`
	Bitrate     int64    `json:"bitrate,omitempty"`
	CameraModel string   `json:"camera_model,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Location    Location `json:"location,omitempty"`
	Pairing     Pairing  `json:"pairing,omitempty"`

	// Tombstoned marks an asset whose file was relocated or removed by a
	// committed merge. Tombstoned assets are skipped by detection passes.
	Tombstoned bool `json:"tombstoned,omitempty"`
}

// Pixels returns the pixel count for dimensioned assets, zero otherwise.
func (a Asset) Pixels() int64 {
	return int64(a.Width) * int64(a.Height)
}

// PairedWith reports whether other is a registered companion of the asset.
func (a Asset) PairedWith(other Asset) bool {
	return a.pairedID(other.ID) || other.pairedID(a.ID)
}

func (a Asset) pairedID(id string) bool {
	if id == "" {
		return false
	}
	return a.Pairing.RawPartnerID == id ||
		a.Pairing.LivePhotoPartnerID == id ||
		a.Pairing.SidecarPartnerID == id
}

// SortAssets orders assets by ID so every pass over the same input walks
// assets in the same order.
func SortAssets(assets []Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
}

// Snapshot returns a defensive, ID-sorted copy of the assets with tombstoned
// entries removed. Detection passes operate on a snapshot so concurrent
// scanner updates never tear a pass mid-flight.
func Snapshot(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.Tombstoned {
			continue
		}
		out = append(out, asset)
	}
	SortAssets(out)
	return out
}
