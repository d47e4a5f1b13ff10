package testsupport

import (
	"time"

	"keeper/internal/media"
)

// AssetOption mutates a fixture asset.
type AssetOption func(*media.Asset)

// PhotoAsset builds a plausible photo asset. Checksum defaults to a value
// unique to the ID so fixtures never collide in the exact-match pass unless
// a test sets matching checksums on purpose.
func PhotoAsset(id, path string, opts ...AssetOption) media.Asset {
	asset := media.Asset{
		ID:          id,
		Path:        path,
		Type:        media.TypePhoto,
		FileSize:    2048,
		Checksum:    "sum-" + id,
		CaptureTime: fixtureEpoch,
		ModTime:     fixtureEpoch,
		Width:       4000,
		Height:      3000,
		Format:      "jpeg",
	}
	for _, opt := range opts {
		opt(&asset)
	}
	return asset
}

// VideoAsset builds a plausible video asset.
func VideoAsset(id, path string, opts ...AssetOption) media.Asset {
	asset := media.Asset{
		ID:          id,
		Path:        path,
		Type:        media.TypeVideo,
		FileSize:    1 << 20,
		Checksum:    "sum-" + id,
		CaptureTime: fixtureEpoch,
		ModTime:     fixtureEpoch,
		Width:       1920,
		Height:      1080,
		Duration:    90 * time.Second,
		Format:      "mp4",
		Bitrate:     8_000_000,
	}
	for _, opt := range opts {
		opt(&asset)
	}
	return asset
}

// WithChecksum sets the checksum.
func WithChecksum(sum string) AssetOption {
	return func(a *media.Asset) { a.Checksum = sum }
}

// WithDimensions sets width and height.
func WithDimensions(width, height int) AssetOption {
	return func(a *media.Asset) { a.Width, a.Height = width, height }
}

// WithCaptureTime sets the capture timestamp.
func WithCaptureTime(when time.Time) AssetOption {
	return func(a *media.Asset) { a.CaptureTime = when }
}

// WithFileSize sets the file size.
func WithFileSize(size int64) AssetOption {
	return func(a *media.Asset) { a.FileSize = size }
}

// WithTags sets the tag list.
func WithTags(tags ...string) AssetOption {
	return func(a *media.Asset) { a.Tags = tags }
}

// WithLocation sets a complete geotag.
func WithLocation(lat, lon float64) AssetOption {
	return func(a *media.Asset) {
		a.Location = media.Location{Latitude: lat, Longitude: lon, Valid: true}
	}
}

// WithLossless marks the asset as a lossless original.
func WithLossless() AssetOption {
	return func(a *media.Asset) { a.Lossless = true }
}

// WithCamera sets the camera model.
func WithCamera(model string) AssetOption {
	return func(a *media.Asset) { a.CameraModel = model }
}
