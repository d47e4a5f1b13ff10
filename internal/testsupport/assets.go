package testsupport

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// AssetSpec feeds the media.Asset fixture builders. Only the fields a test
// cares about need to be set; everything else defaults to a plausible photo.
var fixtureEpoch = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

// FixtureTime returns a deterministic timestamp offset from the fixture
// epoch.
func FixtureTime(offset time.Duration) time.Time {
	return fixtureEpoch.Add(offset)
}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// GradientImage renders a deterministic gradient. Different seeds produce
// visually distinct images with distinct perceptual hashes.
func GradientImage(width, height int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x*255/max(width-1, 1) + int(seed)*37) % 256)
			g := uint8((y*255/max(height-1, 1) + int(seed)*91) % 256)
			b := uint8((x + y + int(seed)) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// WritePNG encodes a gradient image to path and returns its size on disk.
func WritePNG(t testing.TB, path string, width, height int, seed uint8) int64 {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, GradientImage(width, height, seed)); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}

// UniquePath returns a path under dir with a short deterministic name.
func UniquePath(dir, prefix string, n int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%03d%s", prefix, n, ext))
}
