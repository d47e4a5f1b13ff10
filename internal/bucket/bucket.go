// Package bucket partitions assets into coarse comparison sets so the
// detection engine never scores the full quadratic pair space.
//
// Buckets key on (media type, file-size band, dimension or duration band)
// with logarithmic bands and fuzzy edges: an asset close to a band boundary
// joins both neighboring bands, so true duplicates straddling an edge are
// still co-bucketed. Only same-bucket assets are ever compared; overlap means
// a pair can appear in more than one bucket, and callers deduplicate pairs.
package bucket

import (
	"math"
	"sort"

	"keeper/internal/media"
)

// Key identifies one candidate bucket.
type Key struct {
	Type media.Type
	Size int
	Dim  int
}

// Bucket groups snapshot indices that share a key. Indices are sorted so
// iteration order is deterministic.
type Bucket struct {
	Key     Key
	Indices []int
}

// Partition assigns every asset to one or more buckets. tolerance widens band
// edges as a fraction of the band width (0..0.5). Buckets holding fewer than
// two assets are dropped since they can produce no pairs.
func Partition(assets []media.Asset, tolerance float64) []Bucket {
	byKey := make(map[Key][]int)
	for i, asset := range assets {
		for _, key := range keysFor(asset, tolerance) {
			byKey[key] = append(byKey[key], i)
		}
	}

	buckets := make([]Bucket, 0, len(byKey))
	for key, indices := range byKey {
		if len(indices) < 2 {
			continue
		}
		sort.Ints(indices)
		buckets = append(buckets, Bucket{Key: key, Indices: indices})
	}
	sort.Slice(buckets, func(i, j int) bool { return keyLess(buckets[i].Key, buckets[j].Key) })
	return buckets
}

func keyLess(a, b Key) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.Dim < b.Dim
}

func keysFor(asset media.Asset, tolerance float64) []Key {
	sizeBands := fuzzyBands(float64(asset.FileSize), tolerance)
	dimBands := fuzzyBands(dimMeasure(asset), tolerance)

	keys := make([]Key, 0, len(sizeBands)*len(dimBands))
	for _, s := range sizeBands {
		for _, d := range dimBands {
			keys = append(keys, Key{Type: asset.Type, Size: s, Dim: d})
		}
	}
	return keys
}

// dimMeasure picks the banded axis per media type: pixel count for photos,
// duration seconds for videos and audio.
func dimMeasure(asset media.Asset) float64 {
	switch asset.Type {
	case media.TypePhoto:
		return float64(asset.Pixels())
	default:
		return asset.Duration.Seconds()
	}
}

// fuzzyBands returns the log2 band for the value, plus the neighboring band
// when the value sits within tolerance of a boundary.
func fuzzyBands(value, tolerance float64) []int {
	if value <= 1 {
		return []int{0}
	}
	exact := math.Log2(value)
	band := int(math.Floor(exact))
	frac := exact - float64(band)

	bands := []int{band}
	if frac < tolerance && band > 0 {
		bands = append(bands, band-1)
	}
	if frac > 1-tolerance {
		bands = append(bands, band+1)
	}
	return bands
}
