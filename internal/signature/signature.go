package signature

import (
	"math/bits"
	"time"
)

// AlgorithmPHash tags signatures produced by the 64-bit DCT perceptual hash.
const AlgorithmPHash = "phash-dct"

// BitWidth is the fixed width of every signature the engine produces.
const BitWidth = 64

// Signature is a fixed-width visual fingerprint of one asset.
type Signature struct {
	AssetID    string    `json:"asset_id"`
	Algorithm  string    `json:"algorithm"`
	Bits       int       `json:"bits"`
	Hash       uint64    `json:"hash"`
	ComputedAt time.Time `json:"computed_at"`
}

// FrameSignature pairs a sampled frame offset with its signature.
type FrameSignature struct {
	Offset    time.Duration `json:"offset"`
	Signature Signature     `json:"signature"`
}

// VideoSignature is the ordered set of frame signatures for one video asset.
// Incomplete marks signatures where one or more frames failed to decode; the
// remaining frames still participate in comparison.
type VideoSignature struct {
	AssetID    string           `json:"asset_id"`
	Duration   time.Duration    `json:"duration"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Frames     []FrameSignature `json:"frames"`
	Incomplete bool             `json:"incomplete"`
}

// Distance returns the Hamming distance between two 64-bit hashes. It is
// symmetric and bounded by BitWidth; zero means identical content signatures.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// DistanceTo returns the Hamming distance to another signature.
func (s Signature) DistanceTo(other Signature) int {
	return Distance(s.Hash, other.Hash)
}

// DistanceTo compares two video signatures frame by frame and returns the
// mean framewise distance over the aligned prefix. The second return is false
// when either side has no usable frames.
func (v VideoSignature) DistanceTo(other VideoSignature) (int, bool) {
	n := len(v.Frames)
	if len(other.Frames) < n {
		n = len(other.Frames)
	}
	if n == 0 {
		return 0, false
	}
	total := 0
	for i := 0; i < n; i++ {
		total += v.Frames[i].Signature.DistanceTo(other.Frames[i].Signature)
	}
	return total / n, true
}
