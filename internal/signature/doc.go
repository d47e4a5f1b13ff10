// Package signature computes fixed-width perceptual fingerprints for images
// and sampled video frames, and the Hamming distances the detection engine
// scores against.
//
// Image signatures are 64-bit DCT perceptual hashes; identical pixel content
// produces identical signatures regardless of container or format, which is
// why decoding goes through an orientation-normalizing pipeline. Video
// signatures sample frames at start, middle, and end (more for long videos,
// a single guarded frame for very short clips) through a caller-supplied
// FrameDecoder, since container parsing lives outside the engine.
//
// The Service memoizes signatures keyed by (asset id, size, mtime) with
// per-entry locking so parallel detection workers never serialize on a global
// lock and never compute the same signature twice.
package signature
