// Package detect turns a snapshot of scanned assets into duplicate groups
// with per-pair rationale.
//
// A pass runs two phases. The exact phase groups assets byte-identical by
// checksum at confidence 1.0 without touching perceptual signatures. The
// candidate phase computes signatures for the remaining assets on a bounded
// worker pool, scores same-bucket pairs with weighted signals and penalties,
// and clusters pairs over an arena union-find. A group's reported confidence
// is the minimum pairwise confidence among its scored member pairs, never the
// average, so transitive chaining cannot inflate it.
//
// Passes are cooperatively cancellable between asset boundaries and return
// partial results flagged incomplete. Progress is a buffered event channel
// the caller drains at its own pace; emission is sampled, so a slow consumer
// loses events rather than stalling the pass.
package detect
