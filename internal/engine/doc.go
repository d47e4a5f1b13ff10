// Package engine is the embedding surface for the duplicate manager: one
// handle that owns the ledger, the signature service, the detector, and the
// merge executor. Construction runs crash recovery before anything else, so
// a caller holding an Engine is guaranteed a consistent ledger.
package engine
