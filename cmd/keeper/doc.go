// Command keeper is the CLI for the duplicate-media engine: run detection
// over a scanner manifest, review the resulting groups, execute merges, and
// undo them while the retention window is open.
package main
