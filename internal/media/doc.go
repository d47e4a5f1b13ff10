// Package media defines the asset descriptors the engine consumes from an
// external scanner and the vocabulary shared by every downstream component.
//
// Assets are immutable snapshots of scanned files: identity, location,
// filesystem attributes, and the already-extracted capture metadata the engine
// scores against. The engine never enumerates directories or decodes container
// metadata itself; it trusts the descriptors handed to it and tombstones an
// asset when a merge relocates its file.
//
// Keep this package dependency-free so detection, planning, and merge code can
// all import it without cycles.
package media
