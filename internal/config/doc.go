// Package config loads and validates the engine configuration.
//
// Configuration is TOML on disk, decoded over Default() so absent keys keep
// their defaults. Load expands paths, normalizes derived values, and
// validates ranges before anything else in the engine starts; every component
// treats the resulting Config as immutable for the duration of a detection
// pass or merge.
package config
