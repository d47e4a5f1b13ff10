// Package logging assembles the structured slog loggers shared by every
// engine component.
//
// It owns the console and JSON handlers, centralizes level plumbing, and
// exposes attribute helpers plus standardized field keys so detection passes,
// planners, and merge transactions all tag log lines the same way. A no-op
// logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the engine.
package logging
