// Package ledger persists engine state in SQLite: computed signatures,
// detection groups, and the append-only merge transaction log. The
// transaction log is the crash-safety backbone: a merge's intended actions
// are committed here, durably, before the first file mutation, and startup
// recovery replays the log to roll back anything left pending.
package ledger
