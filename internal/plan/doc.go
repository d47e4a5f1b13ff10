// Package plan turns a duplicate group into a merge plan: a deterministic
// keeper choice plus the field-level metadata decisions and relocations that
// collapse the group onto that keeper. Planning is pure; nothing here touches
// the filesystem or the ledger.
package plan
