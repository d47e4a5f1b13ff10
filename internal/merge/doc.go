// Package merge executes merge plans transactionally. Every merge follows
// the same shape: preflight checks with no side effects, a durable pending
// record in the ledger describing every intended action, the actions applied
// in order with per-action durability, then a committed record. Any action
// failure triggers compensating rollback of the already-applied actions in
// reverse order. A transaction is never left half-applied, which is also the
// contract startup recovery enforces for crashes.
package merge
