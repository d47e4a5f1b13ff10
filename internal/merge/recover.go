package merge

import (
	"context"
	"fmt"

	"keeper/internal/logging"
)

// Recover resolves transactions left pending by a crash. Each one is rolled
// back, never resumed: a half-applied metadata merge cannot be trusted to
// finish correctly, and the pre-mutation state is always recoverable from
// the holding area. Called once at startup before any new operation is
// accepted. Returns the number of transactions rolled back.
func (e *Executor) Recover(ctx context.Context) (int, error) {
	pending, err := e.store.PendingTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := e.flock.Lock(); err != nil {
		return 0, fmt.Errorf("acquire holding area file lock: %w", err)
	}
	defer func() { _ = e.flock.Unlock() }()

	for _, tx := range pending {
		e.logger.Warn("recovering crashed merge",
			logging.String(logging.FieldTxID, tx.ID),
			logging.String(logging.FieldGroupID, tx.GroupID),
			logging.Int("actions", len(tx.Actions)),
		)
		release := e.locks.acquire(tx.TouchedAssets())
		e.rollback(ctx, tx)
		release()
	}
	return len(pending), nil
}
