package merge

import (
	"context"
	"fmt"
	"time"

	"keeper/internal/errs"
	"keeper/internal/ledger"
	"keeper/internal/logging"
)

// Undo reverses a committed transaction: relocated files return to their
// original locations and the keeper's metadata reverts to its pre-merge
// state. Refused outright when the retention deadline or undo depth has
// passed, or when a later transaction touched any of the same assets.
func (e *Executor) Undo(ctx context.Context, txID string) (*ledger.Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.State != ledger.TxCommitted {
		return nil, errs.Wrap(errs.ErrValidation, "merge", "undo",
			fmt.Sprintf("transaction %s is %s, only committed transactions can be undone", txID, tx.State), nil)
	}

	now := e.now().UTC()
	if !tx.UndoDeadline.IsZero() && now.After(tx.UndoDeadline) {
		return nil, errs.Wrap(errs.ErrUndoExpired, "merge", "undo",
			fmt.Sprintf("transaction %s passed its undo deadline %s", txID, tx.UndoDeadline.Format(time.RFC3339)), nil)
	}
	if err := e.checkUndoDepth(ctx, txID); err != nil {
		return nil, err
	}

	touched := tx.TouchedAssets()
	superseded, err := e.store.LaterTransactionTouching(ctx, touched, tx.CreatedAt, tx.ID)
	if err != nil {
		return nil, err
	}
	if superseded {
		return nil, errs.Wrap(errs.ErrUndoSuperseded, "merge", "undo",
			fmt.Sprintf("assets of transaction %s were modified by a later transaction", txID), nil)
	}

	release := e.locks.acquire(touched)
	defer release()
	if err := e.flock.Lock(); err != nil {
		return nil, errs.Wrap(errs.ErrPermissionDenied, "merge", "lock holding area",
			"acquire holding area file lock", err)
	}
	defer func() { _ = e.flock.Unlock() }()

	// Restore in reverse application order; re-apply the restored suffix on
	// failure so the transaction never lands between committed and undone.
	restored := make([]*ledger.CleanupAction, 0, len(tx.Actions))
	for i := len(tx.Actions) - 1; i >= 0; i-- {
		action := &tx.Actions[i]
		if restoreErr := e.reverseAction(action); restoreErr != nil {
			for j := len(restored) - 1; j >= 0; j-- {
				if reapplyErr := e.applyAction(restored[j], tx); reapplyErr != nil {
					e.logger.Error("re-apply during failed undo",
						logging.String(logging.FieldTxID, tx.ID),
						logging.Error(reapplyErr),
					)
				}
			}
			return nil, errs.Wrap(errs.ErrPartialFailure, "merge", "undo",
				fmt.Sprintf("restore step of transaction %s failed, merge left committed", txID), restoreErr)
		}
		restored = append(restored, action)
	}

	e.removeHolding(tx.ID)
	tx.State = ledger.TxUndone
	if err := e.store.SetTransactionState(ctx, tx.ID, ledger.TxUndone, tx.CompletedAt, tx.UndoDeadline); err != nil {
		return tx, fmt.Errorf("record undone state for %s: %w", tx.ID, err)
	}

	e.logger.Info("merge undone",
		logging.String(logging.FieldTxID, tx.ID),
		logging.String(logging.FieldGroupID, tx.GroupID),
		logging.Int("restored", len(tx.Actions)),
	)
	return tx, nil
}

// checkUndoDepth refuses an undo when the transaction is older than the
// configured number of most-recent committed merges.
func (e *Executor) checkUndoDepth(ctx context.Context, txID string) error {
	committed, err := e.store.CommittedTransactions(ctx)
	if err != nil {
		return err
	}
	for rank, tx := range committed {
		if tx.ID != txID {
			continue
		}
		if rank >= e.cfg.Merge.UndoDepth {
			return errs.Wrap(errs.ErrUndoExpired, "merge", "undo",
				fmt.Sprintf("transaction %s is beyond the undo depth of %d", txID, e.cfg.Merge.UndoDepth), nil)
		}
		return nil
	}
	return nil
}
