package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"keeper/internal/config"
	"keeper/internal/errs"
	"keeper/internal/ledger"
	"keeper/internal/logging"
	"keeper/internal/media"
	"keeper/internal/plan"
)

// Executor applies merge plans. One executor serves the whole process;
// per-asset locks serialize overlapping transactions and a file lock on the
// holding area keeps a second process out entirely.
type Executor struct {
	cfg    *config.Config
	store  *ledger.Store
	logger *slog.Logger
	locks  *assetLocks
	ops    FileOps
	flock  *flock.Flock
	now    func() time.Time
	newID  func() string
}

// Option customizes an Executor.
type Option func(*Executor)

// WithFileOps substitutes the filesystem implementation. Used by tests to
// inject faults at action boundaries.
func WithFileOps(ops FileOps) Option {
	return func(e *Executor) { e.ops = ops }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor constructs an executor over the ledger store.
func NewExecutor(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "merge"),
		locks:  newAssetLocks(),
		ops:    osFileOps{},
		flock:  flock.New(filepath.Join(cfg.Paths.HoldingDir, ".keeper.lock")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a merge plan to completion. The pending transaction is
// durable in the ledger before the first file is touched; on any action
// failure the applied prefix is compensated in reverse order and the
// transaction is marked rolled back. Preflight failures abort before a
// transaction is ever created.
func (e *Executor) Execute(ctx context.Context, pln plan.Plan, assets []media.Asset) (*ledger.Transaction, error) {
	keeper, err := findKeeper(pln, assets)
	if err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		ID:             e.newID(),
		GroupID:        pln.GroupID,
		KeeperID:       keeper.ID,
		KeeperPath:     keeper.Path,
		FieldChanges:   pln.FieldChanges,
		KeeperPreImage: keeper,
		CreatedAt:      e.now().UTC(),
		State:          ledger.TxPending,
	}

	release := e.locks.acquire(append([]string{keeper.ID}, relocateIDs(pln)...))
	defer release()

	if err := e.preflight(pln, keeper); err != nil {
		return nil, err
	}
	tx.Actions = e.buildActions(pln, keeper, tx.ID)

	if err := e.ops.MkdirAll(e.holdingDir(tx.ID), 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrPermissionDenied, "merge", "prepare holding area",
			fmt.Sprintf("create holding directory for transaction %s", tx.ID), err)
	}
	if err := e.flock.Lock(); err != nil {
		return nil, errs.Wrap(errs.ErrPermissionDenied, "merge", "lock holding area",
			"acquire holding area file lock", err)
	}
	defer func() { _ = e.flock.Unlock() }()

	if err := e.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	e.logger.Info("merge started",
		logging.String(logging.FieldTxID, tx.ID),
		logging.String(logging.FieldGroupID, tx.GroupID),
		logging.String(logging.FieldAssetID, tx.KeeperID),
		logging.Int("actions", len(tx.Actions)),
	)

	for i := range tx.Actions {
		if err := e.applyAction(&tx.Actions[i], tx); err != nil {
			e.logger.Error("merge action failed, rolling back",
				logging.String(logging.FieldTxID, tx.ID),
				logging.Int("action", i),
				logging.Error(err),
			)
			e.rollback(ctx, tx)
			return tx, errs.Wrap(errs.ErrPartialFailure, "merge", "execute plan",
				fmt.Sprintf("action %d of transaction %s failed, transaction rolled back", i, tx.ID), err)
		}
		tx.Actions[i].Applied = true
		if err := e.store.UpdateTransactionActions(ctx, tx.ID, tx.Actions); err != nil {
			e.rollback(ctx, tx)
			return tx, errs.Wrap(errs.ErrPartialFailure, "merge", "execute plan",
				fmt.Sprintf("persist progress of transaction %s", tx.ID), err)
		}
	}

	tx.CompletedAt = e.now().UTC()
	tx.UndoDeadline = tx.CompletedAt.Add(time.Duration(e.cfg.Merge.UndoRetentionDays) * 24 * time.Hour)
	tx.State = ledger.TxCommitted
	if err := e.store.SetTransactionState(ctx, tx.ID, ledger.TxCommitted, tx.CompletedAt, tx.UndoDeadline); err != nil {
		return tx, fmt.Errorf("commit transaction %s: %w", tx.ID, err)
	}

	e.logger.Info("merge committed",
		logging.String(logging.FieldTxID, tx.ID),
		logging.String(logging.FieldGroupID, tx.GroupID),
		logging.Int("relocated", len(pln.Relocate)),
		logging.Int64("space_freed", pln.SpaceFreed),
	)
	return tx, nil
}

func findKeeper(pln plan.Plan, assets []media.Asset) (media.Asset, error) {
	for _, asset := range assets {
		if asset.ID == pln.KeeperID {
			return asset, nil
		}
	}
	return media.Asset{}, errs.Wrap(errs.ErrValidation, "merge", "execute plan",
		fmt.Sprintf("keeper %s not among provided assets", pln.KeeperID), nil)
}

func relocateIDs(pln plan.Plan) []string {
	ids := make([]string, 0, len(pln.Relocate))
	for _, rel := range pln.Relocate {
		ids = append(ids, rel.AssetID)
	}
	return ids
}

// preflight verifies every file the plan touches before anything mutates.
// A plan that cannot begin never creates a transaction.
func (e *Executor) preflight(pln plan.Plan, keeper media.Asset) error {
	if _, err := e.ops.Stat(keeper.Path); err != nil {
		return errs.Wrap(errs.ErrKeeperInaccessible, "merge", "preflight",
			fmt.Sprintf("keeper %s at %s is not accessible", keeper.ID, keeper.Path), err)
	}
	for _, rel := range pln.Relocate {
		if _, err := e.ops.Stat(rel.SourcePath); err != nil {
			if os.IsPermission(err) {
				return errs.Wrap(errs.ErrPermissionDenied, "merge", "preflight",
					fmt.Sprintf("no permission to read %s at %s", rel.AssetID, rel.SourcePath), err)
			}
			return errs.Wrap(errs.ErrValidation, "merge", "preflight",
				fmt.Sprintf("member %s at %s is not accessible", rel.AssetID, rel.SourcePath), err)
		}
	}
	return nil
}

// buildActions fixes the full action list, holding paths included, before
// the transaction is appended. The ledger record fully describes intent.
func (e *Executor) buildActions(pln plan.Plan, keeper media.Asset, txID string) []ledger.CleanupAction {
	var actions []ledger.CleanupAction
	if len(pln.FieldChanges) > 0 {
		action := ledger.CleanupAction{
			Kind:       ledger.ActionMetadataWrite,
			AssetID:    keeper.ID,
			SourcePath: sidecarPath(keeper.Path),
		}
		// Preserve an existing sidecar in the holding area so undo and
		// rollback can restore it byte for byte.
		if _, err := e.ops.Stat(action.SourcePath); err == nil {
			action.HoldingPath = e.holdingPath(txID, keeper.ID, action.SourcePath)
		}
		actions = append(actions, action)
	}
	for _, rel := range pln.Relocate {
		actions = append(actions, ledger.CleanupAction{
			Kind:        ledger.ActionRelocate,
			AssetID:     rel.AssetID,
			SourcePath:  rel.SourcePath,
			HoldingPath: e.holdingPath(txID, rel.AssetID, rel.SourcePath),
		})
	}
	return actions
}

func (e *Executor) holdingDir(txID string) string {
	return filepath.Join(e.cfg.Paths.HoldingDir, txID)
}

func (e *Executor) holdingPath(txID, assetID, sourcePath string) string {
	return filepath.Join(e.holdingDir(txID), assetID+"__"+filepath.Base(sourcePath))
}

func (e *Executor) applyAction(action *ledger.CleanupAction, tx *ledger.Transaction) error {
	switch action.Kind {
	case ledger.ActionMetadataWrite:
		if action.HoldingPath != "" {
			if err := e.ops.CopyFile(action.SourcePath, action.HoldingPath); err != nil {
				return fmt.Errorf("preserve sidecar: %w", err)
			}
		}
		data, err := mergedSidecar(tx.KeeperPreImage, tx.FieldChanges, tx.ID, e.now())
		if err != nil {
			return fmt.Errorf("render sidecar: %w", err)
		}
		if err := e.ops.WriteFileAtomic(action.SourcePath, data, 0o644); err != nil {
			return fmt.Errorf("write sidecar: %w", err)
		}
		return nil
	case ledger.ActionRelocate:
		if err := e.ops.MoveFile(action.SourcePath, action.HoldingPath); err != nil {
			return fmt.Errorf("relocate %s: %w", action.AssetID, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// reverseAction undoes one action. It is existence-driven and idempotent so
// the same pass works for in-flight rollback, undo, and crash recovery,
// where an action may be anywhere between untouched and fully applied.
func (e *Executor) reverseAction(action *ledger.CleanupAction) error {
	switch action.Kind {
	case ledger.ActionMetadataWrite:
		if action.HoldingPath != "" {
			if _, err := e.ops.Stat(action.HoldingPath); err == nil {
				return e.ops.MoveFile(action.HoldingPath, action.SourcePath)
			}
			return nil
		}
		// No sidecar existed before the merge; drop the one we wrote.
		if err := e.ops.Remove(action.SourcePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case ledger.ActionRelocate:
		if _, err := e.ops.Stat(action.HoldingPath); err != nil {
			return nil
		}
		return e.ops.MoveFile(action.HoldingPath, action.SourcePath)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// rollback compensates a failed merge: applied actions are reversed in
// reverse order and the transaction is marked rolled back.
func (e *Executor) rollback(ctx context.Context, tx *ledger.Transaction) {
	for i := len(tx.Actions) - 1; i >= 0; i-- {
		if err := e.reverseAction(&tx.Actions[i]); err != nil {
			e.logger.Error("rollback step failed",
				logging.String(logging.FieldTxID, tx.ID),
				logging.Int("action", i),
				logging.Error(err),
			)
		}
	}
	e.removeHolding(tx.ID)
	tx.State = ledger.TxRolledBack
	tx.CompletedAt = e.now().UTC()
	if err := e.store.SetTransactionState(ctx, tx.ID, ledger.TxRolledBack, tx.CompletedAt, time.Time{}); err != nil {
		e.logger.Error("record rollback state",
			logging.String(logging.FieldTxID, tx.ID),
			logging.Error(err),
		)
	}
}

// removeHolding clears a transaction's holding directory once its contents
// have been moved back or are no longer needed.
func (e *Executor) removeHolding(txID string) {
	dir := e.holdingDir(txID)
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("remove holding directory",
			logging.String(logging.FieldTxID, txID),
			logging.String("path", dir),
			logging.Error(err),
		)
	}
}
