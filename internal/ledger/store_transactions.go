package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keeper/internal/errs"
)

// AppendTransaction durably records a new pending transaction and its
// intended actions. The insert commits synchronously; once this returns, a
// crash at any later point leaves a recoverable record.
func (s *Store) AppendTransaction(ctx context.Context, tx *Transaction) error {
	if tx == nil {
		return errors.New("transaction is nil")
	}
	actions, err := json.Marshal(tx.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	fields, err := json.Marshal(tx.FieldChanges)
	if err != nil {
		return fmt.Errorf("marshal field changes: %w", err)
	}
	preImage, err := json.Marshal(tx.KeeperPreImage)
	if err != nil {
		return fmt.Errorf("marshal pre-image: %w", err)
	}

	ctx = ensureContext(ctx)
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	_, err = dbtx.ExecContext(ctx,
		`INSERT INTO transactions (
            id, group_id, keeper_id, keeper_path, actions_json,
            field_changes_json, pre_image_json, created_at, completed_at,
            undo_deadline, state
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.GroupID,
		tx.KeeperID,
		tx.KeeperPath,
		string(actions),
		string(fields),
		string(preImage),
		formatTime(tx.CreatedAt),
		nullableTime(tx.CompletedAt),
		nullableTime(tx.UndoDeadline),
		string(tx.State),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	for _, assetID := range tx.TouchedAssets() {
		if _, err := dbtx.ExecContext(ctx,
			"INSERT INTO transaction_assets (tx_id, asset_id) VALUES (?, ?)",
			tx.ID, assetID); err != nil {
			return fmt.Errorf("insert touched asset: %w", err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit transaction append: %w", err)
	}
	return nil
}

// UpdateTransactionActions persists the Applied flags after each completed
// action so recovery can tell applied steps from intended ones.
func (s *Store) UpdateTransactionActions(ctx context.Context, id string, actions []CleanupAction) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	if err := s.execWithRetry(ctx,
		"UPDATE transactions SET actions_json = ? WHERE id = ?",
		string(raw), id); err != nil {
		return fmt.Errorf("update transaction actions: %w", err)
	}
	return nil
}

// SetTransactionState transitions a transaction. completedAt and
// undoDeadline may be zero for states that do not carry them.
func (s *Store) SetTransactionState(ctx context.Context, id string, state TxState, completedAt, undoDeadline time.Time) error {
	if err := s.execWithRetry(ctx,
		"UPDATE transactions SET state = ?, completed_at = ?, undo_deadline = ? WHERE id = ?",
		string(state), nullableTime(completedAt), nullableTime(undoDeadline), id); err != nil {
		return fmt.Errorf("set transaction state: %w", err)
	}
	return nil
}

const txColumns = `id, group_id, keeper_id, keeper_path, actions_json,
    field_changes_json, pre_image_json, created_at, completed_at,
    undo_deadline, state`

// GetTransaction fetches one transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.ErrNotFound, "ledger", "get transaction",
			fmt.Sprintf("transaction %s not found", id), nil)
	}
	return tx, err
}

// PendingTransactions returns transactions still pending, oldest first.
// Any such record at startup is a crash artifact awaiting rollback.
func (s *Store) PendingTransactions(ctx context.Context) ([]*Transaction, error) {
	return s.queryTransactions(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE state = ? ORDER BY created_at",
		string(TxPending))
}

// ListTransactions returns every transaction, newest first.
func (s *Store) ListTransactions(ctx context.Context) ([]*Transaction, error) {
	return s.queryTransactions(ctx,
		"SELECT "+txColumns+" FROM transactions ORDER BY created_at DESC, id DESC")
}

// CommittedTransactions returns committed transactions, newest first. The
// undo depth limit is enforced against this ordering.
func (s *Store) CommittedTransactions(ctx context.Context) ([]*Transaction, error) {
	return s.queryTransactions(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE state = ? ORDER BY created_at DESC, id DESC",
		string(TxCommitted))
}

// LaterTransactionTouching reports whether any transaction created after the
// given time touched one of the asset IDs and was not rolled back. Used to
// refuse superseded undos.
func (s *Store) LaterTransactionTouching(ctx context.Context, assetIDs []string, after time.Time, excludeTxID string) (bool, error) {
	if len(assetIDs) == 0 {
		return false, nil
	}
	placeholders := ""
	args := make([]any, 0, len(assetIDs)+3)
	for i, id := range assetIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, formatTime(after), excludeTxID, string(TxRolledBack))

	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM transactions t
         JOIN transaction_assets ta ON ta.tx_id = t.id
         WHERE ta.asset_id IN (`+placeholders+`)
           AND t.created_at > ? AND t.id != ? AND t.state != ?`,
		args...,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query later transactions: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		tx           Transaction
		actions      string
		fields       string
		preImage     string
		createdAt    string
		completedAt  sql.NullString
		undoDeadline sql.NullString
		state        string
	)
	err := row.Scan(&tx.ID, &tx.GroupID, &tx.KeeperID, &tx.KeeperPath,
		&actions, &fields, &preImage, &createdAt, &completedAt, &undoDeadline, &state)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &tx.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &tx.FieldChanges); err != nil {
			return nil, fmt.Errorf("unmarshal field changes: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(preImage), &tx.KeeperPreImage); err != nil {
		return nil, fmt.Errorf("unmarshal pre-image: %w", err)
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if tx.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if tx.UndoDeadline, err = parseTime(undoDeadline); err != nil {
		return nil, fmt.Errorf("parse undo_deadline: %w", err)
	}
	tx.State = TxState(state)
	return &tx, nil
}
