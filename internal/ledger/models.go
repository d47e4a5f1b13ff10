package ledger

import (
	"time"

	"keeper/internal/media"
	"keeper/internal/plan"
)

// TxState is a merge transaction's lifecycle state. Pending transactions
// found at startup are evidence of a crash and are always rolled back.
type TxState string

const (
	TxPending    TxState = "pending"
	TxCommitted  TxState = "committed"
	TxRolledBack TxState = "rolledback"
	TxUndone     TxState = "undone"
)

// ActionKind identifies what a CleanupAction does to the filesystem.
type ActionKind string

const (
	// ActionMetadataWrite rewrites the keeper's metadata sidecar with the
	// merged field values.
	ActionMetadataWrite ActionKind = "metadata_write"
	// ActionRelocate moves a non-keeper file into the holding area.
	ActionRelocate ActionKind = "relocate"
)

// CleanupAction is one step of a merge. SourcePath is the original location;
// HoldingPath is where a relocated file lives afterwards. Applied flips to
// true, durably, the moment the step completes, so recovery knows exactly
// which steps need reversing.
type CleanupAction struct {
	Kind        ActionKind `json:"kind"`
	AssetID     string     `json:"asset_id"`
	SourcePath  string     `json:"source_path"`
	HoldingPath string     `json:"holding_path,omitempty"`
	Applied     bool       `json:"applied"`
}

// Transaction is one merge's durable record. The row is written with state
// pending before any action runs; Actions and State are the only parts that
// change afterwards.
type Transaction struct {
	ID           string             `json:"id"`
	GroupID      string             `json:"group_id"`
	KeeperID     string             `json:"keeper_id"`
	KeeperPath   string             `json:"keeper_path"`
	Actions      []CleanupAction    `json:"actions"`
	FieldChanges []plan.FieldChange `json:"field_changes"`

	// KeeperPreImage snapshots the keeper's metadata before the merge;
	// undo restores the sidecar from it.
	KeeperPreImage media.Asset `json:"keeper_pre_image"`

	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	UndoDeadline time.Time `json:"undo_deadline,omitempty"`
	State        TxState   `json:"state"`
}

// TouchedAssets lists every asset ID the transaction mutates, keeper
// included. Used for advisory locking and superseded checks.
func (t *Transaction) TouchedAssets() []string {
	seen := map[string]bool{t.KeeperID: true}
	ids := []string{t.KeeperID}
	for _, action := range t.Actions {
		if seen[action.AssetID] {
			continue
		}
		seen[action.AssetID] = true
		ids = append(ids, action.AssetID)
	}
	return ids
}
