package merge_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"keeper/internal/config"
	"keeper/internal/errs"
	"keeper/internal/ledger"
	"keeper/internal/logging"
	"keeper/internal/media"
	"keeper/internal/merge"
	"keeper/internal/plan"
	"keeper/internal/testsupport"
)

// faultyOps fails the Nth MoveFile call and delegates everything else.
type faultyOps struct {
	merge.FileOps
	mu     sync.Mutex
	moves  int
	failAt int
}

func (f *faultyOps) MoveFile(src, dst string) error {
	f.mu.Lock()
	f.moves++
	fail := f.failAt > 0 && f.moves == f.failAt
	f.mu.Unlock()
	if fail {
		return errors.New("injected move failure")
	}
	return f.FileOps.MoveFile(src, dst)
}

type fixture struct {
	cfg    *config.Config
	store  *ledger.Store
	assets []media.Asset
}

// newFixture lays out a keeper and two duplicates on disk. The keeper wins
// on file size; b carries the earliest capture date so plans include a
// metadata change.
func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	lib := filepath.Join(testsupport.BaseDir(cfg), "library")
	pathA := filepath.Join(lib, "a.jpg")
	pathB := filepath.Join(lib, "b.jpg")
	pathC := filepath.Join(lib, "c.jpg")
	testsupport.WriteFile(t, pathA, 5000)
	testsupport.WriteFile(t, pathB, 3000)
	testsupport.WriteFile(t, pathC, 1000)

	assets := []media.Asset{
		testsupport.PhotoAsset("a", pathA, testsupport.WithFileSize(5000)),
		testsupport.PhotoAsset("b", pathB, testsupport.WithFileSize(3000),
			testsupport.WithCaptureTime(testsupport.FixtureTime(-24*time.Hour))),
		testsupport.PhotoAsset("c", pathC, testsupport.WithFileSize(1000)),
	}
	return fixture{cfg: cfg, store: store, assets: assets}
}

func (f fixture) plan(t *testing.T) plan.Plan {
	t.Helper()
	pln, err := plan.PlanMerge("group-1", f.assets, "")
	if err != nil {
		t.Fatalf("PlanMerge failed: %v", err)
	}
	return pln
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be gone, stat err = %v", path, err)
	}
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func TestExecuteCommitsAndRelocates(t *testing.T) {
	f := newFixture(t)
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop())
	pln := f.plan(t)

	tx, err := exec.Execute(context.Background(), pln, f.assets)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if tx.State != ledger.TxCommitted {
		t.Fatalf("state = %s, want committed", tx.State)
	}
	if tx.UndoDeadline.IsZero() || !tx.UndoDeadline.After(tx.CompletedAt) {
		t.Fatalf("undo deadline not set: %+v", tx)
	}

	// Non-keepers left the library for the holding area.
	mustNotExist(t, f.assets[1].Path)
	mustNotExist(t, f.assets[2].Path)
	for _, action := range tx.Actions {
		if action.Kind == ledger.ActionRelocate {
			mustExist(t, action.HoldingPath)
		}
		if !action.Applied {
			t.Fatalf("committed transaction has unapplied action: %+v", action)
		}
	}

	// The keeper gained a sidecar carrying b's earlier capture date.
	raw, err := os.ReadFile(f.assets[0].Path + ".keeper.json")
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var doc struct {
		CaptureTime time.Time `json:"capture_time"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	if !doc.CaptureTime.Equal(f.assets[1].CaptureTime) {
		t.Fatalf("sidecar capture time = %v, want %v", doc.CaptureTime, f.assets[1].CaptureTime)
	}

	stored, err := f.store.GetTransaction(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.State != ledger.TxCommitted {
		t.Fatalf("stored state = %s, want committed", stored.State)
	}
}

func TestExecuteFailureRollsBackAppliedActions(t *testing.T) {
	f := newFixture(t)
	// Actions: sidecar write, then two relocations. Fail the second move.
	ops := &faultyOps{FileOps: merge.DefaultFileOps, failAt: 2}
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop(), merge.WithFileOps(ops))
	pln := f.plan(t)

	tx, err := exec.Execute(context.Background(), pln, f.assets)
	if !errors.Is(err, errs.ErrPartialFailure) {
		t.Fatalf("expected ErrPartialFailure, got %v", err)
	}
	if tx == nil || tx.State != ledger.TxRolledBack {
		t.Fatalf("expected rolled back transaction, got %+v", tx)
	}

	// Every file is back where it started and the sidecar is gone.
	mustExist(t, f.assets[0].Path)
	mustExist(t, f.assets[1].Path)
	mustExist(t, f.assets[2].Path)
	mustNotExist(t, f.assets[0].Path+".keeper.json")

	stored, err := f.store.GetTransaction(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.State != ledger.TxRolledBack {
		t.Fatalf("stored state = %s, want rolledback", stored.State)
	}
}

func TestExecutePreflightFailureCreatesNoTransaction(t *testing.T) {
	f := newFixture(t)
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop())
	pln := f.plan(t)

	if err := os.Remove(f.assets[0].Path); err != nil {
		t.Fatalf("remove keeper: %v", err)
	}
	_, err := exec.Execute(context.Background(), pln, f.assets)
	if !errors.Is(err, errs.ErrKeeperInaccessible) {
		t.Fatalf("expected ErrKeeperInaccessible, got %v", err)
	}

	txs, err := f.store.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("preflight failure must not create a transaction, got %+v", txs)
	}
	// The duplicates were never touched.
	mustExist(t, f.assets[1].Path)
	mustExist(t, f.assets[2].Path)
}

func TestUndoRestoresFilesAndMetadata(t *testing.T) {
	f := newFixture(t)
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop())
	pln := f.plan(t)

	tx, err := exec.Execute(context.Background(), pln, f.assets)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	undone, err := exec.Undo(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if undone.State != ledger.TxUndone {
		t.Fatalf("state = %s, want undone", undone.State)
	}

	mustExist(t, f.assets[1].Path)
	mustExist(t, f.assets[2].Path)
	// No sidecar existed before the merge, so undo removes it.
	mustNotExist(t, f.assets[0].Path+".keeper.json")

	// Undone is terminal.
	if _, err := exec.Undo(context.Background(), tx.ID); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation for double undo, got %v", err)
	}
}

func TestUndoRefusedAfterDeadline(t *testing.T) {
	f := newFixture(t)
	current := testsupport.FixtureTime(0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop(), merge.WithClock(clock))

	tx, err := exec.Execute(context.Background(), f.plan(t), f.assets)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	mu.Lock()
	current = current.Add(time.Duration(f.cfg.Merge.UndoRetentionDays+1) * 24 * time.Hour)
	mu.Unlock()

	if _, err := exec.Undo(context.Background(), tx.ID); !errors.Is(err, errs.ErrUndoExpired) {
		t.Fatalf("expected ErrUndoExpired, got %v", err)
	}
}

func TestUndoRefusedWhenSuperseded(t *testing.T) {
	f := newFixture(t)
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop())

	// First merge collapses b and c onto a.
	first, err := exec.Execute(context.Background(), f.plan(t), f.assets)
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	// A later merge touches the same keeper.
	lib := filepath.Join(testsupport.BaseDir(f.cfg), "library")
	pathD := filepath.Join(lib, "d.jpg")
	testsupport.WriteFile(t, pathD, 400)
	d := testsupport.PhotoAsset("d", pathD, testsupport.WithFileSize(400),
		testsupport.WithCaptureTime(testsupport.FixtureTime(-48*time.Hour)))
	later, err := plan.PlanMerge("group-2", []media.Asset{f.assets[0], d}, "")
	if err != nil {
		t.Fatalf("PlanMerge (later) failed: %v", err)
	}
	if _, err := exec.Execute(context.Background(), later, []media.Asset{f.assets[0], d}); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if _, err := exec.Undo(context.Background(), first.ID); !errors.Is(err, errs.ErrUndoSuperseded) {
		t.Fatalf("expected ErrUndoSuperseded, got %v", err)
	}
}

func TestUndoRefusedBeyondDepth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUndoRetention(30, 1))
	store := testsupport.MustOpenLedger(t, cfg)
	exec := merge.NewExecutor(cfg, store, logging.NewNop())

	lib := filepath.Join(testsupport.BaseDir(cfg), "library")
	mkPair := func(group, keeperID, dupID string) (plan.Plan, []media.Asset) {
		keeperPath := filepath.Join(lib, keeperID+".jpg")
		dupPath := filepath.Join(lib, dupID+".jpg")
		testsupport.WriteFile(t, keeperPath, 2000)
		testsupport.WriteFile(t, dupPath, 1000)
		assets := []media.Asset{
			testsupport.PhotoAsset(keeperID, keeperPath, testsupport.WithFileSize(2000)),
			testsupport.PhotoAsset(dupID, dupPath, testsupport.WithFileSize(1000)),
		}
		pln, err := plan.PlanMerge(group, assets, "")
		if err != nil {
			t.Fatalf("PlanMerge %s failed: %v", group, err)
		}
		return pln, assets
	}

	plnOld, assetsOld := mkPair("group-old", "a", "b")
	old, err := exec.Execute(context.Background(), plnOld, assetsOld)
	if err != nil {
		t.Fatalf("Execute (old) failed: %v", err)
	}
	plnNew, assetsNew := mkPair("group-new", "x", "y")
	if _, err := exec.Execute(context.Background(), plnNew, assetsNew); err != nil {
		t.Fatalf("Execute (new) failed: %v", err)
	}

	if _, err := exec.Undo(context.Background(), old.ID); !errors.Is(err, errs.ErrUndoExpired) {
		t.Fatalf("expected ErrUndoExpired beyond the undo depth, got %v", err)
	}
}

func TestRecoverRollsBackPendingTransaction(t *testing.T) {
	f := newFixture(t)
	exec := merge.NewExecutor(f.cfg, f.store, logging.NewNop())
	pln := f.plan(t)

	// Simulate a crash: the pending record is durable and the first
	// relocation already happened, then the process died.
	holding := filepath.Join(f.cfg.Paths.HoldingDir, "tx-crash")
	if err := os.MkdirAll(holding, 0o755); err != nil {
		t.Fatalf("mkdir holding: %v", err)
	}
	heldB := filepath.Join(holding, "b__b.jpg")
	tx := &ledger.Transaction{
		ID:         "tx-crash",
		GroupID:    pln.GroupID,
		KeeperID:   "a",
		KeeperPath: f.assets[0].Path,
		Actions: []ledger.CleanupAction{
			{Kind: ledger.ActionRelocate, AssetID: "b", SourcePath: f.assets[1].Path, HoldingPath: heldB, Applied: true},
			{Kind: ledger.ActionRelocate, AssetID: "c", SourcePath: f.assets[2].Path,
				HoldingPath: filepath.Join(holding, "c__c.jpg")},
		},
		KeeperPreImage: f.assets[0],
		CreatedAt:      time.Now().UTC(),
		State:          ledger.TxPending,
	}
	if err := f.store.AppendTransaction(context.Background(), tx); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	if err := os.Rename(f.assets[1].Path, heldB); err != nil {
		t.Fatalf("stage crash state: %v", err)
	}

	recovered, err := exec.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	// The applied relocation was reversed, the unapplied one untouched.
	mustExist(t, f.assets[1].Path)
	mustExist(t, f.assets[2].Path)

	stored, err := f.store.GetTransaction(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.State != ledger.TxRolledBack {
		t.Fatalf("stored state = %s, want rolledback", stored.State)
	}

	// Recovery is idempotent.
	if again, err := exec.Recover(context.Background()); err != nil || again != 0 {
		t.Fatalf("second Recover = (%d, %v), want (0, nil)", again, err)
	}
}
