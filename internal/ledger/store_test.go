package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"keeper/internal/detect"
	"keeper/internal/errs"
	"keeper/internal/ledger"
	"keeper/internal/plan"
	"keeper/internal/signature"
	"keeper/internal/testsupport"
)

func TestImageSignatureRoundTripAndInvalidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	asset := testsupport.PhotoAsset("a", "/p/a.jpg")
	sig := signature.Signature{
		AssetID:    "a",
		Algorithm:  signature.AlgorithmPHash,
		Bits:       signature.BitWidth,
		Hash:       0xDEADBEEFCAFEF00D,
		ComputedAt: time.Now().UTC(),
	}
	if err := store.SaveImageSignature(ctx, asset, sig); err != nil {
		t.Fatalf("SaveImageSignature failed: %v", err)
	}

	loaded, ok, err := store.LoadImageSignature(ctx, asset)
	if err != nil || !ok {
		t.Fatalf("LoadImageSignature = (%v, %v), want hit", ok, err)
	}
	if loaded.Hash != sig.Hash || loaded.Algorithm != sig.Algorithm || loaded.Bits != sig.Bits {
		t.Fatalf("loaded signature differs: %+v", loaded)
	}

	// A changed file no longer matches its stored fingerprint.
	touched := asset
	touched.ModTime = asset.ModTime.Add(time.Minute)
	if _, ok, err := store.LoadImageSignature(ctx, touched); err != nil || ok {
		t.Fatalf("expected miss for modified file, got (%v, %v)", ok, err)
	}
}

func TestVideoSignatureRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	asset := testsupport.VideoAsset("v", "/v/v.mp4")
	sig := signature.VideoSignature{
		AssetID:  "v",
		Duration: asset.Duration,
		Width:    asset.Width,
		Height:   asset.Height,
		Frames: []signature.FrameSignature{
			{Offset: 15 * time.Second, Signature: signature.Signature{Hash: 1, Bits: 64}},
			{Offset: 45 * time.Second, Signature: signature.Signature{Hash: 2, Bits: 64}},
		},
	}
	if err := store.SaveVideoSignature(ctx, asset, sig); err != nil {
		t.Fatalf("SaveVideoSignature failed: %v", err)
	}
	loaded, ok, err := store.LoadVideoSignature(ctx, asset)
	if err != nil || !ok {
		t.Fatalf("LoadVideoSignature = (%v, %v), want hit", ok, err)
	}
	if len(loaded.Frames) != 2 || loaded.Frames[1].Signature.Hash != 2 {
		t.Fatalf("loaded video signature differs: %+v", loaded)
	}
	if loaded.Duration != asset.Duration {
		t.Fatalf("duration = %v, want %v", loaded.Duration, asset.Duration)
	}
}

func TestGroupLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	group := detect.Group{
		ID:         detect.GroupID([]string{"a", "b"}),
		Members:    []string{"a", "b"},
		Confidence: 0.95,
		Rationale: []detect.Signal{{
			Name: detect.SignalPerceptual, Value: 2, Threshold: 10,
			Contribution: 0.45, Verdict: detect.VerdictPass,
		}},
		SuggestedKeeper: "a",
		Status:          detect.StatusOpen,
	}
	if err := store.SaveGroups(ctx, []detect.Group{group}); err != nil {
		t.Fatalf("SaveGroups failed: %v", err)
	}

	// Re-running detection with the same membership upserts, not duplicates.
	group.Confidence = 0.97
	if err := store.SaveGroups(ctx, []detect.Group{group}); err != nil {
		t.Fatalf("SaveGroups (upsert) failed: %v", err)
	}

	open, err := store.LoadGroups(ctx, detect.StatusOpen)
	if err != nil {
		t.Fatalf("LoadGroups failed: %v", err)
	}
	if len(open) != 1 || open[0].Confidence != 0.97 {
		t.Fatalf("expected one upserted group, got %+v", open)
	}

	if err := store.UpdateGroupStatus(ctx, group.ID, detect.StatusResolved); err != nil {
		t.Fatalf("UpdateGroupStatus failed: %v", err)
	}
	fetched, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if fetched.Status != detect.StatusResolved {
		t.Fatalf("status = %s, want resolved", fetched.Status)
	}

	if _, err := store.GetGroup(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func newTestTransaction(id string, created time.Time) *ledger.Transaction {
	return &ledger.Transaction{
		ID:         id,
		GroupID:    "group-1",
		KeeperID:   "a",
		KeeperPath: "/p/a.jpg",
		Actions: []ledger.CleanupAction{
			{Kind: ledger.ActionMetadataWrite, AssetID: "a", SourcePath: "/p/a.jpg.keeper.json"},
			{Kind: ledger.ActionRelocate, AssetID: "b", SourcePath: "/p/b.jpg", HoldingPath: "/h/tx/b__b.jpg"},
		},
		FieldChanges:   []plan.FieldChange{{Field: plan.FieldCaptureTime, SourceAssetID: "b"}},
		KeeperPreImage: testsupport.PhotoAsset("a", "/p/a.jpg"),
		CreatedAt:      created,
		State:          ledger.TxPending,
	}
}

func TestTransactionLogRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	tx := newTestTransaction("tx-1", time.Now().UTC())
	if err := store.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	pending, err := store.PendingTransactions(ctx)
	if err != nil {
		t.Fatalf("PendingTransactions failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "tx-1" {
		t.Fatalf("expected tx-1 pending, got %+v", pending)
	}
	if len(pending[0].Actions) != 2 || pending[0].Actions[1].HoldingPath == "" {
		t.Fatalf("actions not persisted intact: %+v", pending[0].Actions)
	}
	if pending[0].KeeperPreImage.ID != "a" {
		t.Fatalf("pre-image not persisted: %+v", pending[0].KeeperPreImage)
	}

	tx.Actions[0].Applied = true
	if err := store.UpdateTransactionActions(ctx, tx.ID, tx.Actions); err != nil {
		t.Fatalf("UpdateTransactionActions failed: %v", err)
	}
	fetched, err := store.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if !fetched.Actions[0].Applied || fetched.Actions[1].Applied {
		t.Fatalf("applied flags not persisted: %+v", fetched.Actions)
	}

	completed := time.Now().UTC()
	deadline := completed.Add(30 * 24 * time.Hour)
	if err := store.SetTransactionState(ctx, tx.ID, ledger.TxCommitted, completed, deadline); err != nil {
		t.Fatalf("SetTransactionState failed: %v", err)
	}
	fetched, err = store.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction (committed) failed: %v", err)
	}
	if fetched.State != ledger.TxCommitted || !fetched.UndoDeadline.Equal(deadline) {
		t.Fatalf("commit state not persisted: %+v", fetched)
	}

	if remaining, err := store.PendingTransactions(ctx); err != nil || len(remaining) != 0 {
		t.Fatalf("expected no pending transactions, got %+v (%v)", remaining, err)
	}
}

func TestLaterTransactionTouching(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	base := time.Now().UTC()
	first := newTestTransaction("tx-1", base)
	if err := store.AppendTransaction(ctx, first); err != nil {
		t.Fatalf("append tx-1: %v", err)
	}

	second := newTestTransaction("tx-2", base.Add(time.Minute))
	second.Actions[1].AssetID = "b"
	if err := store.AppendTransaction(ctx, second); err != nil {
		t.Fatalf("append tx-2: %v", err)
	}

	superseded, err := store.LaterTransactionTouching(ctx, first.TouchedAssets(), first.CreatedAt, first.ID)
	if err != nil {
		t.Fatalf("LaterTransactionTouching failed: %v", err)
	}
	if !superseded {
		t.Fatal("expected overlap with tx-2 to supersede tx-1")
	}

	// A rolled-back later transaction does not supersede.
	if err := store.SetTransactionState(ctx, "tx-2", ledger.TxRolledBack, base.Add(2*time.Minute), time.Time{}); err != nil {
		t.Fatalf("roll back tx-2: %v", err)
	}
	superseded, err = store.LaterTransactionTouching(ctx, first.TouchedAssets(), first.CreatedAt, first.ID)
	if err != nil {
		t.Fatalf("LaterTransactionTouching (after rollback) failed: %v", err)
	}
	if superseded {
		t.Fatal("rolled-back transaction must not supersede")
	}
}
