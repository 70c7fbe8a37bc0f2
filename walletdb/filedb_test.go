package walletdb

import (
	"context"
	"testing"
)

func TestFileDB_RegisterPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB: %v", err)
	}
	rec := newTestWallet(1)
	rec.ID = "persisted-id"
	if err := db.Register(ctx, 1, rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reopened, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB (reopen): %v", err)
	}
	got, err := reopened.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet after reopen: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got ID %q want %q", got.ID, rec.ID)
	}
}

func TestFileDB_CommitPersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB: %v", err)
	}
	db.Register(ctx, 1, newTestWallet(1))
	db.Start(ctx, 1)
	mutated := newTestWallet(1)
	mutated.Initialized = true
	db.SaveWallet(ctx, mutated)
	if err := db.Commit(ctx, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reopened, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB (reopen): %v", err)
	}
	got, err := reopened.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet after reopen: %v", err)
	}
	if !got.Initialized {
		t.Fatalf("expected committed mutation to survive reopen")
	}
}

func TestFileDB_DropDoesNotTouchDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB: %v", err)
	}
	db.Register(ctx, 1, newTestWallet(1))
	db.Start(ctx, 1)
	mutated := newTestWallet(1)
	mutated.Initialized = true
	db.SaveWallet(ctx, mutated)
	if err := db.Drop(ctx, 1); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	got, err := db.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if got.Initialized {
		t.Fatalf("expected Drop to discard the uncommitted mutation")
	}

	reopened, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB (reopen): %v", err)
	}
	gotAfterReopen, err := reopened.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet after reopen: %v", err)
	}
	if gotAfterReopen.Initialized {
		t.Fatalf("dropped mutation must not have reached disk")
	}
}

func TestFileDB_ReusesExistingKeyFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db1, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB: %v", err)
	}
	db1.Register(ctx, 1, newTestWallet(1))

	db2, err := NewFileDB(dir)
	if err != nil {
		t.Fatalf("NewFileDB (second open): %v", err)
	}
	// a mismatched key would fail to decrypt the wallet written by db1
	// during db2's loadAll, which NewFileDB would have already surfaced
	// as an error above; reaching here confirms the key file was reused.
	if _, err := db2.GetWallet(ctx, 1); err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
}

var _ DB = (*FileDB)(nil)
