package walletdb

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func newTestWallet(wid uint32) *WalletRecord {
	return &WalletRecord{
		NetworkMagic: 0xd9b4bef9,
		WID:          wid,
		ID:           "test-wallet",
		Master:       []byte{0x01},
	}
}

func TestMemDB_RegisterAndGetWallet(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	rec := newTestWallet(1)
	if err := db.Register(ctx, 1, rec); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := db.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got ID %q want %q", got.ID, rec.ID)
	}
}

func TestMemDB_Register_RejectsDuplicateWID(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	if err := db.Register(ctx, 1, newTestWallet(1)); err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestMemDB_SaveWallet_RequiresOpenBatch(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	if err := db.SaveWallet(ctx, newTestWallet(1)); err != ErrNoBatch {
		t.Fatalf("expected ErrNoBatch outside a batch, got %v", err)
	}
}

func TestMemDB_Drop_RestoresPreStartState(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	rec := newTestWallet(1)
	db.Register(ctx, 1, rec)

	if err := db.Start(ctx, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mutated := newTestWallet(1)
	mutated.Initialized = true
	mutated.ID = "mutated"
	if err := db.SaveWallet(ctx, mutated); err != nil {
		t.Fatalf("SaveWallet: %v", err)
	}
	if err := db.Drop(ctx, 1); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	got, err := db.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if got.ID != rec.ID || got.Initialized {
		t.Fatalf("Drop did not restore pre-Start state: got %+v", got)
	}
}

func TestMemDB_Commit_PersistsMutation(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))

	db.Start(ctx, 1)
	mutated := newTestWallet(1)
	mutated.Initialized = true
	db.SaveWallet(ctx, mutated)
	if err := db.Commit(ctx, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := db.GetWallet(ctx, 1)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if !got.Initialized {
		t.Fatalf("expected committed mutation to persist")
	}
}

func TestMemDB_Commit_WithoutBatch_Errors(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	if err := db.Commit(ctx, 1); err != ErrNoBatch {
		t.Fatalf("expected ErrNoBatch, got %v", err)
	}
}

func TestMemDB_SaveAccount_IndexedByNameAndNumber(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	db.Start(ctx, 1)
	acct := &AccountRecord{Name: "default", AccountIndex: 0}
	if err := db.SaveAccount(ctx, 1, acct); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	db.Commit(ctx, 1)

	byIndex, err := db.GetAccountByIndex(ctx, 1, 0)
	if err != nil {
		t.Fatalf("GetAccountByIndex: %v", err)
	}
	byName, err := db.GetAccountByName(ctx, 1, "default")
	if err != nil {
		t.Fatalf("GetAccountByName: %v", err)
	}
	if byIndex.Name != byName.Name {
		t.Fatalf("index and name lookups disagree: %q vs %q", byIndex.Name, byName.Name)
	}
}

func TestMemDB_SaveAddresses_HasAddress(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	db.Start(ctx, 1)
	hash := []byte{1, 2, 3, 4}
	db.SaveAddresses(ctx, 1, []PathRecord{{WID: 1, Account: 0, Change: 0, Index: 0, Hash: hash}})
	db.Commit(ctx, 1)

	has, err := db.HasAddress(ctx, 1, hash)
	if err != nil {
		t.Fatalf("HasAddress: %v", err)
	}
	if !has {
		t.Fatalf("expected HasAddress to report true after SaveAddresses")
	}

	missing, err := db.HasAddress(ctx, 1, []byte{9, 9, 9})
	if err != nil {
		t.Fatalf("HasAddress: %v", err)
	}
	if missing {
		t.Fatalf("expected HasAddress to report false for an unknown hash")
	}
}

func TestMemDB_GetCoins_FiltersUnconfirmed(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	db.SetCoins(1, 0, []Coin{
		{Outpoint: wire.OutPoint{Index: 0}, Value: 1000, Height: 100},
		{Outpoint: wire.OutPoint{Index: 1}, Value: 2000, Height: -1},
	})

	all, err := db.GetCoins(ctx, 1, 0, false)
	if err != nil {
		t.Fatalf("GetCoins: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(all))
	}

	confirmed, err := db.GetCoins(ctx, 1, 0, true)
	if err != nil {
		t.Fatalf("GetCoins(confirmedOnly): %v", err)
	}
	if len(confirmed) != 1 {
		t.Fatalf("expected 1 confirmed coin, got %d", len(confirmed))
	}
}

func TestMemDB_AddTX_RemovesSpentCoins(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	outpoint := wire.OutPoint{Index: 0}
	db.SetCoins(1, 0, []Coin{{Outpoint: outpoint, Value: 1000, Height: 100}})

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint})
	if err := db.AddTX(ctx, 1, tx); err != nil {
		t.Fatalf("AddTX: %v", err)
	}

	coins, err := db.GetCoins(ctx, 1, 0, false)
	if err != nil {
		t.Fatalf("GetCoins: %v", err)
	}
	if len(coins) != 0 {
		t.Fatalf("expected spent coin to be removed, got %d remaining", len(coins))
	}
}

func TestMemDB_Unregister_RemovesEverything(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	db.Register(ctx, 1, newTestWallet(1))
	if err := db.Unregister(ctx, 1); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := db.GetWallet(ctx, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after Unregister, got %v", err)
	}
}

var _ DB = (*MemDB)(nil)
