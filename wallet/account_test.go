package wallet

import (
	"context"
	"testing"

	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/network"
)

func testAccountKey(t *testing.T, seed byte) *hdkey.Key {
	t.Helper()
	seedBytes := make([]byte, 32)
	for i := range seedBytes {
		seedBytes[i] = seed
	}
	master, err := hdkey.NewMaster(seedBytes, network.Main.Params)
	if err != nil {
		t.Fatalf("hdkey.NewMaster: %v", err)
	}
	acctKey, err := master.DeriveAccount44(0, 0)
	if err != nil {
		t.Fatalf("DeriveAccount44: %v", err)
	}
	return acctKey
}

func TestAccount_SingleKey_ReadyImmediately(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "default", key, 1, 1, true)
	if !acct.ReadyToInitialize() {
		t.Fatalf("a single-key account must be ready to initialize immediately")
	}
}

func TestAccount_Multisig_ReadyOnlyAfterKeySet(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "multisig", key, 2, 3, true)
	if acct.ReadyToInitialize() {
		t.Fatalf("a 2-of-3 account must not be ready with only the owner's key")
	}

	cosignerA := testAccountKey(t, 0x02)
	if err := acct.PushKey(cosignerA); err != nil {
		t.Fatalf("PushKey(A): %v", err)
	}
	if acct.ReadyToInitialize() {
		t.Fatalf("must not be ready with 2 of 3 keys")
	}

	cosignerB := testAccountKey(t, 0x03)
	if err := acct.PushKey(cosignerB); err != nil {
		t.Fatalf("PushKey(B): %v", err)
	}
	if !acct.ReadyToInitialize() {
		t.Fatalf("must be ready once the key set reaches n")
	}
}

func TestAccount_PushKey_RejectsDuplicate(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "multisig", key, 2, 3, true)
	cosigner := testAccountKey(t, 0x02)
	acct.PushKey(cosigner)
	if err := acct.PushKey(cosigner); err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists for a duplicate cosigner, got %v", err)
	}
	if err := acct.PushKey(key); err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists when pushing the account's own key, got %v", err)
	}
}

func TestAccount_PushKey_RejectsBeyondLimit(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "multisig", key, 1, 2, true)
	cosignerA := testAccountKey(t, 0x02)
	cosignerB := testAccountKey(t, 0x03)
	if err := acct.PushKey(cosignerA); err != nil {
		t.Fatalf("PushKey(A): %v", err)
	}
	if err := acct.PushKey(cosignerB); err != ErrKeyLimit {
		t.Fatalf("expected ErrKeyLimit beyond n, got %v", err)
	}
}

func TestAccount_PushKey_RejectsSingleKeyAccount(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "default", key, 1, 1, true)
	if err := acct.PushKey(testAccountKey(t, 0x02)); err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists pushing a cosigner onto a single-key account, got %v", err)
	}
}

func TestAccount_RemoveKey_RefusedOnceInitialized(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "multisig", key, 1, 2, true)
	cosigner := testAccountKey(t, 0x02)
	acct.PushKey(cosigner)
	acct.MarkInitialized()

	if err := acct.RemoveKey(cosigner); err != ErrKeyLimit {
		t.Fatalf("expected ErrKeyLimit removing a key from an initialized account, got %v", err)
	}
}

func TestAccount_RemoveKey_AbsentKey(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "multisig", key, 1, 2, true)
	if err := acct.RemoveKey(testAccountKey(t, 0x09)); err != ErrKeyAbsent {
		t.Fatalf("expected ErrKeyAbsent, got %v", err)
	}
}

func TestAccount_SetDepth_DerivesLookaheadAndUpdatesCache(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "default", key, 1, 1, true)

	paths, lastRing, err := acct.setDepth(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("setDepth: %v", err)
	}
	wantPaths := Lookahead + 1
	if len(paths) != wantPaths {
		t.Fatalf("expected %d derived paths (target+lookahead), got %d", wantPaths, len(paths))
	}
	if _, ok := lastRing[changeReceive]; !ok {
		t.Fatalf("expected a cached receive ring for the new current address")
	}

	acct.applyDepth(1, 0, lastRing)
	if acct.ReceiveDepth() != 1 {
		t.Fatalf("expected receive depth 1, got %d", acct.ReceiveDepth())
	}
	if acct.ReceiveAddress() == nil {
		t.Fatalf("expected a cached receive address after applyDepth")
	}
}

func TestAccount_SetDepth_NoOpWhenTargetNotAhead(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "default", key, 1, 1, true)
	acct.receiveDepth = 5

	paths, _, err := acct.setDepth(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("setDepth: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no derived paths when the target depth is behind current, got %d", len(paths))
	}
}

func TestAccount_ToRecord_FromRecord_RoundTrip(t *testing.T) {
	key := testAccountKey(t, 0x01)
	acct := newAccount(1, 0, "default", key, 1, 1, true)
	acct.MarkInitialized()
	acct.receiveDepth = 2
	acct.changeDepth = 1

	rec, err := acct.toRecord(network.Main.Magic)
	if err != nil {
		t.Fatalf("toRecord: %v", err)
	}
	restored, err := accountFromRecord(1, rec, network.Main.Params)
	if err != nil {
		t.Fatalf("accountFromRecord: %v", err)
	}
	if restored.Name() != acct.Name() || restored.Index() != acct.Index() ||
		restored.ReceiveDepth() != acct.ReceiveDepth() || restored.ChangeDepth() != acct.ChangeDepth() ||
		restored.Initialized() != acct.Initialized() {
		t.Fatalf("round trip mismatch: got %+v", restored)
	}
	if restored.AccountKey().ToExtended() != acct.AccountKey().ToExtended() {
		t.Fatalf("account key did not round trip")
	}
}
