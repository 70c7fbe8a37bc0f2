package wallet

import (
	"testing"
	"time"

	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/network"
)

func TestMasterKey_ClearStateNeverLocked(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	if mk.IsEncrypted() {
		t.Fatalf("a clear master key must not report as encrypted")
	}
	got, err := mk.Key()
	if err != nil {
		t.Fatalf("Key(): %v", err)
	}
	if got != k {
		t.Fatalf("expected Key() to return the original key")
	}
}

func TestMasterKey_EncryptThenDecrypt(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	if err := mk.Encrypt("hunter2"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !mk.IsEncrypted() {
		t.Fatalf("expected IsEncrypted after Encrypt")
	}
	if _, err := mk.Key(); err != ErrMasterLocked {
		t.Fatalf("expected ErrMasterLocked immediately after Encrypt, got %v", err)
	}

	if err := mk.Decrypt("hunter2", network.Main.Params); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if mk.IsEncrypted() {
		t.Fatalf("expected clear state after Decrypt")
	}
	if _, err := mk.Key(); err != nil {
		t.Fatalf("Key() after Decrypt: %v", err)
	}
}

func TestMasterKey_Encrypt_RejectsDoubleEncrypt(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	if err := mk.Encrypt("pw"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := mk.Encrypt("pw2"); err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized on double Encrypt, got %v", err)
	}
}

func TestMasterKey_Unlock_WrongPassphrase(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	mk.Encrypt("correct")

	if _, err := mk.Unlock("wrong", NoTimeout, network.Main.Params); err != ErrBadPassphrase {
		t.Fatalf("expected ErrBadPassphrase, got %v", err)
	}
}

func TestMasterKey_UnlockThenLock(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	mk.Encrypt("correct")

	unlocked, err := mk.Unlock("correct", NoTimeout, network.Main.Params)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if unlocked.ToExtended() != k.ToExtended() {
		t.Fatalf("unlocked key does not match original")
	}
	if _, err := mk.Key(); err != nil {
		t.Fatalf("Key() after Unlock: %v", err)
	}

	mk.Lock()
	if _, err := mk.Key(); err != ErrMasterLocked {
		t.Fatalf("expected ErrMasterLocked after Lock, got %v", err)
	}
}

func TestMasterKey_Unlock_AutoWipesAfterTimeout(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	mk.Encrypt("correct")

	if _, err := mk.Unlock("correct", 20*time.Millisecond, network.Main.Params); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := mk.Key(); err != nil {
		t.Fatalf("expected key to be available immediately after unlock: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := mk.Key(); err != ErrMasterLocked {
		t.Fatalf("expected the key to auto-wipe after its timeout, got %v", err)
	}
}

func TestMasterKey_Encode_RoundTripsThroughHDKey(t *testing.T) {
	k := testMasterKey(t)
	mk := newMasterKeyFromClear(k)
	rec, err := mk.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if rec.Encrypted {
		t.Fatalf("expected a clear-state record")
	}
	restored, err := hdkey.FromRaw(rec.ExtKey, network.Main.Params)
	if err != nil {
		t.Fatalf("hdkey.FromRaw: %v", err)
	}
	if restored.ToExtended() != k.ToExtended() {
		t.Fatalf("encoded master key does not round trip")
	}
}
