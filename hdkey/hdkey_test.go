package hdkey

import (
	"github.com/btcsuite/btcd/chaincfg"
	"testing"
)

func testSeed() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewMaster_ProducesPrivateKey(t *testing.T) {
	k, err := NewMaster(testSeed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	if !k.IsPrivate() {
		t.Fatalf("expected master key to carry private material")
	}
}

func TestToRaw_FromRaw_RoundTrip(t *testing.T) {
	k, err := NewMaster(testSeed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	raw, err := k.ToRaw()
	if err != nil {
		t.Fatalf("ToRaw: %v", err)
	}
	if len(raw) != 82 {
		t.Fatalf("expected 82-byte raw key, got %d", len(raw))
	}

	restored, err := FromRaw(raw, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	if restored.ToExtended() != k.ToExtended() {
		t.Fatalf("round trip mismatch: got %s want %s", restored.ToExtended(), k.ToExtended())
	}
}

func TestDerive_HardenedVsNormalDiffer(t *testing.T) {
	k, err := NewMaster(testSeed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	normal, err := k.Derive(0, false)
	if err != nil {
		t.Fatalf("Derive(normal): %v", err)
	}
	hardened, err := k.Derive(0, true)
	if err != nil {
		t.Fatalf("Derive(hardened): %v", err)
	}
	if normal.ToExtended() == hardened.ToExtended() {
		t.Fatalf("normal and hardened children at the same index must differ")
	}
}

func TestDeriveAccount44_SitsAtDepthThree(t *testing.T) {
	k, err := NewMaster(testSeed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	account, err := k.DeriveAccount44(0, 0)
	if err != nil {
		t.Fatalf("DeriveAccount44: %v", err)
	}
	if !account.IsAccount44() {
		t.Fatalf("expected derived key to sit at BIP44 account depth")
	}
}

func TestHDPublicKey_StripsPrivateMaterial(t *testing.T) {
	k, err := NewMaster(testSeed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	pub, err := k.HDPublicKey()
	if err != nil {
		t.Fatalf("HDPublicKey: %v", err)
	}
	if pub.IsPrivate() {
		t.Fatalf("expected neutered key to have no private material")
	}
	if _, err := pub.PrivateKey(); err == nil {
		t.Fatalf("expected an error deriving a private key from a public-only key")
	}
}

func TestEqual_SameAndDifferentKeys(t *testing.T) {
	k, err := NewMaster(testSeed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	other, err := NewMaster([]byte("ffffffffffffffffffffffffffffffff"), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster(other): %v", err)
	}
	if !k.Equal(k) {
		t.Fatalf("a key must equal itself")
	}
	if k.Equal(other) {
		t.Fatalf("keys derived from different seeds must not be equal")
	}
}

func TestFromRaw_RejectsWrongLength(t *testing.T) {
	if _, err := FromRaw([]byte{1, 2, 3}, &chaincfg.MainNetParams); err == nil {
		t.Fatalf("expected an error for a non-82-byte raw key")
	}
}
