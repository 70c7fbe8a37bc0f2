package wallet

import (
	"strings"
	"testing"

	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/network"
)

func TestDeriveKeyring_SingleKeyWitness_ProducesBech32(t *testing.T) {
	accountKey := testAccountKey(t, 0x01)
	ring, err := deriveKeyring(0, accountKey, nil, changeReceive, 0, 0, 1, 1, true)
	if err != nil {
		t.Fatalf("deriveKeyring: %v", err)
	}
	if len(ring.Hash) != 20 {
		t.Fatalf("expected a 20-byte hash160 for P2WPKH, got %d bytes", len(ring.Hash))
	}
	addr, err := ring.Address(network.Main)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if !strings.HasPrefix(addr, "bc1") {
		t.Fatalf("expected a bech32 mainnet address, got %q", addr)
	}
}

func TestDeriveKeyring_SingleKeyLegacy_ProducesBase58(t *testing.T) {
	accountKey := testAccountKey(t, 0x01)
	ring, err := deriveKeyring(0, accountKey, nil, changeReceive, 0, 0, 1, 1, false)
	if err != nil {
		t.Fatalf("deriveKeyring: %v", err)
	}
	addr, err := ring.Address(network.Main)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if !strings.HasPrefix(addr, "1") {
		t.Fatalf("expected a legacy P2PKH address starting with '1', got %q", addr)
	}
}

func TestDeriveKeyring_Multisig_P2WSH_ProgramIsSingleSHA256(t *testing.T) {
	accountKey := testAccountKey(t, 0x01)
	cosigner := testAccountKey(t, 0x02)
	ring, err := deriveKeyring(0, accountKey, []*hdkey.Key{cosigner}, changeReceive, 0, 1, 1, 2, true)
	if err != nil {
		t.Fatalf("deriveKeyring: %v", err)
	}
	if len(ring.ProgramHash) != 32 {
		t.Fatalf("expected a 32-byte P2WSH program hash, got %d", len(ring.ProgramHash))
	}
	if len(ring.PkScript) != 34 || ring.PkScript[0] != 0x00 || ring.PkScript[1] != 0x20 {
		t.Fatalf("expected an OP_0 <32-byte-push> witness scriptPubKey, got %x", ring.PkScript)
	}
}

func TestDeriveKeyring_Multisig_BareScriptHash(t *testing.T) {
	accountKey := testAccountKey(t, 0x01)
	cosigner := testAccountKey(t, 0x02)
	ring, err := deriveKeyring(0, accountKey, []*hdkey.Key{cosigner}, changeReceive, 0, 1, 1, 2, false)
	if err != nil {
		t.Fatalf("deriveKeyring: %v", err)
	}
	if len(ring.Hash) != 20 {
		t.Fatalf("expected a 20-byte hash160 for P2SH, got %d bytes", len(ring.Hash))
	}
	addr, err := ring.Address(network.Main)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if !strings.HasPrefix(addr, "3") {
		t.Fatalf("expected a P2SH mainnet address starting with '3', got %q", addr)
	}
}

func TestDeriveKeyring_DifferentIndices_DifferentAddresses(t *testing.T) {
	accountKey := testAccountKey(t, 0x01)
	ring0, err := deriveKeyring(0, accountKey, nil, changeReceive, 0, 0, 1, 1, true)
	if err != nil {
		t.Fatalf("deriveKeyring(0): %v", err)
	}
	ring1, err := deriveKeyring(0, accountKey, nil, changeReceive, 1, 0, 1, 1, true)
	if err != nil {
		t.Fatalf("deriveKeyring(1): %v", err)
	}
	addr0, _ := ring0.Address(network.Main)
	addr1, _ := ring1.Address(network.Main)
	if addr0 == addr1 {
		t.Fatalf("expected different addresses at different indices")
	}
}
