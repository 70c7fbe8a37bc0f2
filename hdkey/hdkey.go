// Package hdkey implements the "HDKey" collaborator named in the engine's
// external-interfaces contract. It wraps btcutil/hdkeychain's BIP32
// extended-key type rather than re-implementing HMAC-SHA512 child
// derivation by hand: the spec places "cryptographic primitive
// implementations" out of the core's scope and treats HDKey as a named
// service contract (§1, §6).
package hdkey

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/opd-ai/hdwallet/walletcrypto"
)

// HardenedStart is the first hardened child index, per BIP32.
const HardenedStart = hdkeychain.HardenedKeyStart

// BIP44Purpose is the purpose-level constant in m/44'/coin'/account'/change/index.
const BIP44Purpose = 44

// Key wraps a BIP32 extended key (public or private) and the network
// parameters it was derived under.
type Key struct {
	ext    *hdkeychain.ExtendedKey
	params *chaincfg.Params
}

// NewMaster derives the root extended private key from a seed (16-64
// bytes), per BIP32.
func NewMaster(seed []byte, params *chaincfg.Params) (*Key, error) {
	ext, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, err
	}
	return &Key{ext: ext, params: params}, nil
}

// FromExtended parses a base58-encoded extended key string (xprv/xpub and
// network-specific variants).
func FromExtended(s string, params *chaincfg.Params) (*Key, error) {
	ext, err := hdkeychain.NewKeyFromString(s)
	if err != nil {
		return nil, err
	}
	return &Key{ext: ext, params: params}, nil
}

// ToExtended returns the base58-encoded extended key string.
func (k *Key) ToExtended() string {
	return k.ext.String()
}

// ToRaw returns the 82-byte base58check-decoded serialization of the
// extended key (78-byte BIP32 payload + 4-byte checksum), matching §6's
// byte-exact 82-byte HDKey serialization.
func (k *Key) ToRaw() ([]byte, error) {
	// hdkeychain's String() is already base58check; Base58CheckDecode
	// verifies and strips the checksum, which is then recomputed and
	// reattached so the 82-byte layout is payload+checksum exactly as a
	// peer implementation would produce.
	payload, err := walletcrypto.Base58CheckDecode(k.ext.String())
	if err != nil {
		return nil, err
	}
	checksum := walletcrypto.Hash256(payload)[:4]
	raw := make([]byte, 0, len(payload)+4)
	raw = append(raw, payload...)
	raw = append(raw, checksum...)
	if len(raw) != 82 {
		return nil, errors.New("hdkey: unexpected extended key length")
	}
	return raw, nil
}

// FromRaw reconstructs a Key from an 82-byte raw serialization produced by
// ToRaw.
func FromRaw(raw []byte, params *chaincfg.Params) (*Key, error) {
	if len(raw) != 82 {
		return nil, errors.New("hdkey: raw key must be 82 bytes")
	}
	s := walletcrypto.Base58Encode(raw)
	return FromExtended(s, params)
}

// Derive returns the child key at index, optionally hardened.
func (k *Key) Derive(index uint32, hardened bool) (*Key, error) {
	childIndex := index
	if hardened {
		childIndex += HardenedStart
	}
	child, err := k.ext.Derive(childIndex)
	if err != nil {
		return nil, err
	}
	return &Key{ext: child, params: k.params}, nil
}

// DeriveAccount44 derives m/44'/coin'/accountIndex' from a master key,
// where coin' is the hardened coinType argument supplied by the caller.
func (k *Key) DeriveAccount44(coinType, accountIndex uint32) (*Key, error) {
	purpose, err := k.Derive(BIP44Purpose, true)
	if err != nil {
		return nil, err
	}
	coin, err := purpose.Derive(coinType, true)
	if err != nil {
		return nil, err
	}
	return coin.Derive(accountIndex, true)
}

// IsAccount44 reports whether k sits at BIP44 account depth (depth 3:
// m/44'/coin'/account').
func (k *Key) IsAccount44() bool {
	return k.ext.Depth() == 3
}

// HDPublicKey returns the neutered (public-only) form of k.
func (k *Key) HDPublicKey() (*Key, error) {
	neutered := k.ext.Neuter()
	return &Key{ext: neutered, params: k.params}, nil
}

// IsPrivate reports whether k carries private key material.
func (k *Key) IsPrivate() bool {
	return k.ext.IsPrivate()
}

// PublicKey returns the secp256k1 public key.
func (k *Key) PublicKey() (*btcec.PublicKey, error) {
	return k.ext.ECPubKey()
}

// PrivateKey returns the secp256k1 private key; fails if k is a public-only
// key.
func (k *Key) PrivateKey() (*btcec.PrivateKey, error) {
	if !k.ext.IsPrivate() {
		return nil, errors.New("hdkey: key has no private material")
	}
	return k.ext.ECPrivKey()
}

// Equal compares two keys by their serialized public material, used for
// multisig key-set deduplication (§4.2 key-set integrity).
func (k *Key) Equal(other *Key) bool {
	pubA, errA := k.PublicKey()
	pubB, errB := other.PublicKey()
	if errA != nil || errB != nil {
		return false
	}
	return pubA.IsEqual(pubB)
}
