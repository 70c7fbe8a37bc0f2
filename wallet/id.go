package wallet

import (
	"encoding/binary"

	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/network"
	"github.com/opd-ai/hdwallet/walletcrypto"
)

// idVersionPrefix is the 3-byte prefix prepended before base58check
// encoding a wallet ID (§4.1 getID step 3).
var idVersionPrefix = [3]byte{0x03, 0xbe, 0x04}

// getID derives the wallet's human-readable identifier (§4.1, byte-exact
// for compatibility):
//
//  1. pub := publicKey(master.derive(44)) (non-hardened child 44 of root)
//  2. hash := RIPEMD160(SHA256(pub || u32LE(network.magic)))
//  3. payload := 0x03 || 0xbe || 0x04 || hash
//  4. checksum := SHA256(SHA256(payload))[0..4]; base58-encode payload||checksum
func getID(master *hdkey.Key, net *network.Network) (string, error) {
	child, err := master.Derive(44, false)
	if err != nil {
		return "", err
	}
	pub, err := child.PublicKey()
	if err != nil {
		return "", err
	}

	var magicLE [4]byte
	binary.LittleEndian.PutUint32(magicLE[:], net.Magic)
	preimage := append(pub.SerializeCompressed(), magicLE[:]...)
	hash := walletcrypto.Hash160(preimage)

	payload := make([]byte, 0, 3+len(hash))
	payload = append(payload, idVersionPrefix[:]...)
	payload = append(payload, hash...)

	return walletcrypto.Base58CheckEncode(payload), nil
}

// getToken derives the wallet's API authentication secret (§3, §4.1):
// SHA256(SHA256(privkey(master.derive(44, hardened=true)) || u32LE(nonce))).
func getToken(master *hdkey.Key, nonce uint32) ([32]byte, error) {
	var token [32]byte
	child, err := master.Derive(44, true)
	if err != nil {
		return token, err
	}
	priv, err := child.PrivateKey()
	if err != nil {
		return token, err
	}
	privBytes := priv.Serialize()
	defer walletcrypto.Zero(privBytes)

	var nonceLE [4]byte
	binary.LittleEndian.PutUint32(nonceLE[:], nonce)
	preimage := append(append([]byte{}, privBytes...), nonceLE[:]...)
	sum := walletcrypto.Hash256(preimage)
	copy(token[:], sum)
	return token, nil
}

// coinTypeForNetwork returns the BIP44 coin-type level for net: 0' for
// mainnet, 1' for every test network (testnet3/regtest/simnet), matching
// the registered SLIP-44 convention.
func coinTypeForNetwork(net *network.Network) uint32 {
	if net.Type == "main" {
		return 0
	}
	return 1
}
