// Package walletcrypto implements the "Crypto" collaborator named in the
// engine's external-interfaces contract: HASH160/HASH256, the
// passphrase-based AES-CTR encryption used by MasterKey's persistence
// format, secure randomness, and base58/base58check encoding.
//
// None of this is a novel cryptographic design — it wires the real
// primitives (golang.org/x/crypto, crypto/aes, btcutil's base58) behind
// the names the spec uses, rather than re-implementing them.
package walletcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/ripemd160"
)

// PBKDF2Iterations is the iteration count recorded in the MasterKey
// persistence format (§4.3: algo=0, iterations=50000).
const PBKDF2Iterations = 50000

// Hash160 computes RIPEMD160(SHA256(data)), the digest used for P2PKH/P2WPKH
// address payloads and wallet-ID derivation.
func Hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// Hash256 computes SHA256(SHA256(data)), Bitcoin's double-SHA256.
func Hash256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Random returns n cryptographically random bytes.
func Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// deriveKey stretches a passphrase into a 32-byte AES-256 key using
// PBKDF2-HMAC-SHA256, matching the iteration count in the persisted
// MasterKey record.
func deriveKey(passphrase []byte, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, PBKDF2Iterations, 32, sha256.New)
}

// Encrypt performs AES-256-CTR encryption of plaintext under a key derived
// from passphrase and iv. iv doubles as both the CTR nonce and the PBKDF2
// salt, matching the single `iv` field in the MasterKey persistence format.
func Encrypt(plaintext, passphrase, iv []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, errors.New("walletcrypto: iv must be 16 bytes")
	}
	key := deriveKey(passphrase, iv)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)
	return ciphertext, nil
}

// Decrypt is the inverse of Encrypt; AES-CTR is symmetric so encryption and
// decryption share the same keystream generation.
func Decrypt(ciphertext, passphrase, iv []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, errors.New("walletcrypto: iv must be 16 bytes")
	}
	key := deriveKey(passphrase, iv)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv)
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// Base58Encode encodes raw bytes using Bitcoin's base58 alphabet (no
// checksum).
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// Base58Decode decodes a base58 string with no checksum validation.
func Base58Decode(s string) ([]byte, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 && s != "" {
		return nil, errors.New("walletcrypto: invalid base58 string")
	}
	return decoded, nil
}

// Base58CheckEncode appends a 4-byte double-SHA256 checksum to payload and
// base58-encodes the result. Used for the wallet-ID encoding in §4.1.
func Base58CheckEncode(payload []byte) string {
	checksum := Hash256(payload)[:4]
	full := make([]byte, 0, len(payload)+4)
	full = append(full, payload...)
	full = append(full, checksum...)
	return base58.Encode(full)
}

// Base58CheckDecode reverses Base58CheckEncode, validating the checksum.
func Base58CheckDecode(s string) ([]byte, error) {
	decoded := base58.Decode(s)
	if len(decoded) < 4 {
		return nil, errors.New("walletcrypto: base58check string too short")
	}
	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]
	expected := Hash256(payload)[:4]
	for i := range checksum {
		if checksum[i] != expected[i] {
			return nil, errors.New("walletcrypto: base58check checksum mismatch")
		}
	}
	return payload, nil
}

// Zero overwrites b with zero bytes in place; used to wipe transient
// private-key material before it is released back to the GC.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
