package wallet

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/walletcrypto"
	"github.com/opd-ai/hdwallet/walletdb"
)

// DefaultUnlockTimeout is the default auto-wipe delay after unlock (§4.3).
const DefaultUnlockTimeout = 60 * time.Second

// NoTimeout disables auto-wipe when passed to Unlock.
const NoTimeout = -1 * time.Second

// masterKeyState is the three-state machine named in §3/§4.3.
type masterKeyState int

const (
	stateClear masterKeyState = iota
	stateEncrypted
	stateUnlocked
)

// MasterKey is the custody wrapper around the wallet's root extended
// private key, implementing the clear/encrypted/unlocked state machine of
// §4.3. All operations serialize through locker, grounded on the
// single-mutex-per-secret pattern the teacher uses in
// encryptedfilestore.go's key cache.
type MasterKey struct {
	locker sync.Mutex

	state      masterKeyState
	key        *hdkey.Key // present in clear and unlocked states
	iv         []byte
	ciphertext []byte

	timer *time.Timer

	// onTimerWipe, if set, is invoked when a timer-driven auto-wipe could
	// not return the key to the encrypted state; a successful wipe does not
	// call it. It is called outside locker, mirroring eventBus.Emit's
	// lock-copy-unlock-invoke pattern, so a Wallet can surface the wipe as
	// EventError without MasterKey depending on eventBus itself.
	onTimerWipe func(error)
}

// newMasterKeyFromClear builds a MasterKey already holding decrypted key
// material (the fromKey(k) operation in §4.3's table).
func newMasterKeyFromClear(k *hdkey.Key) *MasterKey {
	return &MasterKey{state: stateClear, key: k}
}

// SetTimerWipeNotifier registers fn to be called when a timer-driven
// auto-wipe fails (§4.3's "timer-driven wipe failure" case named by
// EventError); successful wipes are not reported.
func (mk *MasterKey) SetTimerWipeNotifier(fn func(error)) {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	mk.onTimerWipe = fn
}

// newMasterKeyFromCiphertext builds a MasterKey in the encrypted state, as
// loaded from a WalletRecord.
func newMasterKeyFromCiphertext(iv, ciphertext []byte) *MasterKey {
	return &MasterKey{state: stateEncrypted, iv: iv, ciphertext: ciphertext}
}

// IsEncrypted reports whether the key currently requires a passphrase:
// encrypted and unlocked-with-timer states both count as "protected";
// clear means no passphrase was ever set.
func (mk *MasterKey) IsEncrypted() bool {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	return mk.state != stateClear
}

// Encrypt transitions clear -> encrypted under the given passphrase (§4.3
// encrypt(pw)).
func (mk *MasterKey) Encrypt(passphrase string) error {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	if mk.state != stateClear {
		return ErrAlreadyInitialized
	}
	raw, err := mk.key.ToRaw()
	if err != nil {
		return err
	}
	iv, err := walletcrypto.Random(16)
	if err != nil {
		return err
	}
	ciphertext, err := walletcrypto.Encrypt(raw, []byte(passphrase), iv)
	if err != nil {
		return err
	}
	walletcrypto.Zero(raw)
	mk.stopTimerLocked()
	mk.key = nil
	mk.iv = iv
	mk.ciphertext = ciphertext
	mk.state = stateEncrypted
	return nil
}

// Decrypt transitions encrypted -> clear, permanently removing passphrase
// protection (§4.3 decrypt(pw)).
func (mk *MasterKey) Decrypt(passphrase string, params *chaincfg.Params) error {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	if mk.state == stateClear {
		return nil
	}
	raw, err := walletcrypto.Decrypt(mk.ciphertext, []byte(passphrase), mk.iv)
	if err != nil {
		return ErrBadPassphrase
	}
	k, err := hdkey.FromRaw(raw, params)
	walletcrypto.Zero(raw)
	if err != nil {
		return ErrBadPassphrase
	}
	mk.stopTimerLocked()
	walletcrypto.Zero(mk.ciphertext)
	mk.ciphertext = nil
	mk.iv = nil
	mk.key = k
	mk.state = stateClear
	return nil
}

// Unlock returns the decrypted key, decrypting it first if necessary, and
// schedules an auto-wipe after timeout (§4.3 unlock(pw, timeout)). Passing
// NoTimeout disables the auto-wipe. Re-unlocking an already unlocked key
// does not reset its timer, matching the spec's idempotence note.
func (mk *MasterKey) Unlock(passphrase string, timeout time.Duration, params *chaincfg.Params) (*hdkey.Key, error) {
	mk.locker.Lock()
	defer mk.locker.Unlock()

	if mk.key != nil {
		return mk.key, nil
	}
	raw, err := walletcrypto.Decrypt(mk.ciphertext, []byte(passphrase), mk.iv)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	k, err := hdkey.FromRaw(raw, params)
	walletcrypto.Zero(raw)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	mk.key = k
	mk.state = stateUnlocked
	if timeout >= 0 {
		mk.timer = time.AfterFunc(timeout, mk.destroyFromTimer)
	}
	return mk.key, nil
}

// Lock wipes the decrypted key material and returns to the encrypted
// state (§4.3 lock()/destroy()). A no-op if the key was never encrypted
// (state stays clear, since there is no ciphertext to fall back to).
func (mk *MasterKey) Lock() {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	mk.lockLocked()
}

// lockLocked performs the wipe and reports whether it actually returned the
// key to the encrypted state. It returns false when there is no ciphertext
// to fall back to (never encrypted, or passphrase protection was removed
// after the key was unlocked) — in that case the key material stays
// resident, which destroyFromTimer treats as the failure case EventError
// exists to report.
func (mk *MasterKey) lockLocked() bool {
	mk.stopTimerLocked()
	if mk.ciphertext == nil {
		return false
	}
	mk.key = nil
	mk.state = stateEncrypted
	return true
}

func (mk *MasterKey) destroyFromTimer() {
	mk.locker.Lock()
	wiped := mk.lockLocked()
	notify := mk.onTimerWipe
	mk.locker.Unlock()

	if notify == nil {
		return
	}
	if !wiped {
		notify(ErrTimerWipeStale)
	}
}

func (mk *MasterKey) stopTimerLocked() {
	if mk.timer != nil {
		mk.timer.Stop()
		mk.timer = nil
	}
}

// Key returns the currently decrypted key, or ErrMasterLocked if the key
// is protected and not currently unlocked.
func (mk *MasterKey) Key() (*hdkey.Key, error) {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	if mk.key == nil {
		return nil, ErrMasterLocked
	}
	return mk.key, nil
}

// unlockedMasterHandle wraps a confirmed-unlocked master key with the
// coin-type level needed to rederive any account's full BIP44 path, used
// by sign() (§4.4 sign step 1: "childPriv := master.deriveFull(ring.path)").
type unlockedMasterHandle struct {
	key      *hdkey.Key
	coinType uint32
}

// deriveChild walks master -> 44'/coinType'/accountIndex'/change/index
// and returns the resulting private key.
func (h *unlockedMasterHandle) deriveChild(acct *Account, change uint8, index uint32) (*btcec.PrivateKey, error) {
	accountKey, err := h.key.DeriveAccount44(h.coinType, acct.Index())
	if err != nil {
		return nil, err
	}
	changeKey, err := accountKey.Derive(uint32(change), false)
	if err != nil {
		return nil, err
	}
	indexKey, err := changeKey.Derive(index, false)
	if err != nil {
		return nil, err
	}
	return indexKey.PrivateKey()
}

// Encode produces the byte-exact MasterKeyRecord for persistence (§4.3).
func (mk *MasterKey) Encode() (*walletdb.MasterKeyRecord, error) {
	mk.locker.Lock()
	defer mk.locker.Unlock()
	if mk.state == stateClear {
		raw, err := mk.key.ToRaw()
		if err != nil {
			return nil, err
		}
		return &walletdb.MasterKeyRecord{Encrypted: false, ExtKey: raw}, nil
	}
	return &walletdb.MasterKeyRecord{
		Encrypted:  true,
		IV:         mk.iv,
		Ciphertext: mk.ciphertext,
		Algo:       0,
		Iterations: walletcrypto.PBKDF2Iterations,
		R:          0,
		P:          0,
	}, nil
}
