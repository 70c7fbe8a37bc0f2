package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/walletdb"
)

// Lookahead is the fixed number of addresses derived ahead of the current
// depth on each branch (§3 Account.lookahead).
const Lookahead = 5

const (
	changeReceive uint8 = 0
	changeChange  uint8 = 1
)

// Account is the BIP44 sub-tree collaborator named in §4.2: derivation,
// depth advancement, and multisig key-set management. It holds only the
// public half of its keys — signing always goes back through the
// Wallet's MasterKey.
type Account struct {
	wid          uint32
	index        uint32
	name         string
	accountKey   *hdkey.Key // account's own key at m/44'/coin'/index'
	cosigners    []*hdkey.Key
	accountType  uint8
	m, n         uint8
	witness      bool
	initialized  bool
	receiveDepth uint32
	changeDepth  uint32

	receiveAddress *Keyring
	changeAddress  *Keyring
}

// newAccount constructs an uninitialized Account. The caller marks it
// initialized and derives its first addresses via setDepth once the key
// set reaches n members (immediately, for single-key accounts; after
// enough PushKey calls, for multisig — §4.2 Creation).
func newAccount(wid, index uint32, name string, accountKey *hdkey.Key, m, n uint8, witness bool) *Account {
	accountType := walletdb.AccountTypePubkeyHash
	if n > 1 {
		accountType = walletdb.AccountTypeMultisig
	}
	return &Account{
		wid:         wid,
		index:       index,
		name:        name,
		accountKey:  accountKey,
		accountType: accountType,
		m:           m,
		n:           n,
		witness:     witness,
	}
}

// KeyCount returns 1 plus the number of cosigners currently on file (the
// account's own key is always element 0 of the conceptual key set).
func (a *Account) KeyCount() int {
	return 1 + len(a.cosigners)
}

// PushKey appends a cosigner key to a multisig account (§4.1 addKey,
// §4.2 Creation). It refuses duplicates (by serialized public material)
// and refuses keys beyond n. Initialization and first-address derivation,
// when the set reaches size n, is performed by the caller (Wallet.addKey)
// after the key-set-integrity check in §4.2 passes — see checkSharedScript.
func (a *Account) PushKey(k *hdkey.Key) error {
	if a.accountType != walletdb.AccountTypeMultisig {
		return ErrKeyExists
	}
	if a.KeyCount() >= int(a.n) {
		return ErrKeyLimit
	}
	if a.accountKey.Equal(k) {
		return ErrKeyExists
	}
	for _, existing := range a.cosigners {
		if existing.Equal(k) {
			return ErrKeyExists
		}
	}
	a.cosigners = append(a.cosigners, k)
	return nil
}

// RemoveKey drops the cosigner equal to k (ErrKeyAbsent if there is
// none), refusing once the
// account is initialized (§4.1 removeKey): per the resolved Open Question
// in SPEC_FULL.md, removeKey on an initialized account always fails with
// ErrKeyLimit rather than silently no-op'ing.
func (a *Account) RemoveKey(k *hdkey.Key) error {
	if a.initialized {
		return ErrKeyLimit
	}
	for i, existing := range a.cosigners {
		if existing.Equal(k) {
			a.cosigners = append(a.cosigners[:i], a.cosigners[i+1:]...)
			return nil
		}
	}
	return ErrKeyAbsent
}

// ReadyToInitialize reports whether the key set has reached n members.
func (a *Account) ReadyToInitialize() bool {
	return a.KeyCount() == int(a.n)
}

// MarkInitialized sets the one-shot initialized flag (§3: "once true,
// never returns to false" mirrors Wallet's own invariant at account
// scope).
func (a *Account) MarkInitialized() { a.initialized = true }

// Initialized reports whether the account has derived its first
// addresses.
func (a *Account) Initialized() bool { return a.initialized }

// Index returns the account's BIP44 account index.
func (a *Account) Index() uint32 { return a.index }

// Name returns the account's human-readable name ("default" for index 0).
func (a *Account) Name() string { return a.name }

// Witness reports whether this account's addresses use a witness program.
func (a *Account) Witness() bool { return a.witness }

// M returns the multisig threshold (1 for single-key accounts).
func (a *Account) M() uint8 { return a.m }

// N returns the multisig cosigner count (1 for single-key accounts).
func (a *Account) N() uint8 { return a.n }

// ReceiveDepth returns the index of the next receive address.
func (a *Account) ReceiveDepth() uint32 { return a.receiveDepth }

// ChangeDepth returns the index of the next change address.
func (a *Account) ChangeDepth() uint32 { return a.changeDepth }

// ReceiveAddress returns the cached current receive-branch keyring, or
// nil if the account has not been initialized.
func (a *Account) ReceiveAddress() *Keyring { return a.receiveAddress }

// ChangeAddress returns the cached current change-branch keyring, or nil
// if the account has not been initialized.
func (a *Account) ChangeAddress() *Keyring { return a.changeAddress }

// AccountKey returns the account's own HD public/private key at
// m/44'/coin'/index'.
func (a *Account) AccountKey() *hdkey.Key { return a.accountKey }

// deriveKeyringAt builds the Keyring for (change, index) from this
// account's current key material (§4.2 Address derivation).
func (a *Account) deriveKeyringAt(change uint8, index uint32) (*Keyring, error) {
	return deriveKeyring(a.index, a.accountKey, a.cosigners, change, index, a.accountType, a.m, a.n, a.witness)
}

// setDepth advances receive/change depths to newReceive/newChange,
// deriving every intervening address plus lookahead on branches that
// increase (§4.2 Depth advancement). It returns the newly derived paths
// (to persist) and keyrings (for address-event notification and updating
// the cached current address), without mutating a.receiveDepth/
// a.changeDepth itself — the caller commits those only after a successful
// persist, preserving batch atomicity (§8 property 7).
func (a *Account) setDepth(ctx context.Context, newReceive, newChange uint32) ([]walletdb.PathRecord, map[uint8]*Keyring, error) {
	paths := make([]walletdb.PathRecord, 0)
	lastRing := make(map[uint8]*Keyring)

	branches := []struct {
		change  uint8
		current uint32
		target  uint32
	}{
		{changeReceive, a.receiveDepth, newReceive},
		{changeChange, a.changeDepth, newChange},
	}

	for _, br := range branches {
		if br.target <= br.current {
			continue
		}
		deriveTo := br.target + Lookahead
		for i := br.current; i < deriveTo; i++ {
			ring, err := a.deriveKeyringAt(br.change, i)
			if err != nil {
				return nil, nil, fmt.Errorf("wallet: derive account %d branch %d index %d: %w", a.index, br.change, i, err)
			}
			paths = append(paths, walletdb.PathRecord{
				WID:     a.wid,
				Account: a.index,
				Change:  br.change,
				Index:   i,
				Hash:    ring.Hash,
			})
			if i == br.target-1 {
				lastRing[br.change] = ring
			}
		}
	}

	return paths, lastRing, nil
}

// applyDepth commits depths and cached current-address keyrings after a
// successful setDepth persist.
func (a *Account) applyDepth(newReceive, newChange uint32, lastRing map[uint8]*Keyring) {
	if newReceive > a.receiveDepth {
		a.receiveDepth = newReceive
		if ring, ok := lastRing[changeReceive]; ok {
			a.receiveAddress = ring
		}
	}
	if newChange > a.changeDepth {
		a.changeDepth = newChange
		if ring, ok := lastRing[changeChange]; ok {
			a.changeAddress = ring
		}
	}
}

// toRecord produces the byte-exact AccountRecord for persistence.
func (a *Account) toRecord(networkMagic uint32) (*walletdb.AccountRecord, error) {
	accountKeyRaw, err := a.accountKey.ToRaw()
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(a.cosigners))
	for i, k := range a.cosigners {
		raw, err := k.ToRaw()
		if err != nil {
			return nil, err
		}
		keys[i] = raw
	}
	return &walletdb.AccountRecord{
		NetworkMagic: networkMagic,
		Name:         a.name,
		Initialized:  a.initialized,
		Type:         a.accountType,
		M:            a.m,
		N:            a.n,
		Witness:      a.witness,
		AccountIndex: a.index,
		ReceiveDepth: a.receiveDepth,
		ChangeDepth:  a.changeDepth,
		AccountKey:   accountKeyRaw,
		Keys:         keys,
	}, nil
}

// accountFromRecord reconstructs an Account from its persisted form.
func accountFromRecord(wid uint32, rec *walletdb.AccountRecord, params *chaincfg.Params) (*Account, error) {
	accountKey, err := hdkey.FromRaw(rec.AccountKey, params)
	if err != nil {
		return nil, err
	}
	cosigners := make([]*hdkey.Key, len(rec.Keys))
	for i, raw := range rec.Keys {
		k, err := hdkey.FromRaw(raw, params)
		if err != nil {
			return nil, err
		}
		cosigners[i] = k
	}
	return &Account{
		wid:          wid,
		index:        rec.AccountIndex,
		name:         rec.Name,
		accountKey:   accountKey,
		cosigners:    cosigners,
		accountType:  rec.Type,
		m:            rec.M,
		n:            rec.N,
		witness:      rec.Witness,
		initialized:  rec.Initialized,
		receiveDepth: rec.ReceiveDepth,
		changeDepth:  rec.ChangeDepth,
	}, nil
}
