// Package wallet implements the HD wallet engine's core: Wallet, Account,
// MasterKey, and the embedded TransactionBuilder (fund/createTX/sign/
// send). It consumes the WalletDB, Network, FeeEstimator, WorkerPool and
// logger collaborators through an explicit Context rather than
// package-level singletons (§9 Design Notes); the hdkey and walletcrypto
// packages are imported directly, matching the dependency-injection style
// the teacher uses for its RPC client/store wiring.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/opd-ai/hdwallet/hdkey"
	"github.com/opd-ai/hdwallet/network"
	"github.com/opd-ai/hdwallet/walletdb"
)

// Wallet is the top-level identity named in §3/§4.1: one MasterKey, one
// or more Accounts, and the write/fund locks that serialize every
// mutating operation (§5).
type Wallet struct {
	ctx      *Context
	wid      uint32
	coinType uint32

	writeLock sync.Mutex
	fundLock  sync.Mutex

	lockedMu sync.Mutex
	locked   map[wire.OutPoint]struct{}

	events *eventBus

	// Persisted fields, mirrored in memory; always written under
	// writeLock and only made durable via the batch discipline in
	// persistLocked().
	id           string
	initialized  bool
	accountDepth uint32
	token        [32]byte
	tokenDepth   uint32
	master       *MasterKey

	accounts map[uint32]*Account
	names    map[string]uint32
}

// New constructs an unregistered, uninitialized Wallet bound to wid.
// Callers choose wid themselves and pass it to wctx.DB.Register inside
// Init; a Wallet never assigns its own identifier.
func New(wctx *Context, wid uint32) *Wallet {
	return &Wallet{
		ctx:      wctx,
		wid:      wid,
		coinType: coinTypeForNetwork(wctx.Network),
		locked:   make(map[wire.OutPoint]struct{}),
		events:   newEventBus(),
		accounts: make(map[uint32]*Account),
		names:    make(map[string]uint32),
	}
}

// WID returns the wallet's database identifier.
func (w *Wallet) WID() uint32 { return w.wid }

// ID returns the wallet's human-readable identifier (§4.1 getID).
func (w *Wallet) ID() string { return w.id }

// Initialized reports whether init() has completed successfully.
func (w *Wallet) Initialized() bool { return w.initialized }

// Subscribe registers an event listener (§6: send/address/balance/error).
func (w *Wallet) Subscribe(l EventListener) { w.events.Subscribe(l) }

// InitOptions configures Init.
type InitOptions struct {
	Seed       []byte // BIP32 seed, 16-64 bytes
	Passphrase string // optional; if non-empty, the master is encrypted
	Witness    bool   // whether account 0's addresses use a witness program
}

// Init implements §4.1 init(options): derives the master key from seed,
// optionally encrypts it, registers the wallet, creates account 0
// ("default"), and persists everything in one batch. One-shot: fails
// with ErrAlreadyInitialized if called twice.
func (w *Wallet) Init(ctx context.Context, opts InitOptions) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	if w.initialized {
		return ErrAlreadyInitialized
	}

	masterKey, err := hdkey.NewMaster(opts.Seed, w.ctx.Network.Params)
	if err != nil {
		return fmt.Errorf("wallet: init: %w", err)
	}

	id, err := getID(masterKey, w.ctx.Network)
	if err != nil {
		return fmt.Errorf("wallet: init: %w", err)
	}
	token, err := getToken(masterKey, 0)
	if err != nil {
		return fmt.Errorf("wallet: init: %w", err)
	}

	w.master = newMasterKeyFromClear(masterKey)
	if opts.Passphrase != "" {
		if err := w.master.Encrypt(opts.Passphrase); err != nil {
			return fmt.Errorf("wallet: init: %w", err)
		}
	}
	w.id = id
	w.token = token
	w.tokenDepth = 0
	w.master.SetTimerWipeNotifier(func(err error) {
		w.ctx.logger().Warnf("wallet %d: timer-driven wipe failed: %v", w.wid, err)
		w.events.Emit(Event{Kind: EventError, WalletID: w.id, Err: err})
	})

	if err := w.ctx.DB.Register(ctx, w.wid, &walletdb.WalletRecord{}); err != nil {
		return fmt.Errorf("wallet: init: %w", err)
	}

	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		return fmt.Errorf("wallet: init: %w", err)
	}

	defaultAccount, err := w.deriveAccountLocked(masterKey, 0, "default", 1, 1, opts.Witness)
	if err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}
	defaultAccount.MarkInitialized()
	if err := w.initializeAccountLocked(ctx, defaultAccount); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}
	w.accountDepth = 1
	w.initialized = true

	if err := w.persistLocked(ctx); err != nil {
		w.initialized = false
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}

	if err := w.ctx.DB.Commit(ctx, w.wid); err != nil {
		w.initialized = false
		return fmt.Errorf("wallet: init: %w", err)
	}

	w.ctx.logger().Infof("wallet %d: initialized, id=%s witness=%v", w.wid, w.id, opts.Witness)
	return nil
}

// Open implements §4.1 open(): reattaches a persisted wallet, loading
// account 0 (and every other persisted account) into cache.
func Open(ctx context.Context, wctx *Context, wid uint32) (*Wallet, error) {
	rec, err := wctx.DB.GetWallet(ctx, wid)
	if err != nil {
		return nil, fmt.Errorf("wallet: open: %w", err)
	}

	w := New(wctx, wid)
	w.id = rec.ID
	w.initialized = rec.Initialized
	w.accountDepth = rec.AccountDepth
	w.token = rec.Token
	w.tokenDepth = rec.TokenDepth

	mkRec, err := walletdb.DecodeMasterKeyRecord(rec.Master)
	if err != nil {
		return nil, fmt.Errorf("wallet: open: decode master key: %w", err)
	}
	if mkRec.Encrypted {
		w.master = newMasterKeyFromCiphertext(mkRec.IV, mkRec.Ciphertext)
	} else {
		clearKey, err := hdkey.FromRaw(mkRec.ExtKey, wctx.Network.Params)
		if err != nil {
			return nil, fmt.Errorf("wallet: open: decode master extended key: %w", err)
		}
		w.master = newMasterKeyFromClear(clearKey)
	}
	w.master.SetTimerWipeNotifier(func(err error) {
		w.ctx.logger().Warnf("wallet %d: timer-driven wipe failed: %v", w.wid, err)
		w.events.Emit(Event{Kind: EventError, WalletID: w.id, Err: err})
	})

	accountRecs, err := wctx.DB.GetAccounts(ctx, wid)
	if err != nil {
		return nil, fmt.Errorf("wallet: open: %w", err)
	}
	for _, arec := range accountRecs {
		acct, err := accountFromRecord(wid, arec, wctx.Network.Params)
		if err != nil {
			return nil, fmt.Errorf("wallet: open: account %d: %w", arec.AccountIndex, err)
		}
		if acct.Initialized() {
			if err := w.rehydrateCurrentAddresses(acct); err != nil {
				return nil, fmt.Errorf("wallet: open: account %d: %w", arec.AccountIndex, err)
			}
		}
		w.accounts[acct.Index()] = acct
		w.names[acct.Name()] = acct.Index()
	}

	return w, nil
}

// rehydrateCurrentAddresses recomputes the cached receive/change keyrings
// for an account loaded from disk (they are not persisted, per §3
// Keyring: "derived artifact, not persisted").
func (w *Wallet) rehydrateCurrentAddresses(acct *Account) error {
	if acct.ReceiveDepth() > 0 {
		ring, err := acct.deriveKeyringAt(changeReceive, acct.ReceiveDepth()-1)
		if err != nil {
			return err
		}
		acct.receiveAddress = ring
	}
	if acct.ChangeDepth() > 0 {
		ring, err := acct.deriveKeyringAt(changeChange, acct.ChangeDepth()-1)
		if err != nil {
			return err
		}
		acct.changeAddress = ring
	}
	return nil
}

// Destroy implements §4.1 destroy(): unregisters the wallet and zeroes
// the decrypted master key.
func (w *Wallet) Destroy(ctx context.Context) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	if err := w.ctx.DB.Unregister(ctx, w.wid); err != nil {
		return fmt.Errorf("wallet: destroy: %w", err)
	}
	w.master.Lock()
	w.ctx.logger().Infof("wallet %d: destroyed, id=%s", w.wid, w.id)
	return nil
}

// deriveAccountLocked derives master -> m/44'/coin'/index' and builds the
// in-memory Account; caller must hold writeLock.
func (w *Wallet) deriveAccountLocked(master *hdkey.Key, index uint32, name string, m, n uint8, witness bool) (*Account, error) {
	accountKey, err := master.DeriveAccount44(w.coinType, index)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive account %d: %w", index, err)
	}
	return newAccount(w.wid, index, name, accountKey, m, n, witness), nil
}

// initializeAccountLocked runs setDepth(1,1) for a freshly-initialized
// account and stages the resulting address paths for the open batch
// (§4.2 Creation). Caller must hold writeLock and have an open batch.
func (w *Wallet) initializeAccountLocked(ctx context.Context, acct *Account) error {
	paths, lastRing, err := acct.setDepth(ctx, 1, 1)
	if err != nil {
		return err
	}
	if err := w.ctx.DB.SaveAddresses(ctx, w.wid, paths); err != nil {
		return fmt.Errorf("wallet: save addresses: %w", err)
	}
	acct.applyDepth(1, 1, lastRing)
	return nil
}

// walletRecordLocked builds the byte-exact WalletRecord for the wallet's
// current in-memory state. Caller must hold writeLock.
func (w *Wallet) walletRecordLocked() (*walletdb.WalletRecord, error) {
	mkRec, err := w.master.Encode()
	if err != nil {
		return nil, fmt.Errorf("wallet: encode master key: %w", err)
	}
	masterBytes, err := walletdb.EncodeMasterKeyRecord(mkRec)
	if err != nil {
		return nil, fmt.Errorf("wallet: encode master key record: %w", err)
	}
	return &walletdb.WalletRecord{
		NetworkMagic: w.ctx.Network.Magic,
		WID:          w.wid,
		ID:           w.id,
		Initialized:  w.initialized,
		AccountDepth: w.accountDepth,
		Token:        w.token,
		TokenDepth:   w.tokenDepth,
		Master:       masterBytes,
	}, nil
}

// persistLocked writes the wallet record and every cached account into
// the currently open batch. Caller must hold writeLock.
func (w *Wallet) persistLocked(ctx context.Context) error {
	rec, err := w.walletRecordLocked()
	if err != nil {
		return err
	}
	if err := w.ctx.DB.SaveWallet(ctx, rec); err != nil {
		return fmt.Errorf("wallet: save wallet: %w", err)
	}

	for _, acct := range w.accounts {
		arec, err := acct.toRecord(w.ctx.Network.Magic)
		if err != nil {
			return fmt.Errorf("wallet: encode account %d: %w", acct.Index(), err)
		}
		if err := w.ctx.DB.SaveAccount(ctx, w.wid, arec); err != nil {
			return fmt.Errorf("wallet: save account %d: %w", acct.Index(), err)
		}
	}
	return nil
}

// AddKey implements §4.1 addKey(account, hdKey): multisig-only, refuses a
// key already present in this or any other account of the wallet
// (key-set integrity, §4.2). When the set reaches n, the account is
// marked initialized and its first addresses derived.
func (w *Wallet) AddKey(ctx context.Context, accountIndex uint32, hdKeyExtended string) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	acct, ok := w.accounts[accountIndex]
	if !ok {
		return ErrAccountNotFound
	}

	key, err := hdkey.FromExtended(hdKeyExtended, w.ctx.Network.Params)
	if err != nil {
		return fmt.Errorf("wallet: addKey: %w", err)
	}
	for idx, other := range w.accounts {
		if idx == accountIndex {
			continue
		}
		if other.accountKey.Equal(key) {
			return ErrKeyExists
		}
		for _, cosigner := range other.cosigners {
			if cosigner.Equal(key) {
				return ErrKeyExists
			}
		}
	}

	if err := acct.PushKey(key); err != nil {
		return err
	}

	if !acct.ReadyToInitialize() || acct.Initialized() {
		return w.persistAccountOnly(ctx, acct)
	}

	if err := w.checkSharedScript(ctx, acct); err != nil {
		// roll back the just-added key: the set never reached n.
		acct.cosigners = acct.cosigners[:len(acct.cosigners)-1]
		return err
	}

	acct.MarkInitialized()
	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		return fmt.Errorf("wallet: addKey: %w", err)
	}
	if err := w.initializeAccountLocked(ctx, acct); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}
	if err := w.persistLocked(ctx); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}
	if err := w.ctx.DB.Commit(ctx, w.wid); err != nil {
		return fmt.Errorf("wallet: addKey: %w", err)
	}

	w.ctx.logger().Debugf("wallet %d: account %d key set completed, n=%d", w.wid, accountIndex, acct.n)
	w.events.Emit(Event{Kind: EventAddress, WalletID: w.id, Addresses: []*Keyring{acct.ReceiveAddress(), acct.ChangeAddress()}})
	return nil
}

// checkSharedScript implements §4.2's key-set integrity check: the
// derived multisig address at (change=0, index=0) must not already map
// to any path under this wallet.
func (w *Wallet) checkSharedScript(ctx context.Context, acct *Account) error {
	ring, err := acct.deriveKeyringAt(changeReceive, 0)
	if err != nil {
		return err
	}
	has, err := w.ctx.DB.HasAddress(ctx, w.wid, ring.Hash)
	if err != nil {
		return fmt.Errorf("wallet: checkSharedScript: %w", err)
	}
	if has {
		return ErrSharedScript
	}
	return nil
}

// persistAccountOnly saves a single account's record in its own batch,
// used when addKey/removeKey changes the key set without triggering
// initialization.
func (w *Wallet) persistAccountOnly(ctx context.Context, acct *Account) error {
	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		return fmt.Errorf("wallet: persist account: %w", err)
	}
	arec, err := acct.toRecord(w.ctx.Network.Magic)
	if err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}
	if err := w.ctx.DB.SaveAccount(ctx, w.wid, arec); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return fmt.Errorf("wallet: persist account: %w", err)
	}
	return w.ctx.DB.Commit(ctx, w.wid)
}

// RemoveKey implements §4.1 removeKey(account, hdKey).
func (w *Wallet) RemoveKey(ctx context.Context, accountIndex uint32, hdKeyExtended string) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	acct, ok := w.accounts[accountIndex]
	if !ok {
		return ErrAccountNotFound
	}
	key, err := hdkey.FromExtended(hdKeyExtended, w.ctx.Network.Params)
	if err != nil {
		return fmt.Errorf("wallet: removeKey: %w", err)
	}
	if err := acct.RemoveKey(key); err != nil {
		return err
	}
	return w.persistAccountOnly(ctx, acct)
}

// SetPassphrase implements §4.1 setPassphrase(old?, new): decrypt-then-
// encrypt under the write lock; on failure the master state is
// unchanged.
func (w *Wallet) SetPassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	if w.master.IsEncrypted() {
		if err := w.master.Decrypt(oldPassphrase, w.ctx.Network.Params); err != nil {
			return err
		}
	}
	if newPassphrase != "" {
		if err := w.master.Encrypt(newPassphrase); err != nil {
			return err
		}
	}
	return w.persistWalletOnly(ctx)
}

// persistWalletOnly saves just the wallet record (not accounts), used by
// setPassphrase/retoken.
func (w *Wallet) persistWalletOnly(ctx context.Context) error {
	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		return fmt.Errorf("wallet: persist: %w", err)
	}
	rec, err := w.walletRecordLocked()
	if err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return err
	}
	if err := w.ctx.DB.SaveWallet(ctx, rec); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return fmt.Errorf("wallet: persist: %w", err)
	}
	return w.ctx.DB.Commit(ctx, w.wid)
}

// Retoken implements §4.1 retoken(passphrase?): increments tokenDepth,
// recomputes token, persists.
func (w *Wallet) Retoken(ctx context.Context, passphrase string) ([32]byte, error) {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	master, err := w.resolveMasterLocked(passphrase)
	if err != nil {
		return [32]byte{}, err
	}
	newDepth := w.tokenDepth + 1
	token, err := getToken(master, newDepth)
	if err != nil {
		return [32]byte{}, err
	}
	w.tokenDepth = newDepth
	w.token = token
	if err := w.persistWalletOnly(ctx); err != nil {
		return [32]byte{}, err
	}
	return w.token, nil
}

func (w *Wallet) resolveMasterLocked(passphrase string) (*hdkey.Key, error) {
	if !w.master.IsEncrypted() {
		return w.master.Key()
	}
	return w.master.Unlock(passphrase, DefaultUnlockTimeout, w.ctx.Network.Params)
}

// Unlock implements §4.1 unlock(passphrase, timeout?), forwarding to
// MasterKey.
func (w *Wallet) Unlock(passphrase string, timeout time.Duration) error {
	_, err := w.master.Unlock(passphrase, timeout, w.ctx.Network.Params)
	return err
}

// Lock implements §4.1 lock(), forwarding to MasterKey.
func (w *Wallet) Lock() { w.master.Lock() }

func (w *Wallet) unlockedMaster() (*unlockedMasterHandle, error) {
	key, err := w.master.Key()
	if err != nil {
		return nil, err
	}
	return &unlockedMasterHandle{key: key, coinType: w.coinType}, nil
}

// CreateAccountOptions configures CreateAccount.
type CreateAccountOptions struct {
	Name    string
	M, N    uint8 // default 1, 1
	Witness bool
}

// CreateAccount implements §4.1 createAccount(options): derives
// master -> m/44'/coin'/accountDepth', builds the Account, persists it,
// increments accountDepth. Requires the master unlocked if encrypted.
func (w *Wallet) CreateAccount(ctx context.Context, opts CreateAccountOptions) (*Account, error) {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	if !w.initialized {
		return nil, ErrNotInitialized
	}
	master, err := w.master.Key()
	if err != nil {
		return nil, err
	}

	m, n := opts.M, opts.N
	if m == 0 {
		m = 1
	}
	if n == 0 {
		n = 1
	}

	index := w.accountDepth
	acct, err := w.deriveAccountLocked(master, index, opts.Name, m, n, opts.Witness)
	if err != nil {
		return nil, err
	}

	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		return nil, fmt.Errorf("wallet: createAccount: %w", err)
	}

	if n == 1 {
		acct.MarkInitialized()
		if err := w.initializeAccountLocked(ctx, acct); err != nil {
			w.ctx.DB.Drop(ctx, w.wid)
			return nil, err
		}
	}

	arec, err := acct.toRecord(w.ctx.Network.Magic)
	if err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, err
	}
	if err := w.ctx.DB.SaveAccount(ctx, w.wid, arec); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, fmt.Errorf("wallet: createAccount: %w", err)
	}

	w.accountDepth++
	if err := w.persistWalletRecordLocked(ctx); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, err
	}

	if err := w.ctx.DB.Commit(ctx, w.wid); err != nil {
		return nil, fmt.Errorf("wallet: createAccount: %w", err)
	}

	w.accounts[index] = acct
	w.names[acct.Name()] = index
	w.ctx.logger().Infof("wallet %d: created account %d %q (m=%d n=%d witness=%v)", w.wid, index, opts.Name, m, n, opts.Witness)
	return acct, nil
}

// persistWalletRecordLocked saves the wallet record inside an
// already-open batch (used by CreateAccount, which manages its own
// Start/Commit).
func (w *Wallet) persistWalletRecordLocked(ctx context.Context) error {
	rec, err := w.walletRecordLocked()
	if err != nil {
		return err
	}
	return w.ctx.DB.SaveWallet(ctx, rec)
}

// resolveAccountByIndex is a small helper shared by the createReceive/
// createChange/createAddress family.
func (w *Wallet) resolveAccountByIndex(index uint32) (*Account, error) {
	acct, ok := w.accounts[index]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !acct.Initialized() {
		return nil, ErrNotInitialized
	}
	return acct, nil
}

// CreateAddress implements §4.1 createAddress(account?, change): advances
// the given branch's depth by one.
func (w *Wallet) CreateAddress(ctx context.Context, accountIndex uint32, change uint8) (*Keyring, error) {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	acct, err := w.resolveAccountByIndex(accountIndex)
	if err != nil {
		return nil, err
	}

	newReceive, newChange := acct.ReceiveDepth(), acct.ChangeDepth()
	if change == changeReceive {
		newReceive++
	} else {
		newChange++
	}

	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		return nil, fmt.Errorf("wallet: createAddress: %w", err)
	}
	paths, lastRing, err := acct.setDepth(ctx, newReceive, newChange)
	if err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, err
	}
	if err := w.ctx.DB.SaveAddresses(ctx, w.wid, paths); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, fmt.Errorf("wallet: createAddress: %w", err)
	}
	arec, err := acct.toRecord(w.ctx.Network.Magic)
	if err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, err
	}
	acct.applyDepth(newReceive, newChange, lastRing)
	arec.ReceiveDepth, arec.ChangeDepth = acct.ReceiveDepth(), acct.ChangeDepth()
	if err := w.ctx.DB.SaveAccount(ctx, w.wid, arec); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		return nil, fmt.Errorf("wallet: createAddress: %w", err)
	}
	if err := w.ctx.DB.Commit(ctx, w.wid); err != nil {
		return nil, fmt.Errorf("wallet: createAddress: %w", err)
	}

	var ring *Keyring
	if change == changeReceive {
		ring = acct.ReceiveAddress()
	} else {
		ring = acct.ChangeAddress()
	}
	w.events.Emit(Event{Kind: EventAddress, WalletID: w.id, Addresses: []*Keyring{ring}})
	return ring, nil
}

// CreateReceive implements §4.1 createReceive(account?).
func (w *Wallet) CreateReceive(ctx context.Context, accountIndex uint32) (*Keyring, error) {
	return w.CreateAddress(ctx, accountIndex, changeReceive)
}

// CreateChange implements §4.1 createChange(account?).
func (w *Wallet) CreateChange(ctx context.Context, accountIndex uint32) (*Keyring, error) {
	return w.CreateAddress(ctx, accountIndex, changeChange)
}

// GetPath implements §4.1 getPath(address): looks up (change, index,
// account) by a 20- or 32-byte address hash.
func (w *Wallet) GetPath(ctx context.Context, hash []byte) (*walletdb.PathRecord, error) {
	return w.ctx.DB.GetAddressPath(ctx, w.wid, hash)
}

// Fund implements §4.4 fund(mtx, options) as a public entry point.
func (w *Wallet) Fund(ctx context.Context, mtx *wire.MsgTx, opts FundOptions) error {
	return w.fund(ctx, mtx, opts)
}

// CreateTX implements §4.4 createTX(options) as a public entry point.
func (w *Wallet) CreateTX(ctx context.Context, opts CreateTXOptions) (*wire.MsgTx, error) {
	return w.createTX(ctx, opts)
}

// ScriptInputs implements §4.1 scriptInputs(mtx): derives keyrings for
// every recognized input and installs its signature-slot template
// (redeem/witness script, for multisig inputs) onto mtx, without signing.
func (w *Wallet) ScriptInputs(ctx context.Context, mtx *wire.MsgTx) (int, error) {
	rings, err := w.templateInputs(ctx, mtx)
	if err != nil {
		return 0, err
	}
	return len(rings), nil
}

// Sign implements §4.4 sign(mtx, options) as a public entry point.
func (w *Wallet) Sign(ctx context.Context, mtx *wire.MsgTx, opts SignOptions) (int, error) {
	return w.sign(ctx, mtx, opts)
}

// Send implements §4.4 send(options): createTX -> sign -> addTX ->
// emit("send"). The entire sequence holds the fund lock.
func (w *Wallet) Send(ctx context.Context, opts CreateTXOptions) (*wire.MsgTx, error) {
	w.fundLock.Lock()
	defer w.fundLock.Unlock()

	opts.Fund.force = true
	mtx, err := w.createTX(ctx, opts)
	if err != nil {
		return nil, err
	}

	signed, err := w.sign(ctx, mtx, SignOptions{})
	if err != nil {
		w.unlockCoins(mtx)
		return nil, err
	}
	if signed < len(mtx.TxIn) {
		w.unlockCoins(mtx)
		return nil, ErrNotFullySigned
	}

	if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
		w.unlockCoins(mtx)
		return nil, fmt.Errorf("wallet: send: %w", err)
	}
	if err := w.ctx.DB.AddTX(ctx, w.wid, mtx); err != nil {
		w.ctx.DB.Drop(ctx, w.wid)
		w.unlockCoins(mtx)
		return nil, fmt.Errorf("wallet: send: %w", err)
	}
	if err := w.ctx.DB.Commit(ctx, w.wid); err != nil {
		w.unlockCoins(mtx)
		return nil, fmt.Errorf("wallet: send: %w", err)
	}
	w.unlockCoins(mtx)

	w.ctx.logger().Infof("wallet %d: sent tx %s, %d inputs signed", w.wid, mtx.TxHash(), signed)
	w.events.Emit(Event{Kind: EventSend, WalletID: w.id, TX: mtx})
	return mtx, nil
}

// SyncOutputDepth implements §4.1 syncOutputDepth(pathInfo): given a set
// of paths matched on a confirmed transaction's outputs, raises each
// affected account's receive/change depth to max(index)+2, emitting an
// "address" event that lists, for each account whose depth advanced, its
// current receive address (index depth-1). The other receive addresses
// derived in the same call, lookahead included, are not listed.
func (w *Wallet) SyncOutputDepth(ctx context.Context, matched []walletdb.PathRecord) error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	targets := make(map[uint32][2]uint32) // account -> [receiveTarget, changeTarget]
	for _, p := range matched {
		t := targets[p.Account]
		want := p.Index + 2
		if p.Change == changeReceive && want > t[0] {
			t[0] = want
		}
		if p.Change == changeChange && want > t[1] {
			t[1] = want
		}
		targets[p.Account] = t
	}

	var newAddresses []*Keyring
	for accountIndex, t := range targets {
		acct, ok := w.accounts[accountIndex]
		if !ok {
			continue
		}
		newReceive, newChange := acct.ReceiveDepth(), acct.ChangeDepth()
		if t[0] > newReceive {
			newReceive = t[0]
		}
		if t[1] > newChange {
			newChange = t[1]
		}
		if newReceive == acct.ReceiveDepth() && newChange == acct.ChangeDepth() {
			continue
		}

		if err := w.ctx.DB.Start(ctx, w.wid); err != nil {
			return fmt.Errorf("wallet: syncOutputDepth: %w", err)
		}
		paths, lastRing, err := acct.setDepth(ctx, newReceive, newChange)
		if err != nil {
			w.ctx.DB.Drop(ctx, w.wid)
			return err
		}
		if err := w.ctx.DB.SaveAddresses(ctx, w.wid, paths); err != nil {
			w.ctx.DB.Drop(ctx, w.wid)
			return fmt.Errorf("wallet: syncOutputDepth: %w", err)
		}
		acct.applyDepth(newReceive, newChange, lastRing)
		arec, err := acct.toRecord(w.ctx.Network.Magic)
		if err != nil {
			w.ctx.DB.Drop(ctx, w.wid)
			return err
		}
		if err := w.ctx.DB.SaveAccount(ctx, w.wid, arec); err != nil {
			w.ctx.DB.Drop(ctx, w.wid)
			return fmt.Errorf("wallet: syncOutputDepth: %w", err)
		}
		if err := w.ctx.DB.Commit(ctx, w.wid); err != nil {
			return fmt.Errorf("wallet: syncOutputDepth: %w", err)
		}
		if ring, ok := lastRing[changeReceive]; ok {
			newAddresses = append(newAddresses, ring)
		}
	}

	if len(newAddresses) > 0 {
		w.ctx.logger().Debugf("wallet %d: syncOutputDepth raised depth for %d account(s), %d new receive address(es)", w.wid, len(targets), len(newAddresses))
		w.events.Emit(Event{Kind: EventAddress, WalletID: w.id, Addresses: newAddresses})
	}
	return nil
}

// Balance computes a BalanceSnapshot for accountIndex by summing its
// unspent coins, grounded on btcwallet's CalculateBalance
// (other_examples blackbatteam001-btcwallet/account.go): confirmed coins
// (height set and <= current height) are split from unconfirmed ones.
func (w *Wallet) Balance(ctx context.Context, accountIndex uint32) (*BalanceSnapshot, error) {
	height, err := w.ctx.DB.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: balance: %w", err)
	}
	coins, err := w.ctx.DB.GetCoins(ctx, w.wid, accountIndex, false)
	if err != nil {
		return nil, fmt.Errorf("wallet: balance: %w", err)
	}
	snap := &BalanceSnapshot{Height: height}
	for _, c := range coins {
		if c.Confirmed(height) {
			snap.Confirmed += c.Value
		} else {
			snap.Unconfirmed += c.Value
		}
	}
	w.events.Emit(Event{Kind: EventBalance, WalletID: w.id, Balance: snap})
	return snap, nil
}

// isLocked reports whether outpoint is currently reserved by an
// in-flight fund/send.
func (w *Wallet) isLocked(outpoint wire.OutPoint) bool {
	w.lockedMu.Lock()
	defer w.lockedMu.Unlock()
	_, ok := w.locked[outpoint]
	return ok
}

func (w *Wallet) lockCoin(outpoint wire.OutPoint) {
	w.lockedMu.Lock()
	defer w.lockedMu.Unlock()
	w.locked[outpoint] = struct{}{}
}

func (w *Wallet) unlockCoins(mtx *wire.MsgTx) {
	w.lockedMu.Lock()
	defer w.lockedMu.Unlock()
	for _, in := range mtx.TxIn {
		delete(w.locked, in.PreviousOutPoint)
	}
}

// network returns the configured network (e.g. for rendering an address
// from a Keyring) from within this package.
func (w *Wallet) network() *network.Network { return w.ctx.Network }
