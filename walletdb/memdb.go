package walletdb

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/opd-ai/hdwallet/walletlog"
)

// MemDB is an in-memory WalletDB, grounded on the teacher's memstore.go
// (a mutex-guarded map used as the reference PaymentStore before a real
// backing store is wired in). It gives the engine something to batch
// against in unit tests and as a reference for a production store's
// Start/Commit/Drop contract.
type MemDB struct {
	mu sync.Mutex

	wallets  map[uint32]*WalletRecord
	accounts map[uint32]map[uint32]*AccountRecord // wid -> accountIndex -> record
	names    map[uint32]map[string]uint32          // wid -> name -> accountIndex
	paths    map[uint32]map[string]PathRecord       // wid -> hex(hash) -> path
	coins    map[uint32]map[uint32][]Coin           // wid -> account -> coins
	height   int32

	// batches tracks open Start()s as a deep snapshot to restore on
	// Drop(), giving the all-or-nothing semantics §5 requires without
	// needing real transaction log machinery.
	batches map[uint32]*memSnapshot
}

type memSnapshot struct {
	wallet   *WalletRecord
	accounts map[uint32]*AccountRecord
	names    map[string]uint32
	paths    map[string]PathRecord
}

// NewMemDB returns an empty in-memory store at chain height 0.
func NewMemDB() *MemDB {
	return &MemDB{
		wallets:  make(map[uint32]*WalletRecord),
		accounts: make(map[uint32]map[uint32]*AccountRecord),
		names:    make(map[uint32]map[string]uint32),
		paths:    make(map[uint32]map[string]PathRecord),
		coins:    make(map[uint32]map[uint32][]Coin),
		batches:  make(map[uint32]*memSnapshot),
	}
}

// SetHeight lets tests and a chain-following front-end drive the height
// the store reports (§6 "height" field).
func (db *MemDB) SetHeight(h int32) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.height = h
}

// SetCoins replaces the coin set for an account; a real store would learn
// this from the TXDB (out of scope, §1) as blocks and mempool transactions
// arrive.
func (db *MemDB) SetCoins(wid, account uint32, coins []Coin) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.coins[wid] == nil {
		db.coins[wid] = make(map[uint32][]Coin)
	}
	db.coins[wid][account] = coins
}

func hashKey(h []byte) string { return hex.EncodeToString(h) }

func cloneWalletRecord(rec *WalletRecord) *WalletRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.Master = append([]byte(nil), rec.Master...)
	return &cp
}

func cloneAccountRecord(rec *AccountRecord) *AccountRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.AccountKey = append([]byte(nil), rec.AccountKey...)
	cp.Keys = make([][]byte, len(rec.Keys))
	for i, k := range rec.Keys {
		cp.Keys[i] = append([]byte(nil), k...)
	}
	return &cp
}

// Register implements DB.
func (db *MemDB) Register(ctx context.Context, wid uint32, rec *WalletRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.wallets[wid]; ok {
		return ErrAlreadyRegistered
	}
	db.wallets[wid] = cloneWalletRecord(rec)
	db.accounts[wid] = make(map[uint32]*AccountRecord)
	db.names[wid] = make(map[string]uint32)
	db.paths[wid] = make(map[string]PathRecord)
	return nil
}

// Unregister implements DB.
func (db *MemDB) Unregister(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.wallets, wid)
	delete(db.accounts, wid)
	delete(db.names, wid)
	delete(db.paths, wid)
	delete(db.coins, wid)
	delete(db.batches, wid)
	return nil
}

// Start implements DB: snapshots the wallet's current state so Drop can
// restore it exactly (§4.1 batch discipline, §7 "no field of the
// persisted wallet/account changes" on failure).
func (db *MemDB) Start(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.wallets[wid]; !ok {
		return ErrNotFound
	}
	snap := &memSnapshot{
		wallet:   cloneWalletRecord(db.wallets[wid]),
		accounts: make(map[uint32]*AccountRecord, len(db.accounts[wid])),
		names:    make(map[string]uint32, len(db.names[wid])),
		paths:    make(map[string]PathRecord, len(db.paths[wid])),
	}
	for k, v := range db.accounts[wid] {
		snap.accounts[k] = cloneAccountRecord(v)
	}
	for k, v := range db.names[wid] {
		snap.names[k] = v
	}
	for k, v := range db.paths[wid] {
		snap.paths[k] = v
	}
	db.batches[wid] = snap
	walletlog.Logger().Tracef("walletdb: started batch for wallet %d", wid)
	return nil
}

// Commit implements DB: the batch succeeded, discard the snapshot.
func (db *MemDB) Commit(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.batches[wid]; !ok {
		return ErrNoBatch
	}
	delete(db.batches, wid)
	walletlog.Logger().Tracef("walletdb: committed batch for wallet %d", wid)
	return nil
}

// Drop implements DB: restore the pre-Start snapshot verbatim.
func (db *MemDB) Drop(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap, ok := db.batches[wid]
	if !ok {
		return ErrNoBatch
	}
	db.wallets[wid] = snap.wallet
	db.accounts[wid] = snap.accounts
	db.names[wid] = snap.names
	db.paths[wid] = snap.paths
	delete(db.batches, wid)
	walletlog.Logger().Warnf("walletdb: dropped batch for wallet %d", wid)
	return nil
}

func (db *MemDB) requireBatch(wid uint32) error {
	if _, ok := db.batches[wid]; !ok {
		return ErrNoBatch
	}
	return nil
}

// SaveWallet implements DB.
func (db *MemDB) SaveWallet(ctx context.Context, rec *WalletRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.requireBatch(rec.WID); err != nil {
		return err
	}
	db.wallets[rec.WID] = cloneWalletRecord(rec)
	return nil
}

// SaveAccount implements DB.
func (db *MemDB) SaveAccount(ctx context.Context, wid uint32, rec *AccountRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.requireBatch(wid); err != nil {
		return err
	}
	db.accounts[wid][rec.AccountIndex] = cloneAccountRecord(rec)
	db.names[wid][rec.Name] = rec.AccountIndex
	return nil
}

// SaveAddresses implements DB.
func (db *MemDB) SaveAddresses(ctx context.Context, wid uint32, paths []PathRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.requireBatch(wid); err != nil {
		return err
	}
	for _, p := range paths {
		db.paths[wid][hashKey(p.Hash)] = p
	}
	return nil
}

// GetWallet implements DB.
func (db *MemDB) GetWallet(ctx context.Context, wid uint32) (*WalletRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWalletRecord(rec), nil
}

// GetAccountByIndex implements DB.
func (db *MemDB) GetAccountByIndex(ctx context.Context, wid, index uint32) (*AccountRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	accts, ok := db.accounts[wid]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := accts[index]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccountRecord(rec), nil
}

// GetAccountByName implements DB.
func (db *MemDB) GetAccountByName(ctx context.Context, wid uint32, name string) (*AccountRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	names, ok := db.names[wid]
	if !ok {
		return nil, ErrNotFound
	}
	idx, ok := names[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccountRecord(db.accounts[wid][idx]), nil
}

// HasAccount implements DB.
func (db *MemDB) HasAccount(ctx context.Context, wid, index uint32) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	accts, ok := db.accounts[wid]
	if !ok {
		return false, nil
	}
	_, ok = accts[index]
	return ok, nil
}

// GetAccounts implements DB.
func (db *MemDB) GetAccounts(ctx context.Context, wid uint32) ([]*AccountRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	accts, ok := db.accounts[wid]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*AccountRecord, 0, len(accts))
	for i := uint32(0); i < uint32(len(accts)); i++ {
		if rec, ok := accts[i]; ok {
			out = append(out, cloneAccountRecord(rec))
		}
	}
	return out, nil
}

// GetAccountIndex implements DB.
func (db *MemDB) GetAccountIndex(ctx context.Context, wid uint32, name string) (uint32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	names, ok := db.names[wid]
	if !ok {
		return 0, ErrNotFound
	}
	idx, ok := names[name]
	if !ok {
		return 0, ErrNotFound
	}
	return idx, nil
}

// GetAddressPath implements DB.
func (db *MemDB) GetAddressPath(ctx context.Context, wid uint32, hash []byte) (*PathRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	paths, ok := db.paths[wid]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := paths[hashKey(hash)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// GetWalletPaths implements DB.
func (db *MemDB) GetWalletPaths(ctx context.Context, wid uint32) ([]PathRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	paths, ok := db.paths[wid]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]PathRecord, 0, len(paths))
	for _, p := range paths {
		out = append(out, p)
	}
	return out, nil
}

// GetAddressPaths implements DB: searches every registered wallet, as the
// interface contract (§6) allows hash-only lookup to span wallets.
func (db *MemDB) GetAddressPaths(ctx context.Context, hash []byte) ([]PathRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := hashKey(hash)
	var out []PathRecord
	for _, paths := range db.paths {
		if p, ok := paths[key]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// HasAddress implements DB.
func (db *MemDB) HasAddress(ctx context.Context, wid uint32, hash []byte) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	paths, ok := db.paths[wid]
	if !ok {
		return false, nil
	}
	_, ok = paths[hashKey(hash)]
	return ok, nil
}

// AddTX implements DB: removes spent coins from every account's coin set.
// Adding the transaction's new outputs is not modeled here (it would
// require script-to-account matching that belongs to the TXDB, out of
// scope per §1); this minimal form only removes inputs it recognizes as
// wallet coins.
func (db *MemDB) AddTX(ctx context.Context, wid uint32, tx *wire.MsgTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, in := range tx.TxIn {
		for acct, coins := range db.coins[wid] {
			filtered := coins[:0]
			for _, c := range coins {
				if c.Outpoint == in.PreviousOutPoint {
					continue
				}
				filtered = append(filtered, c)
			}
			db.coins[wid][acct] = filtered
		}
	}
	return nil
}

// GetCoins implements DB.
func (db *MemDB) GetCoins(ctx context.Context, wid, account uint32, confirmedOnly bool) ([]Coin, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	coins := db.coins[wid][account]
	out := make([]Coin, 0, len(coins))
	for _, c := range coins {
		if confirmedOnly && c.Height < 0 {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Height implements DB.
func (db *MemDB) Height(ctx context.Context) (int32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.height, nil
}

var _ DB = (*MemDB)(nil)
