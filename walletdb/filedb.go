package walletdb

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/opd-ai/hdwallet/walletlog"
)

// FileDB is an AES-GCM-encrypted, filesystem-backed DB, adapted from the
// teacher's EncryptedFileStore (encryptedfilestore.go): one encryption
// key file under baseDir/keys, one encrypted blob per wallet under
// baseDir/wallets, loaded into memory on open and rewritten atomically
// on every Commit. The per-wallet batch discipline is implemented the
// same way MemDB implements it (deep-copy snapshot on Start, restore on
// Drop), since both stores share the same in-memory representation
// between a Start and its matching Commit/Drop.
type FileDB struct {
	mu      sync.Mutex
	baseDir string
	gcm     cipher.AEAD

	wallets map[uint32]*walletFileState
	batches map[uint32]*walletFileState

	height int32
}

// walletFileState is the full persisted state of one wallet: its
// WalletRecord, every AccountRecord, the reverse address-path index, and
// its unspent coins by account. This is the unit of encryption — the
// whole wallet is re-marshaled and re-sealed on every Commit, matching
// the teacher's whole-record rewrite-on-update style in
// EncryptedFileStore.UpdatePayment.
type walletFileState struct {
	Wallet   *WalletRecord
	Accounts map[uint32]*AccountRecord
	Paths    map[string]PathRecord // keyed by hex(hash)
	Coins    map[uint32][]Coin     // keyed by account index
}

func cloneFileState(s *walletFileState) *walletFileState {
	if s == nil {
		return nil
	}
	out := &walletFileState{
		Accounts: make(map[uint32]*AccountRecord, len(s.Accounts)),
		Paths:    make(map[string]PathRecord, len(s.Paths)),
		Coins:    make(map[uint32][]Coin, len(s.Coins)),
	}
	if s.Wallet != nil {
		w := *s.Wallet
		w.Master = append([]byte(nil), s.Wallet.Master...)
		out.Wallet = &w
	}
	for idx, a := range s.Accounts {
		out.Accounts[idx] = cloneAccountRecord(a)
	}
	for k, p := range s.Paths {
		out.Paths[k] = p
	}
	for idx, coins := range s.Coins {
		out.Coins[idx] = append([]Coin(nil), coins...)
	}
	return out
}

// NewFileDB opens (or initializes) an encrypted file store rooted at
// baseDir, loading every previously persisted wallet into memory.
func NewFileDB(baseDir string) (*FileDB, error) {
	keyPath := filepath.Join(baseDir, "keys", "store.key")
	walletsDir := filepath.Join(baseDir, "wallets")
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("walletdb: create key directory: %w", err)
	}
	if err := os.MkdirAll(walletsDir, 0o700); err != nil {
		return nil, fmt.Errorf("walletdb: create wallets directory: %w", err)
	}

	key, err := loadOrGenerateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("walletdb: key setup: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("walletdb: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("walletdb: create GCM: %w", err)
	}

	db := &FileDB{
		baseDir: baseDir,
		gcm:     gcm,
		wallets: make(map[uint32]*walletFileState),
		batches: make(map[uint32]*walletFileState),
	}
	if err := db.loadAll(); err != nil {
		return nil, err
	}
	walletlog.Logger().Infof("walletdb: opened file store at %s, %d wallet(s) loaded", baseDir, len(db.wallets))
	return db, nil
}

func loadOrGenerateKey(keyPath string) ([]byte, error) {
	key, err := os.ReadFile(keyPath)
	if err == nil && len(key) >= 32 {
		return key[:32], nil
	}
	key = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("save key: %w", err)
	}
	return key, nil
}

func (db *FileDB) encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, db.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return db.gcm.Seal(nonce, nonce, data, nil), nil
}

func (db *FileDB) decrypt(data []byte) ([]byte, error) {
	nonceSize := db.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("walletdb: ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return db.gcm.Open(nil, nonce, ciphertext, nil)
}

func (db *FileDB) walletFilePath(wid uint32) string {
	return filepath.Join(db.baseDir, "wallets", fmt.Sprintf("%d.enc", wid))
}

func (db *FileDB) loadAll() error {
	entries, err := os.ReadDir(filepath.Join(db.baseDir, "wallets"))
	if err != nil {
		return fmt.Errorf("walletdb: read wallets directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".enc" {
			continue
		}
		var wid uint32
		if _, err := fmt.Sscanf(entry.Name(), "%d.enc", &wid); err != nil {
			continue
		}
		state, err := db.readWallet(wid)
		if err != nil {
			return fmt.Errorf("walletdb: load wallet %d: %w", wid, err)
		}
		db.wallets[wid] = state
	}
	return nil
}

func (db *FileDB) readWallet(wid uint32) (*walletFileState, error) {
	encrypted, err := os.ReadFile(db.walletFilePath(wid))
	if err != nil {
		return nil, err
	}
	data, err := db.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %d: %w", wid, err)
	}
	var state walletFileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal wallet %d: %w", wid, err)
	}
	if state.Accounts == nil {
		state.Accounts = make(map[uint32]*AccountRecord)
	}
	if state.Paths == nil {
		state.Paths = make(map[string]PathRecord)
	}
	if state.Coins == nil {
		state.Coins = make(map[uint32][]Coin)
	}
	return &state, nil
}

// writeWalletLocked seals and writes state to disk. Caller must hold db.mu.
func (db *FileDB) writeWalletLocked(wid uint32, state *walletFileState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal wallet %d: %w", wid, err)
	}
	encrypted, err := db.encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt wallet %d: %w", wid, err)
	}
	path := db.walletFilePath(wid)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	walletlog.Logger().Debugf("walletdb: wallet %d written to disk, %d bytes sealed", wid, len(encrypted))
	return nil
}

func (db *FileDB) Register(ctx context.Context, wid uint32, rec *WalletRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.wallets[wid]; exists {
		return ErrAlreadyRegistered
	}
	recCopy := *rec
	state := &walletFileState{
		Wallet:   &recCopy,
		Accounts: make(map[uint32]*AccountRecord),
		Paths:    make(map[string]PathRecord),
		Coins:    make(map[uint32][]Coin),
	}
	if err := db.writeWalletLocked(wid, state); err != nil {
		return err
	}
	db.wallets[wid] = state
	walletlog.Logger().Infof("walletdb: registered wallet %d", wid)
	return nil
}

func (db *FileDB) Unregister(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.wallets[wid]; !exists {
		return ErrNotFound
	}
	delete(db.wallets, wid)
	delete(db.batches, wid)
	if err := os.Remove(db.walletFilePath(wid)); err != nil {
		return err
	}
	walletlog.Logger().Infof("walletdb: unregistered wallet %d", wid)
	return nil
}

func (db *FileDB) Start(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return ErrNotFound
	}
	if _, open := db.batches[wid]; open {
		return fmt.Errorf("walletdb: batch already open for wallet %d", wid)
	}
	db.batches[wid] = cloneFileState(state)
	walletlog.Logger().Tracef("walletdb: started batch for wallet %d", wid)
	return nil
}

func (db *FileDB) Commit(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return ErrNotFound
	}
	if _, open := db.batches[wid]; !open {
		return ErrNoBatch
	}
	if err := db.writeWalletLocked(wid, state); err != nil {
		return err
	}
	delete(db.batches, wid)
	walletlog.Logger().Debugf("walletdb: committed batch for wallet %d", wid)
	return nil
}

func (db *FileDB) Drop(ctx context.Context, wid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	snapshot, open := db.batches[wid]
	if !open {
		return ErrNoBatch
	}
	db.wallets[wid] = snapshot
	delete(db.batches, wid)
	walletlog.Logger().Warnf("walletdb: dropped batch for wallet %d", wid)
	return nil
}

func (db *FileDB) requireBatch(wid uint32) (*walletFileState, error) {
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	if _, open := db.batches[wid]; !open {
		return nil, ErrNoBatch
	}
	return state, nil
}

func (db *FileDB) SaveWallet(ctx context.Context, rec *WalletRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, err := db.requireBatch(rec.WID)
	if err != nil {
		return err
	}
	recCopy := *rec
	state.Wallet = &recCopy
	return nil
}

func (db *FileDB) SaveAccount(ctx context.Context, wid uint32, rec *AccountRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, err := db.requireBatch(wid)
	if err != nil {
		return err
	}
	state.Accounts[rec.AccountIndex] = cloneAccountRecord(rec)
	return nil
}

func (db *FileDB) SaveAddresses(ctx context.Context, wid uint32, paths []PathRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, err := db.requireBatch(wid)
	if err != nil {
		return err
	}
	for _, p := range paths {
		state.Paths[hashKey(p.Hash)] = p
	}
	return nil
}

func (db *FileDB) GetWallet(ctx context.Context, wid uint32) (*WalletRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	rec := *state.Wallet
	return &rec, nil
}

func (db *FileDB) GetAccountByIndex(ctx context.Context, wid, index uint32) (*AccountRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := state.Accounts[index]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccountRecord(rec), nil
}

func (db *FileDB) GetAccountByName(ctx context.Context, wid uint32, name string) (*AccountRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	for _, rec := range state.Accounts {
		if rec.Name == name {
			return cloneAccountRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (db *FileDB) HasAccount(ctx context.Context, wid, index uint32) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return false, ErrNotFound
	}
	_, exists := state.Accounts[index]
	return exists, nil
}

func (db *FileDB) GetAccounts(ctx context.Context, wid uint32) ([]*AccountRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*AccountRecord, 0, len(state.Accounts))
	for _, rec := range state.Accounts {
		out = append(out, cloneAccountRecord(rec))
	}
	return out, nil
}

func (db *FileDB) GetAccountIndex(ctx context.Context, wid uint32, name string) (uint32, error) {
	rec, err := db.GetAccountByName(ctx, wid, name)
	if err != nil {
		return 0, err
	}
	return rec.AccountIndex, nil
}

func (db *FileDB) GetAddressPath(ctx context.Context, wid uint32, hash []byte) (*PathRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := state.Paths[hashKey(hash)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (db *FileDB) GetWalletPaths(ctx context.Context, wid uint32) ([]PathRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]PathRecord, 0, len(state.Paths))
	for _, p := range state.Paths {
		out = append(out, p)
	}
	return out, nil
}

func (db *FileDB) GetAddressPaths(ctx context.Context, hash []byte) ([]PathRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := hashKey(hash)
	var out []PathRecord
	for _, state := range db.wallets {
		if p, ok := state.Paths[key]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (db *FileDB) HasAddress(ctx context.Context, wid uint32, hash []byte) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return false, ErrNotFound
	}
	_, exists := state.Paths[hashKey(hash)]
	return exists, nil
}

func (db *FileDB) AddTX(ctx context.Context, wid uint32, tx *wire.MsgTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, err := db.requireBatch(wid)
	if err != nil {
		return err
	}
	for _, in := range tx.TxIn {
		for account, coins := range state.Coins {
			for i, c := range coins {
				if c.Outpoint == in.PreviousOutPoint {
					state.Coins[account] = append(coins[:i], coins[i+1:]...)
					break
				}
			}
		}
	}
	return nil
}

func (db *FileDB) GetCoins(ctx context.Context, wid, account uint32, confirmedOnly bool) ([]Coin, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return nil, ErrNotFound
	}
	var out []Coin
	for _, c := range state.Coins[account] {
		if confirmedOnly && !c.Confirmed(db.height) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// SetCoins replaces the unspent coin set for (wid, account), used by a
// chain-sync process feeding observed outputs into the store. Not part
// of the DB interface: it is a store-specific loading hook, matching how
// MemDB.SetCoins is also store-specific rather than contract surface.
func (db *FileDB) SetCoins(wid, account uint32, coins []Coin) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	state, ok := db.wallets[wid]
	if !ok {
		return ErrNotFound
	}
	state.Coins[account] = append([]Coin(nil), coins...)
	return db.writeWalletLocked(wid, state)
}

// SetHeight records the chain height the store believes it is synced to.
func (db *FileDB) SetHeight(h int32) { db.height = h }

func (db *FileDB) Height(ctx context.Context) (int32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.height, nil
}

var _ DB = (*FileDB)(nil)
