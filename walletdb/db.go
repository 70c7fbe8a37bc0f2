// Package walletdb defines the WalletDB collaborator named in the engine's
// external-interfaces contract (§6) and ships an in-memory plus an
// AES-GCM-encrypted file-backed implementation of it.
//
// The contract deliberately says nothing about page layout, indexing
// strategy, or transaction isolation beyond "per-wallet batches keyed by a
// numeric wallet identifier" (§2) — those remain the concrete store's
// business. What the core depends on is Start/Commit/Drop batch discipline
// and the byte-exact record layouts in §6/§4.3, which this package's codec
// implements so two independent stores stay wire-compatible.
package walletdb

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
)

// ErrNoBatch is returned by Commit/Drop when no batch is open for a wid, and
// by Save*/mutating calls when invoked outside Start/Commit.
var ErrNoBatch = errors.New("walletdb: no open batch for this wallet")

// ErrAlreadyRegistered is returned by Register when wid already exists.
var ErrAlreadyRegistered = errors.New("walletdb: wallet already registered")

// ErrNotFound is returned when a lookup (account, path, wallet) misses.
var ErrNotFound = errors.New("walletdb: not found")

// WalletRecord is the byte-exact persisted wallet row (§6):
//
//	[network_magic:u32LE][wid:u32LE][varstring id][initialized:u8]
//	[accountDepth:u32LE][token:32 bytes][tokenDepth:u32LE][varbytes master_record]
type WalletRecord struct {
	NetworkMagic uint32
	WID          uint32
	ID           string
	Initialized  bool
	AccountDepth uint32
	Token        [32]byte
	TokenDepth   uint32
	Master       []byte // encoded MasterKeyRecord, see walletdb/codec.go
}

// AccountRecord is the byte-exact persisted account row (§6):
//
//	[network_magic:u32LE][varstring name][initialized:u8][type:u8][m:u8][n:u8]
//	[witness:u8][accountIndex:u32LE][receiveDepth:u32LE][changeDepth:u32LE]
//	[accountKey:82 bytes][keyCount:u8][keys: keyCount × 82 bytes]
type AccountRecord struct {
	NetworkMagic uint32
	Name         string
	Initialized  bool
	Type         uint8 // AccountTypePubkeyHash or AccountTypeMultisig
	M            uint8
	N            uint8
	Witness      bool
	AccountIndex uint32
	ReceiveDepth uint32
	ChangeDepth  uint32
	AccountKey   []byte // 82-byte raw HD key
	Keys         [][]byte
}

const (
	// AccountTypePubkeyHash is a single-key P2PKH/P2WPKH account.
	AccountTypePubkeyHash uint8 = 0
	// AccountTypeMultisig is coerced whenever n > 1 (§3 Account.type).
	AccountTypeMultisig uint8 = 1
)

// PathRecord is the reverse-index entry mapping an address hash back to
// its derivation path (§3 Path).
type PathRecord struct {
	WID     uint32
	Account uint32
	Change  uint8
	Index   uint32
	Hash    []byte // 20 (P2PKH/P2SH/P2WPKH) or 32 (P2WSH) bytes
}

// Coin is an unspent output available to the fund step (§4.4). Height of -1
// means unconfirmed, matching the convention used throughout the pack
// (other_examples blackbatteam001-btcwallet/account.go).
type Coin struct {
	Outpoint wire.OutPoint
	Value    int64
	PkScript []byte
	Height   int32
}

// Confirmed reports whether the coin has at least one confirmation at the
// given current chain height.
func (c Coin) Confirmed(currentHeight int32) bool {
	return c.Height >= 0 && c.Height <= currentHeight
}

// DB is the WalletDB collaborator (§6). All methods that mutate persisted
// state are only valid between a matching Start and Commit/Drop pair for
// the same wid; implementations should return ErrNoBatch otherwise.
type DB interface {
	// Register creates storage for a new wallet and assigns/accepts its
	// wid. Unregister removes it (destroy, §4.1).
	Register(ctx context.Context, wid uint32, rec *WalletRecord) error
	Unregister(ctx context.Context, wid uint32) error

	// Start opens a batch for wid; Commit seals it atomically; Drop
	// abandons it, reverting any Save* calls made since Start (§4.1
	// batch discipline).
	Start(ctx context.Context, wid uint32) error
	Commit(ctx context.Context, wid uint32) error
	Drop(ctx context.Context, wid uint32) error

	SaveWallet(ctx context.Context, rec *WalletRecord) error
	SaveAccount(ctx context.Context, wid uint32, rec *AccountRecord) error
	SaveAddresses(ctx context.Context, wid uint32, paths []PathRecord) error

	GetWallet(ctx context.Context, wid uint32) (*WalletRecord, error)
	GetAccountByIndex(ctx context.Context, wid, index uint32) (*AccountRecord, error)
	GetAccountByName(ctx context.Context, wid uint32, name string) (*AccountRecord, error)
	HasAccount(ctx context.Context, wid, index uint32) (bool, error)
	GetAccounts(ctx context.Context, wid uint32) ([]*AccountRecord, error)
	GetAccountIndex(ctx context.Context, wid uint32, name string) (uint32, error)

	GetAddressPath(ctx context.Context, wid uint32, hash []byte) (*PathRecord, error)
	GetWalletPaths(ctx context.Context, wid uint32) ([]PathRecord, error)
	GetAddressPaths(ctx context.Context, hash []byte) ([]PathRecord, error)
	HasAddress(ctx context.Context, wid uint32, hash []byte) (bool, error)

	// AddTX records a fully-signed transaction in the transaction index
	// ("TXDB", out of scope per §1 beyond this contract point) and marks
	// the coins it spends as consumed.
	AddTX(ctx context.Context, wid uint32, tx *wire.MsgTx) error

	// GetCoins returns unspent coins for an account; confirmedOnly
	// restricts to coins with at least one confirmation (§4.4 step 1).
	GetCoins(ctx context.Context, wid, account uint32, confirmedOnly bool) ([]Coin, error)

	// Height returns the current chain height the store believes it is
	// synced to.
	Height(ctx context.Context) (int32, error)
}
