package wallet

import "errors"

// Error kinds raised by the engine (§7). Callers compare with errors.Is;
// call sites wrap these with fmt.Errorf("...: %w", ErrX) to attach
// context without losing the sentinel identity.
var (
	ErrNotInitialized     = errors.New("wallet: not initialized")
	ErrAlreadyInitialized = errors.New("wallet: already initialized")
	ErrAccountNotFound    = errors.New("wallet: account not found")
	ErrKeyExists          = errors.New("wallet: key already present in account")
	ErrKeyAbsent          = errors.New("wallet: key not present in account")
	ErrKeyLimit           = errors.New("wallet: account key set already at limit n")
	ErrSharedScript       = errors.New("wallet: multisig key set collides with an existing account")
	ErrMasterLocked       = errors.New("wallet: master key is locked")
	ErrBadPassphrase      = errors.New("wallet: passphrase did not decrypt to valid key material")
	ErrInsufficientFunds  = errors.New("wallet: insufficient funds to cover outputs and fee")
	ErrCoinLocked         = errors.New("wallet: selected coin is reserved by another in-flight fund")
	ErrCheckTransaction   = errors.New("wallet: transaction failed sanity check")
	ErrCheckInputs        = errors.New("wallet: transaction failed input check")
	ErrNotFullySigned     = errors.New("wallet: transaction is not fully signed")
	ErrKeyMismatch        = errors.New("wallet: derived private key does not match keyring public key")
	ErrTimerWipeStale     = errors.New("wallet: auto-wipe timer fired after passphrase protection was removed; key remains in the clear")
)
