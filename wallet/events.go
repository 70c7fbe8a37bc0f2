package wallet

import (
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// EventKind identifies one of the four event names the core emits (§6).
type EventKind int

const (
	// EventSend fires once a transaction has been fully signed and
	// handed to the database's transaction index (addTX).
	EventSend EventKind = iota
	// EventAddress fires when syncOutputDepth derives new receive
	// addresses ahead of observed chain activity.
	EventAddress
	// EventBalance fires when a balance snapshot has been recomputed.
	EventBalance
	// EventError fires for asynchronous errors that are not returned
	// directly to a caller (e.g. a timer-driven wipe failure).
	EventError
)

// Event is the payload delivered to a registered listener. Only the field
// matching Kind is populated.
type Event struct {
	Kind       EventKind
	WalletID   string
	TX         *wire.MsgTx
	Addresses  []*Keyring
	Balance    *BalanceSnapshot
	Err        error
}

// BalanceSnapshot is the "balanceSnapshot" payload named in §6, grounded on
// btcwallet's confirmed/unconfirmed split (other_examples
// blackbatteam001-btcwallet/account.go CalculateBalance).
type BalanceSnapshot struct {
	Confirmed   int64
	Unconfirmed int64
	Height      int32
}

// EventListener receives events emitted by a Wallet. Registered listeners
// are invoked synchronously and in registration order; a listener that
// blocks delays the emitting operation, matching the single-threaded
// per-wallet scheduling model in §5 — listeners must not themselves call
// back into the Wallet.
type EventListener func(Event)

// eventBus is a minimal, per-wallet pub/sub, grounded on the registered
// client pattern used by pktwallet's NotificationServer: a mutex-guarded
// slice of subscribers, invoked in order.
type eventBus struct {
	mu        sync.Mutex
	listeners []EventListener
}

func newEventBus() *eventBus {
	return &eventBus{}
}

// Subscribe registers l to receive all future events.
func (b *eventBus) Subscribe(l EventListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Emit delivers ev to every registered listener.
func (b *eventBus) Emit(ev Event) {
	b.mu.Lock()
	listeners := make([]EventListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
