package wallet

import (
	"github.com/btcsuite/btclog"
	"github.com/opd-ai/hdwallet/feeestimator"
	"github.com/opd-ai/hdwallet/network"
	"github.com/opd-ai/hdwallet/walletdb"
	"github.com/opd-ai/hdwallet/workerpool"
)

// Context bundles every collaborator the engine needs, injected
// explicitly instead of resolved through package-level singletons (§9
// Design Notes: "prefer an explicit context struct... over a global
// registry"). One Context is shared by every Wallet opened against the
// same database/network pair; Wallet itself holds no package-level
// state.
type Context struct {
	DB      walletdb.DB
	Network *network.Network
	Fees    feeestimator.FeeEstimator // nil is valid: fund() falls back to Network.GetRate()
	Pool    *workerpool.Pool          // nil is valid: sign() runs synchronously
	Log     btclog.Logger
}

// logger returns c.Log, or a disabled logger if none was configured, so
// call sites never need a nil check.
func (c *Context) logger() btclog.Logger {
	if c.Log == nil {
		return btclog.Disabled
	}
	return c.Log
}
