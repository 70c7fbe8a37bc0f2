// Package walletlog provides the engine's package-level logging hook,
// following the UseLogger convention used throughout btcsuite (e.g.
// btcd/rpcclient, btcwallet): every package that wants to log declares a
// disabled-by-default btclog.Logger and exposes a setter, so a host
// application can wire in its own logging backend (or none) without the
// engine importing a concrete log sink.
package walletlog

import "github.com/btcsuite/btclog"

// log is the package-wide logger, read directly by walletdb and handed
// to wallet through wallet.Context.Log. It does nothing until UseLogger
// installs a backend.
var log = btclog.Disabled

// UseLogger installs logger as the engine-wide log sink, grounded on
// btcd's standard per-package UseLogger(logger btclog.Logger) pattern.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Logger returns the currently installed logger, for packages that accept
// one via wallet.Context instead of calling UseLogger directly.
func Logger() btclog.Logger {
	return log
}
