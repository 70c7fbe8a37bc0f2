// Package network implements the "Network" collaborator named in the
// engine's external-interfaces contract: magic-number identification,
// chain parameters, and the default relay fee rate consulted when a fee
// estimator is unavailable.
package network

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// DefaultRelayFeePerKB is the fallback satoshis-per-kilobyte rate used when
// options.rate is absent and the fee estimator cannot be reached (§4.4
// step 3).
const DefaultRelayFeePerKB = btcutil.Amount(1000)

// Network pairs a chaincfg.Params with the magic number used for wallet-ID
// derivation (§4.1) and a human-readable type name.
type Network struct {
	Magic  uint32
	Type   string
	Params *chaincfg.Params
}

var (
	// Main is the production Bitcoin network.
	Main = &Network{
		Magic:  0xD9B4BEF9,
		Type:   "main",
		Params: &chaincfg.MainNetParams,
	}
	// Testnet3 is Bitcoin's public test network.
	Testnet3 = &Network{
		Magic:  0x0709110B,
		Type:   "testnet3",
		Params: &chaincfg.TestNet3Params,
	}
	// Regtest is a local regression-test network.
	Regtest = &Network{
		Magic:  0xDAB5BFFA,
		Type:   "regtest",
		Params: &chaincfg.RegressionNetParams,
	}
	// Simnet is btcd's simulation network, used in unit tests.
	Simnet = &Network{
		Magic:  0x12141c16,
		Type:   "simnet",
		Params: &chaincfg.SimNetParams,
	}

	byMagic = map[uint32]*Network{
		Main.Magic:     Main,
		Testnet3.Magic: Testnet3,
		Regtest.Magic:  Regtest,
		Simnet.Magic:   Simnet,
	}
)

// FromMagic resolves a Network by its magic number.
func FromMagic(magic uint32) (*Network, error) {
	n, ok := byMagic[magic]
	if !ok {
		return nil, fmt.Errorf("network: unknown magic %#x", magic)
	}
	return n, nil
}

// GetRate returns the network's default relay rate in satoshis per
// kilobyte, consulted by fund() when no fee estimator is configured and no
// explicit rate was requested.
func (n *Network) GetRate() btcutil.Amount {
	return DefaultRelayFeePerKB
}
