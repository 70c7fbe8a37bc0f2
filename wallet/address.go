package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/opd-ai/hdwallet/network"
)

// ValidateAddress reports whether s decodes as a valid address for net,
// and the decoded btcutil.Address on success. Adapted from the teacher's
// hand-rolled regex validator (wallet/address.go IsBitcoinAddress): that
// approach could accept strings with the right shape but a bad checksum
// or an address from the wrong network. btcutil.DecodeAddress already
// performs the base58check/bech32 checksum and version-byte checks, so it
// replaces the regex outright rather than wrapping it (see DESIGN.md).
func ValidateAddress(s string, net *network.Network) (btcutil.Address, error) {
	return btcutil.DecodeAddress(s, net.Params)
}
