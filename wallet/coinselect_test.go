package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/opd-ai/hdwallet/walletdb"
)

func makeCoin(index uint32, value int64, height int32) walletdb.Coin {
	return walletdb.Coin{
		Outpoint: wire.OutPoint{Index: index},
		Value:    value,
		PkScript: []byte{0x00, 0x14, 1, 2, 3, 4},
		Height:   height,
	}
}

func TestCoinSelect_SelectsEnoughToCoverOutputAndFee(t *testing.T) {
	coins := []walletdb.Coin{
		makeCoin(0, 50000, 100),
		makeCoin(1, 50000, 101),
		makeCoin(2, 50000, 102),
	}
	result, err := coinSelect(coins, 60000, estimateOutputVBytes([]byte{0x00, 0x14, 1, 2, 3, 4}), coinSelectOptions{
		Strategy: SelectAge,
		Rate:     1000,
		Witness:  true,
		M:        1,
		N:        1,
	})
	if err != nil {
		t.Fatalf("coinSelect: %v", err)
	}
	var total btcutil.Amount
	for _, c := range result.Coins {
		total += btcutil.Amount(c.Value)
	}
	if total < 60000+result.Fee {
		t.Fatalf("selected total %d does not cover output+fee %d", total, 60000+result.Fee)
	}
}

func TestCoinSelect_InsufficientFunds(t *testing.T) {
	coins := []walletdb.Coin{makeCoin(0, 1000, 100)}
	_, err := coinSelect(coins, 60000, 31, coinSelectOptions{Strategy: SelectAge, Rate: 1000, N: 1, M: 1})
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestCoinSelect_DustChangeFoldedIntoFee(t *testing.T) {
	// Craft a coin set whose overshoot after the output and estimated fee
	// lands under the dust limit, so coinSelect should report zero change.
	coins := []walletdb.Coin{makeCoin(0, 60100, 100)}
	result, err := coinSelect(coins, 60000, 31, coinSelectOptions{Strategy: SelectAge, Rate: 1, N: 1, M: 1, Witness: true})
	if err != nil {
		t.Fatalf("coinSelect: %v", err)
	}
	if result.Change != 0 {
		t.Fatalf("expected dust change to be folded into the fee, got change=%d", result.Change)
	}
}

func TestCoinSelect_AllStrategy_UsesEveryCoin(t *testing.T) {
	coins := []walletdb.Coin{
		makeCoin(0, 10000, 100),
		makeCoin(1, 10000, 101),
		makeCoin(2, 10000, 102),
	}
	result, err := coinSelect(coins, 5000, 31, coinSelectOptions{Strategy: SelectAll, Rate: 1000, N: 1, M: 1, Witness: true})
	if err != nil {
		t.Fatalf("coinSelect: %v", err)
	}
	if len(result.Coins) != len(coins) {
		t.Fatalf("expected SelectAll to use all %d coins, got %d", len(coins), len(result.Coins))
	}
}

func TestOrderCoins_AgeOrdersAscendingHeightWithUnconfirmedLast(t *testing.T) {
	coins := []walletdb.Coin{
		makeCoin(0, 1000, 300),
		makeCoin(1, 1000, -1),
		makeCoin(2, 1000, 100),
	}
	ordered := orderCoins(coins, SelectAge)
	if ordered[0].Outpoint.Index != 2 || ordered[1].Outpoint.Index != 0 || ordered[2].Outpoint.Index != 1 {
		t.Fatalf("unexpected age ordering: %+v", ordered)
	}
}

func TestEstimateInputVBytes_WitnessCheaperThanLegacy(t *testing.T) {
	witness := estimateInputVBytes(&Keyring{Witness: true, M: 1, N: 1})
	legacy := estimateInputVBytes(&Keyring{Witness: false, M: 1, N: 1})
	if witness >= legacy {
		t.Fatalf("expected a P2WPKH input (%d vbytes) to be cheaper than legacy P2PKH (%d vbytes)", witness, legacy)
	}
}

func TestEstimateFee_RoundsUpFromZero(t *testing.T) {
	fee := estimateFee(1, 1)
	if fee != 1 {
		t.Fatalf("expected a minimum fee of 1 satoshi for any non-zero size, got %d", fee)
	}
	if estimateFee(0, 0) != 0 {
		t.Fatalf("expected zero fee for zero rate and zero size")
	}
}
