package wallet

import (
	"math/rand"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/opd-ai/hdwallet/walletdb"
)

// SelectionStrategy names one of the three coin-ordering strategies §4.4
// step 4 allows before the greedy accumulate-until-covered pass runs.
type SelectionStrategy string

const (
	// SelectAge orders coins oldest-first (lowest confirmation height
	// first), the default strategy: preferring aged coins reduces the
	// chance a spend gets invalidated by a reorg.
	SelectAge SelectionStrategy = "age"
	// SelectRandom shuffles coins before selection, useful for privacy
	// (avoids a deterministic coin-aging fingerprint).
	SelectRandom SelectionStrategy = "random"
	// SelectAll uses every available coin, skipping the accumulate pass
	// entirely; useful for sweep transactions.
	SelectAll SelectionStrategy = "all"
)

// dustLimit is the minimum non-dust output value, matching Bitcoin
// Core's default relay policy for a P2PKH output at the default min relay
// fee; change below this is folded into the fee instead of created.
const dustLimit = btcutil.Amount(546)

// estimateInputVBytes returns the approximate virtual size contribution
// of spending a coin with the given keyring, grounded on the per-type
// constants dcrlnd's input.TxSizeEstimator uses (chanfunding/coin_select.go)
// adapted to the script kinds this engine derives in keyring.go.
func estimateInputVBytes(ring *Keyring) int {
	switch {
	case ring.Witness && ring.N <= 1:
		return 68 // P2WPKH: 36 (outpoint) + 1 (scriptSig len=0) + 4 (sequence) + 27 (witness/4)
	case ring.Witness && ring.N > 1:
		return 41 + (34 * int(ring.N+1) / 4) // P2WSH multisig: base + witness/4
	case ring.N > 1:
		return 41 + 34*int(ring.N) + 10 // P2SH multisig: base + redeem script + sigs
	default:
		return 148 // legacy P2PKH
	}
}

// estimateOutputVBytes returns the size contribution of a single output.
func estimateOutputVBytes(pkScript []byte) int {
	return 8 + 1 + len(pkScript) // value + varint script length + script
}

// estimateFee computes the fee for a transaction of the given total
// virtual size at rate satoshis per kilobyte, grounded on
// chainfee.AtomPerKByte.FeeForSize in the same teacher file.
func estimateFee(rate btcutil.Amount, vbytes int) btcutil.Amount {
	fee := rate * btcutil.Amount(vbytes) / 1000
	if fee == 0 && vbytes > 0 {
		fee = 1
	}
	return fee
}

// orderCoins arranges coins per strategy; age is ascending height with
// unconfirmed (height < 0) coins last, random is a Fisher-Yates shuffle,
// all returns coins unchanged (the caller uses every one regardless of
// order).
func orderCoins(coins []walletdb.Coin, strategy SelectionStrategy) []walletdb.Coin {
	ordered := make([]walletdb.Coin, len(coins))
	copy(ordered, coins)

	switch strategy {
	case SelectRandom:
		rand.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	case SelectAll:
		// no reordering: every coin is used.
	default: // SelectAge
		sort.SliceStable(ordered, func(i, j int) bool {
			hi, hj := ordered[i].Height, ordered[j].Height
			if hi < 0 {
				hi = int32(1) << 30
			}
			if hj < 0 {
				hj = int32(1) << 30
			}
			return hi < hj
		})
	}
	return ordered
}

// selectionResult is the outcome of coinSelect: the coins to spend, the
// fee charged, and the change amount to return to the wallet (0 if
// change would be dust).
type selectionResult struct {
	Coins   []walletdb.Coin
	Fee     btcutil.Amount
	Change  btcutil.Amount
}

// coinSelectOptions mirrors the knobs named in §4.4 step 4.
type coinSelectOptions struct {
	Strategy     SelectionStrategy
	Rate         btcutil.Amount // satoshis/KB
	Round        bool           // round size up to nearest KB before fee math
	Free         bool           // allow zero fee
	HardFee      btcutil.Amount // overrides computed fee when > 0
	SubtractFee  bool
	ChangeScript []byte
	M, N         uint8 // multisig parameters of the spending account, for input size estimate
	Witness      bool
}

// coinSelect runs the greedy accumulate-and-reprice loop from §4.4 step 4
// over the ordered coin set, grounded on dcrlnd's CoinSelect/
// CoinSelectSubtractFees (chanfunding/coin_select.go): select coins,
// estimate the resulting transaction's size, reprice, and repeat until
// the overshoot covers the fee.
func coinSelect(coins []walletdb.Coin, outputTotal btcutil.Amount, outputVBytes int, opts coinSelectOptions) (*selectionResult, error) {
	ordered := orderCoins(coins, opts.Strategy)

	if opts.Strategy == SelectAll {
		return allCoinsResult(ordered, outputTotal, outputVBytes, opts)
	}

	sampleRing := &Keyring{Witness: opts.Witness, M: opts.M, N: opts.N}
	inputVBytes := estimateInputVBytes(sampleRing)

	needed := outputTotal
	for {
		total, selected, err := accumulate(ordered, needed)
		if err != nil {
			return nil, err
		}

		vbytes := len(selected)*inputVBytes + outputVBytes + 10
		if opts.Round {
			vbytes = ((vbytes + 999) / 1000) * 1000
		}

		fee := opts.HardFee
		if fee == 0 && !opts.Free {
			fee = estimateFee(opts.Rate, vbytes)
		}

		overshoot := total - outputTotal

		// When the fee is subtracted from an output (§4.4 step 4's
		// subtractFee knob), the caller takes it out of mtx.TxOut[0]
		// afterward (see fund()) — inputs only need to cover outputTotal
		// itself, and the overshoot is change outright, not
		// change-after-fee. Folding fee into "needed" here as well would
		// charge the fee twice: once from the output, once from the
		// inputs set aside for it.
		if opts.SubtractFee {
			change := overshoot
			if change < dustLimit {
				fee += change
				change = 0
			}
			return &selectionResult{Coins: selected, Fee: fee, Change: change}, nil
		}

		if overshoot < fee {
			needed = outputTotal + fee
			continue
		}

		change := overshoot - fee
		if change < dustLimit {
			fee += change
			change = 0
		}
		return &selectionResult{Coins: selected, Fee: fee, Change: change}, nil
	}
}

func accumulate(coins []walletdb.Coin, amt btcutil.Amount) (btcutil.Amount, []walletdb.Coin, error) {
	var total btcutil.Amount
	for i, c := range coins {
		total += btcutil.Amount(c.Value)
		if total >= amt {
			return total, coins[:i+1], nil
		}
	}
	return 0, nil, ErrInsufficientFunds
}

func allCoinsResult(coins []walletdb.Coin, outputTotal btcutil.Amount, outputVBytes int, opts coinSelectOptions) (*selectionResult, error) {
	var total btcutil.Amount
	for _, c := range coins {
		total += btcutil.Amount(c.Value)
	}
	sampleRing := &Keyring{Witness: opts.Witness, M: opts.M, N: opts.N}
	vbytes := len(coins)*estimateInputVBytes(sampleRing) + outputVBytes + 10
	fee := opts.HardFee
	if fee == 0 && !opts.Free {
		fee = estimateFee(opts.Rate, vbytes)
	}
	// See the analogous branch in coinSelect: when subtractFee is set the
	// fee comes out of an output afterward, so "all coins" only needs to
	// cover outputTotal, not outputTotal+fee.
	required := outputTotal
	if !opts.SubtractFee {
		required += fee
	}
	if total < required {
		return nil, ErrInsufficientFunds
	}
	change := total - required
	if change < dustLimit {
		fee += change
		change = 0
	}
	return &selectionResult{Coins: coins, Fee: fee, Change: change}, nil
}
