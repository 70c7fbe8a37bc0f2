package wallet

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/opd-ai/hdwallet/walletdb"
)

// TxOutput is the caller-supplied output request for createTX/send (§4.4).
type TxOutput struct {
	PkScript []byte
	Value    btcutil.Amount
}

// FundOptions mirrors §4.4 step 4's knobs.
type FundOptions struct {
	Account     uint32
	HasAccount  bool // false selects the default (account 0)
	Confirmed   bool
	Strategy    SelectionStrategy
	Rate        btcutil.Amount
	Round       bool
	Free        bool
	HardFee     btcutil.Amount
	SubtractFee bool

	// force lets a caller that already holds the fund lock (send, via
	// createTX) recurse into fund without deadlocking (§5: "a force=true
	// parameter on fund allows a caller already holding the fund lock to
	// recurse").
	force bool
}

// CreateTXOptions bundles a FundOptions with the requested outputs.
type CreateTXOptions struct {
	Outputs []TxOutput
	Fund    FundOptions
}

// SignOptions controls the sighash type used by sign().
type SignOptions struct {
	HashType txscript.SigHashType // default txscript.SigHashAll
}

// resolveAccount returns the account to operate on, defaulting to 0.
func (w *Wallet) resolveAccount(opts FundOptions) (*Account, error) {
	idx := uint32(0)
	if opts.HasAccount {
		idx = opts.Account
	}
	acct, ok := w.accounts[idx]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !acct.Initialized() {
		return nil, ErrNotInitialized
	}
	return acct, nil
}

// fund implements §4.4 fund(mtx, options): gather coins, filter locked
// ones, run coin selection, append inputs and (if needed) a change
// output to mtx.
func (w *Wallet) fund(ctx context.Context, mtx *wire.MsgTx, opts FundOptions) error {
	if !opts.force {
		w.fundLock.Lock()
		defer w.fundLock.Unlock()
	}

	if !w.initialized {
		return ErrNotInitialized
	}
	acct, err := w.resolveAccount(opts)
	if err != nil {
		return err
	}

	coins, err := w.ctx.DB.GetCoins(ctx, w.wid, acct.Index(), opts.Confirmed)
	if err != nil {
		return fmt.Errorf("wallet: fund: %w", err)
	}

	available := make([]walletdb.Coin, 0, len(coins))
	for _, c := range coins {
		if w.isLocked(c.Outpoint) {
			continue
		}
		available = append(available, c)
	}

	var outputTotal btcutil.Amount
	outputVBytes := 0
	for _, out := range mtx.TxOut {
		outputTotal += btcutil.Amount(out.Value)
		outputVBytes += estimateOutputVBytes(out.PkScript)
	}

	rate := opts.Rate
	if rate == 0 {
		if w.ctx.Fees != nil {
			if est, ferr := w.ctx.Fees.EstimateFee(ctx, 6); ferr == nil {
				rate = est
			}
		}
		if rate == 0 {
			rate = w.ctx.Network.GetRate()
		}
	}

	changeRing := acct.ChangeAddress()
	if changeRing == nil {
		return fmt.Errorf("wallet: fund: account %d has no change address", acct.Index())
	}
	outputVBytes += estimateOutputVBytes(changeRing.PkScript)

	strategy := opts.Strategy
	if strategy == "" {
		strategy = SelectAge
	}

	result, err := coinSelect(available, outputTotal, outputVBytes, coinSelectOptions{
		Strategy:     strategy,
		Rate:         rate,
		Round:        opts.Round,
		Free:         opts.Free,
		HardFee:      opts.HardFee,
		SubtractFee:  opts.SubtractFee,
		ChangeScript: changeRing.PkScript,
		M:            acct.M(),
		N:            acct.N(),
		Witness:      acct.Witness(),
	})
	if err != nil {
		return err
	}

	for _, c := range result.Coins {
		mtx.AddTxIn(wire.NewTxIn(&c.Outpoint, nil, nil))
		w.lockCoin(c.Outpoint)
	}

	if opts.SubtractFee && len(mtx.TxOut) > 0 {
		mtx.TxOut[0].Value -= int64(result.Fee)
	}

	if result.Change > 0 {
		mtx.AddTxOut(wire.NewTxOut(int64(result.Change), changeRing.PkScript))
	}

	w.ctx.logger().Debugf("wallet %d: fund selected %d coin(s) for account %d, fee=%d change=%d", w.wid, len(result.Coins), acct.Index(), result.Fee, result.Change)
	return nil
}

// bip69Sort sorts mtx's inputs by (prev_txid little-endian bytes,
// prev_index) and outputs by (value ascending, script bytes
// lexicographic), per §4.4 createTX / §8 property 10.
func bip69Sort(mtx *wire.MsgTx) {
	sort.SliceStable(mtx.TxIn, func(i, j int) bool {
		a, b := mtx.TxIn[i].PreviousOutPoint, mtx.TxIn[j].PreviousOutPoint
		cmp := bytes.Compare(a.Hash[:], b.Hash[:])
		if cmp != 0 {
			return cmp < 0
		}
		return a.Index < b.Index
	})
	sort.SliceStable(mtx.TxOut, func(i, j int) bool {
		a, b := mtx.TxOut[i], mtx.TxOut[j]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		return bytes.Compare(a.PkScript, b.PkScript) < 0
	})
}

// checkTransaction implements the CheckTransaction sanity predicate named
// in §4.4/§7: output values in range, no duplicate inputs, non-empty,
// within size cap.
func checkTransaction(mtx *wire.MsgTx) error {
	if len(mtx.TxIn) == 0 || len(mtx.TxOut) == 0 {
		return ErrCheckTransaction
	}
	seen := make(map[wire.OutPoint]struct{}, len(mtx.TxIn))
	for _, in := range mtx.TxIn {
		if _, dup := seen[in.PreviousOutPoint]; dup {
			return ErrCheckTransaction
		}
		seen[in.PreviousOutPoint] = struct{}{}
	}
	var total int64
	for _, out := range mtx.TxOut {
		if out.Value < 0 || out.Value > btcutil.MaxSatoshi {
			return ErrCheckTransaction
		}
		total += out.Value
	}
	if total > btcutil.MaxSatoshi {
		return ErrCheckTransaction
	}
	if mtx.SerializeSize() > wire.MaxBlockPayload {
		return ErrCheckTransaction
	}
	return nil
}

// checkInputs implements the CheckInputs predicate: every input's coin
// must be resolvable, its value non-negative, and (if confirmed) its
// height must not exceed the current chain height.
func checkInputs(ctx context.Context, db walletdb.DB, wid uint32, mtx *wire.MsgTx, height int32) error {
	accounts, err := db.GetAccounts(ctx, wid)
	if err != nil {
		return fmt.Errorf("wallet: checkInputs: %w", err)
	}

	for _, in := range mtx.TxIn {
		found := false
		for _, acct := range accounts {
			coins, err := db.GetCoins(ctx, wid, acct.AccountIndex, false)
			if err != nil {
				continue
			}
			for _, c := range coins {
				if c.Outpoint != in.PreviousOutPoint {
					continue
				}
				if c.Value < 0 {
					return ErrCheckInputs
				}
				if c.Height >= 0 && c.Height > height {
					return ErrCheckInputs
				}
				found = true
			}
			if found {
				break
			}
		}
		if !found {
			return ErrCheckInputs
		}
	}
	return nil
}

// pathedKeyring pairs a derived Keyring with the account it belongs to,
// since sign() needs the account's key material to rederive the private
// child.
type pathedKeyring struct {
	Account uint32
	Change  uint8
	Index   uint32
	Ring    *Keyring
}

// templateInputs derives the keyring for every input whose previous
// output belongs to this wallet and installs a signature-slot template
// on the input, without producing a signature (§4.4 createTX "Template"
// step; §4.1 scriptInputs()). For multisig inputs the template is the
// redeem/witness script wrapped the way appendMultisigScriptSig/
// appendMultisigWitness expect to find it on a later call; for single-key
// inputs there is no redeem material to pre-install, so only the keyring
// association is recorded. Templating an input that already carries a
// signature (from a prior sign() call) is a no-op, so calling this twice
// never discards an in-progress multisig signature.
func (w *Wallet) templateInputs(ctx context.Context, mtx *wire.MsgTx) (map[int]*pathedKeyring, error) {
	rings := make(map[int]*pathedKeyring, len(mtx.TxIn))
	for i, in := range mtx.TxIn {
		ring, err := w.findInputKeyring(ctx, in.PreviousOutPoint)
		if err != nil {
			continue // not our coin: nothing to template
		}
		rings[i] = ring
		if ring.Ring.N > 1 {
			if err := installMultisigTemplate(mtx, i, ring.Ring); err != nil {
				return nil, err
			}
		}
	}
	return rings, nil
}

// installMultisigTemplate writes the redeem/witness script placeholder
// for a multisig input's signature slot. It is idempotent: if the input
// already carries a scriptSig or witness (from a prior template or a
// partial signature), it leaves the input untouched.
func installMultisigTemplate(mtx *wire.MsgTx, i int, ring *Keyring) error {
	in := mtx.TxIn[i]
	if ring.Witness {
		if len(in.Witness) > 0 {
			return nil
		}
		in.Witness = wire.TxWitness{nil, ring.Script}
		return nil
	}
	if len(in.SignatureScript) > 0 {
		return nil
	}
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE).AddData(ring.Script).Script()
	if err != nil {
		return err
	}
	in.SignatureScript = script
	return nil
}

// findInputKeyring locates the account/path owning outpoint's previous
// output and derives its keyring.
func (w *Wallet) findInputKeyring(ctx context.Context, outpoint wire.OutPoint) (*pathedKeyring, error) {
	for _, acct := range w.accounts {
		coins, err := w.ctx.DB.GetCoins(ctx, w.wid, acct.Index(), false)
		if err != nil {
			continue
		}
		for _, c := range coins {
			if c.Outpoint != outpoint {
				continue
			}
			path, err := w.ctx.DB.GetAddressPath(ctx, w.wid, hashFromPkScript(c.PkScript))
			if err != nil {
				return nil, err
			}
			ring, err := acct.deriveKeyringAt(path.Change, path.Index)
			if err != nil {
				return nil, err
			}
			return &pathedKeyring{Account: acct.Index(), Change: path.Change, Index: path.Index, Ring: ring}, nil
		}
	}
	return nil, ErrAccountNotFound
}

// hashFromPkScript extracts the hash160/hash32 payload this engine uses as
// the reverse-index key, mirroring the hash selection in keyring.go's
// buildPubkeyHashRing/buildMultisigRing.
func hashFromPkScript(pkScript []byte) []byte {
	switch {
	case len(pkScript) == 25 && pkScript[0] == txscript.OP_DUP:
		return pkScript[3:23]
	case len(pkScript) == 23 && pkScript[0] == txscript.OP_HASH160:
		return pkScript[2:22]
	case len(pkScript) == 22 && pkScript[0] == txscript.OP_0:
		return pkScript[2:22]
	case len(pkScript) == 34 && pkScript[0] == txscript.OP_0:
		return pkScript[2:34]
	default:
		return nil
	}
}

// createTX implements §4.4 createTX(options).
func (w *Wallet) createTX(ctx context.Context, opts CreateTXOptions) (*wire.MsgTx, error) {
	mtx := wire.NewMsgTx(wire.TxVersion)
	for _, out := range opts.Outputs {
		mtx.AddTxOut(wire.NewTxOut(int64(out.Value), out.PkScript))
	}

	if err := w.fund(ctx, mtx, opts.Fund); err != nil {
		return nil, err
	}

	bip69Sort(mtx)

	if err := checkTransaction(mtx); err != nil {
		return nil, err
	}
	height, err := w.ctx.DB.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: createTX: %w", err)
	}
	if err := checkInputs(ctx, w.ctx.DB, w.wid, mtx, height); err != nil {
		return nil, err
	}

	if _, err := w.templateInputs(ctx, mtx); err != nil {
		return nil, fmt.Errorf("wallet: createTX: %w", err)
	}

	return mtx, nil
}

// sign implements §4.4 sign(mtx, options): derive child private keys,
// verify them against each ring's public key, produce signatures, and
// fill each input's scriptSig/witness. Uses the worker pool when
// configured (§5 suspension points).
func (w *Wallet) sign(ctx context.Context, mtx *wire.MsgTx, opts SignOptions) (int, error) {
	rings, err := w.templateInputs(ctx, mtx)
	if err != nil {
		return 0, err
	}
	if len(rings) == 0 {
		return 0, nil
	}

	master, err := w.unlockedMaster()
	if err != nil {
		return 0, err
	}

	hashType := opts.HashType
	if hashType == 0 {
		hashType = txscript.SigHashAll
	}

	sigHashes := txscript.NewTxSigHashes(mtx, w.prevOutputFetcher(ctx, mtx))

	signOne := func(_ context.Context, i int) error {
		ring, ok := rings[i]
		if !ok {
			return nil
		}
		return w.signInput(mtx, sigHashes, i, ring, master, hashType)
	}

	if w.ctx.Pool != nil {
		if err := w.ctx.Pool.SignAll(ctx, len(mtx.TxIn), signOne); err != nil {
			w.ctx.logger().Warnf("wallet %d: sign failed: %v", w.wid, err)
			return 0, err
		}
	} else {
		for i := range mtx.TxIn {
			if err := signOne(ctx, i); err != nil {
				w.ctx.logger().Warnf("wallet %d: sign failed: %v", w.wid, err)
				return 0, err
			}
		}
	}

	w.ctx.logger().Debugf("wallet %d: signed %d of %d input(s)", w.wid, len(rings), len(mtx.TxIn))
	return len(rings), nil
}

// signInput fills in the scriptSig/witness for a single input.
func (w *Wallet) signInput(mtx *wire.MsgTx, sigHashes *txscript.TxSigHashes, i int, pr *pathedKeyring, master *unlockedMasterHandle, hashType txscript.SigHashType) error {
	acct := w.accounts[pr.Account]
	childPriv, err := master.deriveChild(acct, pr.Change, pr.Index)
	if err != nil {
		return err
	}
	defer zeroPrivateKey(childPriv)

	if !childPriv.PubKey().IsEqual(pr.Ring.PublicKey) {
		return ErrKeyMismatch
	}

	coin, err := w.coinForInput(mtx.TxIn[i].PreviousOutPoint)
	if err != nil {
		return err
	}

	switch {
	case pr.Ring.Witness && pr.Ring.N <= 1:
		scriptCode, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
			AddData(pr.Ring.Hash).
			AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
			Script()
		if err != nil {
			return err
		}
		sig, err := txscript.RawTxInWitnessSignature(mtx, sigHashes, i, coin.Value, scriptCode, hashType, childPriv)
		if err != nil {
			return err
		}
		mtx.TxIn[i].Witness = wire.TxWitness{sig, childPriv.PubKey().SerializeCompressed()}
		return nil

	case pr.Ring.Witness && pr.Ring.N > 1:
		sig, err := txscript.RawTxInWitnessSignature(mtx, sigHashes, i, coin.Value, pr.Ring.Script, hashType, childPriv)
		if err != nil {
			return err
		}
		return appendMultisigWitness(mtx, i, pr.Ring, sig)

	case pr.Ring.N > 1:
		sig, err := txscript.RawTxInSignature(mtx, i, pr.Ring.Script, hashType, childPriv)
		if err != nil {
			return err
		}
		return appendMultisigScriptSig(mtx, i, pr.Ring, sig)

	default:
		script, err := txscript.SignatureScript(mtx, i, coin.PkScript, hashType, childPriv, true)
		if err != nil {
			return err
		}
		mtx.TxIn[i].SignatureScript = script
		return nil
	}
}

// appendMultisigScriptSig adds sig to the input's partial P2SH-multisig
// scriptSig, which always starts with the OP_FALSE bug-workaround prefix;
// the trailing redeem script is added once m signatures have accumulated. Existing
// signatures are recovered by decoding the current scriptSig's pushed
// data, so repeated calls (one per signer) compose correctly.
func appendMultisigScriptSig(mtx *wire.MsgTx, i int, ring *Keyring, sig []byte) error {
	existing, _ := txscript.PushedData(mtx.TxIn[i].SignatureScript)
	sigs := make([][]byte, 0, len(existing)+1)
	for _, d := range existing {
		if len(d) > 0 && !bytes.Equal(d, ring.Script) {
			sigs = append(sigs, d)
		}
	}
	sigs = append(sigs, sig)

	builder := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE)
	for _, s := range sigs {
		builder.AddData(s)
	}
	if len(sigs) >= int(ring.M) {
		builder.AddData(ring.Script)
	}
	script, err := builder.Script()
	if err != nil {
		return err
	}
	mtx.TxIn[i].SignatureScript = script
	return nil
}

// appendMultisigWitness is the witness-stack analogue of
// appendMultisigScriptSig for P2WSH multisig inputs.
func appendMultisigWitness(mtx *wire.MsgTx, i int, ring *Keyring, sig []byte) error {
	existing := mtx.TxIn[i].Witness
	sigs := make([][]byte, 0, len(existing)+1)
	for _, d := range existing {
		if len(d) > 0 && !bytes.Equal(d, ring.Script) {
			sigs = append(sigs, d)
		}
	}
	sigs = append(sigs, sig)

	witness := make(wire.TxWitness, 0, len(sigs)+2)
	witness = append(witness, nil) // OP_CHECKMULTISIG off-by-one bug placeholder
	witness = append(witness, sigs...)
	if len(sigs) >= int(ring.M) {
		witness = append(witness, ring.Script)
	}
	mtx.TxIn[i].Witness = witness
	return nil
}

func (w *Wallet) coinForInput(outpoint wire.OutPoint) (*walletdb.Coin, error) {
	for _, acct := range w.accounts {
		coins, err := w.ctx.DB.GetCoins(context.Background(), w.wid, acct.Index(), false)
		if err != nil {
			continue
		}
		for i := range coins {
			if coins[i].Outpoint == outpoint {
				return &coins[i], nil
			}
		}
	}
	return nil, ErrAccountNotFound
}

// prevOutputFetcher builds a txscript.PrevOutputFetcher over every coin
// referenced by mtx's inputs, required by NewTxSigHashes for BIP143-style
// sighash caching.
func (w *Wallet) prevOutputFetcher(ctx context.Context, mtx *wire.MsgTx) txscript.PrevOutputFetcher {
	outputs := make(map[wire.OutPoint]*wire.TxOut)
	for _, in := range mtx.TxIn {
		if coin, err := w.coinForInput(in.PreviousOutPoint); err == nil {
			outputs[in.PreviousOutPoint] = wire.NewTxOut(coin.Value, coin.PkScript)
		}
	}
	return txscript.NewMultiPrevOutFetcher(outputs)
}

func zeroPrivateKey(k *btcec.PrivateKey) {
	if k == nil {
		return
	}
	k.Zero()
}
