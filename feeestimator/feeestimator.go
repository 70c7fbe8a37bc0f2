// Package feeestimator defines the FeeEstimator collaborator named in the
// engine's external-interfaces contract (§6: "db.fees.estimateFee()") and
// ships a static fallback implementation.
package feeestimator

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
)

// FeeEstimator returns a satoshis-per-kilobyte rate for a transaction
// that should confirm within confTarget blocks. fund() consults it when
// options.rate is absent (§4.4 step 3), falling back to the network's
// default relay rate if it returns an error.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, confTarget int32) (btcutil.Amount, error)
}

// Static is a fixed-rate FeeEstimator, useful for tests and for
// deployments that simply want a configured flat rate instead of a live
// mempool-based estimator.
type Static struct {
	RatePerKB btcutil.Amount
}

// EstimateFee implements FeeEstimator.
func (s Static) EstimateFee(ctx context.Context, confTarget int32) (btcutil.Amount, error) {
	return s.RatePerKB, nil
}
