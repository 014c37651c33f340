package bundlecore

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultMaxAttempts retries exactly once, on the next block.
const DefaultMaxAttempts = 2

// Intent is one bundle the caller wants landed. Transactions carry no fees;
// the engine attaches fees computed from the anchor block.
type Intent struct {
	Transactions []UnsignedTransaction
	Signers      []SigningIdentity
	BlocksAhead  uint32
	Policy       PriorityFeePolicy
	MaxAttempts  int // 0 means DefaultMaxAttempts
}

// Engine wires FeeModel, Builder and Scheduler behind one call.
type Engine struct {
	Chain     ChainView
	Builder   *Builder
	Scheduler *Scheduler
	Logger    log.Logger
}

// Submit anchors on the latest block, prices and signs the intent, then runs
// the submission flow for anchor+BlocksAhead.
func (e *Engine) Submit(ctx context.Context, in Intent) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.Root()
	}
	if e.Chain == nil || e.Builder == nil || e.Scheduler == nil {
		return Result{}, invalidInput("engine needs a chain view, builder and scheduler")
	}
	if in.BlocksAhead == 0 {
		return Result{}, invalidInput("blocksAhead must be >= 1")
	}
	maxAttempts := in.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	anchor, err := e.Chain.LatestBlock(ctx)
	if err != nil {
		return Result{}, &TransportError{Op: "latest block", Err: err}
	}
	fees, err := ComputeFees(anchor.BaseFee, in.BlocksAhead, in.Policy)
	if err != nil {
		return Result{}, fmt.Errorf("compute fees: %w", err)
	}
	logger.Info("Computed bundle fees", "anchor", anchor.Number, "baseFee", FmtGwei(anchor.BaseFee),
		"blocksAhead", in.BlocksAhead, "ceiling", FmtGwei(fees.BaseFeeCeiling()),
		"tip", FmtGwei(fees.PriorityFee()), "maxFee", FmtGwei(fees.MaxFeePerGas()), "type", fees.Type())

	txs := make([]UnsignedTransaction, len(in.Transactions))
	for i, tx := range in.Transactions {
		if tx.ChainID == nil && e.Builder.ChainID != nil {
			tx.ChainID = new(big.Int).Set(e.Builder.ChainID)
		}
		txs[i] = tx.WithFees(fees)
	}
	signed, err := e.Builder.Build(ctx, txs, in.Signers)
	if err != nil {
		return Result{}, fmt.Errorf("build bundle: %w", err)
	}

	target := anchor.Number + uint64(in.BlocksAhead)
	return e.Scheduler.Run(ctx, signed, target, maxAttempts)
}
