package bundlecore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// TxSimulationResult is the per-transaction part of a bundle simulation.
type TxSimulationResult struct {
	TxHash  common.Hash
	GasUsed uint64
	Error   string
	Revert  string
}

// Failed reports whether the transaction errored or reverted in simulation.
func (r TxSimulationResult) Failed() bool { return r.Error != "" || r.Revert != "" }

// SimulationOutcome is either viable or rejected with a reason.
type SimulationOutcome struct {
	Rejected    bool
	Reason      string
	TargetBlock uint64
	GasUsed     uint64
	BundleHash  common.Hash
	Results     []TxSimulationResult
}

// Viable builds an accepted simulation outcome.
func Viable(target, gasUsed uint64, bundleHash common.Hash, results []TxSimulationResult) SimulationOutcome {
	return SimulationOutcome{TargetBlock: target, GasUsed: gasUsed, BundleHash: bundleHash, Results: results}
}

// Rejection builds a rejected simulation outcome.
func Rejection(target uint64, reason string) SimulationOutcome {
	return SimulationOutcome{Rejected: true, TargetBlock: target, Reason: reason}
}

// firstFailure returns the first per-tx error or revert embedded in an
// otherwise successful response.
func (o SimulationOutcome) firstFailure() (string, bool) {
	for i, r := range o.Results {
		if r.Error != "" {
			return fmt.Sprintf("tx #%d (%s): %s", i, r.TxHash.Hex(), r.Error), true
		}
		if r.Revert != "" {
			return fmt.Sprintf("tx #%d (%s) reverted: %s", i, r.TxHash.Hex(), r.Revert), true
		}
	}
	return "", false
}

// Gate runs the pre-submission dry run. A rejection is final for the flow.
type Gate struct {
	Relay  Simulator
	Logger log.Logger
}

func (g *Gate) logger() log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Root()
}

// Simulate dry-runs bundle against targetBlock. It returns
// *SimulationRejectedError alongside a Rejected outcome and *TransportError
// when the relay could not be reached.
func (g *Gate) Simulate(ctx context.Context, bundle SignedBundle, targetBlock uint64) (SimulationOutcome, error) {
	if bundle.Len() == 0 {
		return SimulationOutcome{}, invalidInput("empty signed bundle")
	}
	if targetBlock == 0 {
		return SimulationOutcome{}, invalidInput("target block must be > 0")
	}
	out, err := g.Relay.Simulate(ctx, bundle, targetBlock)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Op: "simulate", Err: err}
		}
		g.logger().Warn("Bundle simulation failed", "target", targetBlock, "err", err)
		return SimulationOutcome{}, err
	}
	out.TargetBlock = targetBlock
	if !out.Rejected {
		if reason, failed := out.firstFailure(); failed {
			out.Rejected, out.Reason = true, reason
		}
	}
	if out.Rejected {
		g.logger().Warn("Bundle simulation rejected", "target", targetBlock, "reason", out.Reason)
		return out, &SimulationRejectedError{TargetBlock: targetBlock, Reason: out.Reason}
	}
	g.logger().Info("Bundle simulated", "target", targetBlock, "hash", out.BundleHash, "gas", out.GasUsed, "txs", len(out.Results))
	return out, nil
}
