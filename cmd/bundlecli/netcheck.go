package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	core "github.com/ligun0805/bundle-submit/internal/bundlecore"
	"github.com/ligun0805/bundle-submit/internal/chain"
	"github.com/ligun0805/bundle-submit/internal/config"
)

var netPercentiles = []float64{50, 95, 99}

// printNetworkState shows the head, the projected base-fee ceiling and the
// recent tip distribution before anything is signed.
func printNetworkState(ctx context.Context, cc *chain.Client, view core.ChainView, cfg config.Settings, policy core.PriorityFeePolicy) {
	head, err := view.LatestBlock(ctx)
	if err != nil {
		fmt.Println("[net] head error:", err)
		return
	}
	fmt.Printf("[net] head: %d baseFee: %s gwei\n", head.Number, core.FmtGwei(head.BaseFee))
	if fees, err := core.ComputeFees(head.BaseFee, cfg.BlocksInFuture, policy); err == nil {
		fmt.Printf("[net] +%d blocks ceiling: %s gwei, maxFee: %s gwei, tip: %s gwei\n",
			cfg.BlocksInFuture, core.FmtGwei(fees.BaseFeeCeiling()), core.FmtGwei(fees.MaxFeePerGas()), core.FmtGwei(fees.PriorityFee()))
		cost := new(uint256.Int).Mul(fees.MaxFeePerGas(), uint256.NewInt(cfg.GasLimit))
		fmt.Printf("[net] worst-case cost (gas=%d): %s ETH\n", cfg.GasLimit, core.FmtETH(cost.ToBig()))
	} else {
		fmt.Println("[net] fee error:", err)
	}

	stats, err := cc.FeeHistoryStats(ctx, cfg.TipWindow, netPercentiles)
	if err != nil {
		fmt.Println("[net] feeHistory error:", err)
		return
	}
	fmt.Printf("[net] reward stats last %d blocks:\n", cfg.TipWindow)
	for _, p := range netPercentiles {
		st := stats[p]
		fmt.Printf("  p%-2.0f min/avg/max: %s / %s / %s gwei\n", p, gwei(st.Min), gwei(st.Avg), gwei(st.Max))
	}

	pay, err := cc.CoinbasePayments(ctx, cfg.TipWindow)
	if err != nil {
		fmt.Println("[net] coinbase payment scan error:", err)
		return
	}
	fmt.Printf("[net] coinbase payments in last %d blocks: count=%d, sum=%s ETH, max=%s ETH\n",
		pay.Blocks, pay.Count, core.FmtETH(pay.Sum), core.FmtETH(pay.Max))
	if pay.Count > 0 {
		fmt.Printf("      quantiles: p50=%s ETH, p95=%s ETH, p99=%s ETH\n", core.FmtETH(pay.P50), core.FmtETH(pay.P95), core.FmtETH(pay.P99))
	}
}

func gwei(v *big.Int) string {
	if v == nil {
		return "0"
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return "overflow"
	}
	return core.FmtGwei(u)
}
