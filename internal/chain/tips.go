package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// RewardStats aggregates min/avg/max of one reward percentile over a window.
type RewardStats struct {
	Min *big.Int
	Avg *big.Int
	Max *big.Int
}

// FeeHistoryStats returns reward stats per percentile over the last blocks blocks.
func (c *Client) FeeHistoryStats(ctx context.Context, blocks int, percentiles []float64) (map[float64]RewardStats, error) {
	if blocks <= 0 {
		blocks = 20
	}
	if len(percentiles) == 0 {
		percentiles = []float64{50, 95, 99}
	}
	fh, err := c.backend.FeeHistory(ctx, uint64(blocks), nil, percentiles)
	if err != nil {
		return nil, fmt.Errorf("feeHistory: %w", err)
	}
	if len(fh.Reward) == 0 {
		return nil, errors.New("feeHistory: empty reward")
	}
	out := make(map[float64]RewardStats, len(percentiles))
	for j, p := range percentiles {
		st := RewardStats{Avg: new(big.Int), Max: new(big.Int)}
		rows := 0
		for _, row := range fh.Reward {
			if j >= len(row) || row[j] == nil {
				continue
			}
			v := row[j]
			if st.Min == nil || v.Cmp(st.Min) < 0 {
				st.Min = new(big.Int).Set(v)
			}
			if v.Cmp(st.Max) > 0 {
				st.Max = new(big.Int).Set(v)
			}
			st.Avg.Add(st.Avg, v)
			rows++
		}
		if rows > 0 {
			st.Avg.Div(st.Avg, big.NewInt(int64(rows)))
		}
		if st.Min == nil {
			st.Min = new(big.Int)
		}
		out[p] = st
	}
	return out, nil
}

// SuggestPriorityFee returns the highest reward at percentile over the last
// window blocks, falling back to eth_maxPriorityFeePerGas.
func (c *Client) SuggestPriorityFee(ctx context.Context, window int, percentile float64) (*uint256.Int, error) {
	if percentile <= 0 || percentile > 100 {
		percentile = 90
	}
	stats, err := c.FeeHistoryStats(ctx, window, []float64{percentile})
	if err == nil {
		if st := stats[percentile]; st.Max != nil && st.Max.Sign() > 0 {
			tip, overflow := uint256.FromBig(st.Max)
			if !overflow {
				return tip, nil
			}
		}
	} else {
		c.logger.Debug("Fee history unavailable, falling back to tip suggestion", "err", err)
	}
	suggested, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	tip, overflow := uint256.FromBig(suggested)
	if overflow {
		return nil, errors.New("suggest tip: overflows 256 bits")
	}
	return tip, nil
}
