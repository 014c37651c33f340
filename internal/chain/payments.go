package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"slices"
)

// PaymentSummary describes direct payments to block producers seen over a
// window of recent blocks, the going rate a bundle competes with.
type PaymentSummary struct {
	Blocks int
	Count  int
	Sum    *big.Int
	Max    *big.Int
	P50    *big.Int
	P95    *big.Int
	P99    *big.Int
}

// CoinbasePayments scans the last blocks blocks for value sent straight to the
// block's coinbase, or to a creation whose init code runs COINBASE SELFDESTRUCT.
func (c *Client) CoinbasePayments(ctx context.Context, blocks int) (PaymentSummary, error) {
	if blocks <= 0 {
		blocks = 100
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return PaymentSummary{}, fmt.Errorf("head: %w", err)
	}
	if head == nil || head.Number == nil {
		return PaymentSummary{}, fmt.Errorf("head: empty header")
	}
	var (
		vals    []*big.Int
		scanned int
	)
	for n := head.Number.Uint64(); n > 0 && scanned < blocks; n-- {
		scanned++
		b, err := c.backend.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil || b == nil {
			if ctx.Err() != nil {
				return PaymentSummary{}, ctx.Err()
			}
			c.logger.Debug("Skipping block in payment scan", "block", n, "err", err)
			continue
		}
		cb := b.Coinbase()
		for _, tx := range b.Transactions() {
			v := tx.Value()
			if v == nil || v.Sign() <= 0 {
				continue
			}
			to := tx.To()
			if (to != nil && *to == cb) || (to == nil && bytes.Contains(tx.Data(), []byte{0x41, 0xff})) {
				vals = append(vals, new(big.Int).Set(v))
			}
		}
	}
	return summarize(vals, scanned), nil
}

func summarize(vals []*big.Int, blocks int) PaymentSummary {
	s := PaymentSummary{Blocks: blocks, Count: len(vals), Sum: new(big.Int), Max: new(big.Int), P50: new(big.Int), P95: new(big.Int), P99: new(big.Int)}
	if len(vals) == 0 {
		return s
	}
	sorted := slices.Clone(vals)
	slices.SortFunc(sorted, func(a, b *big.Int) int { return a.Cmp(b) })
	for _, v := range sorted {
		s.Sum.Add(s.Sum, v)
	}
	s.Max.Set(sorted[len(sorted)-1])
	s.P50.Set(nearestRank(sorted, 50))
	s.P95.Set(nearestRank(sorted, 95))
	s.P99.Set(nearestRank(sorted, 99))
	return s
}

// nearestRank picks the pct-th percentile of an ascending slice.
func nearestRank(sorted []*big.Int, pct int) *big.Int {
	idx := (pct*len(sorted)+99)/100 - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
