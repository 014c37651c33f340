package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/bundle-submit/internal/bundlecore"
)

// WaitResolution polls the chain until target is decided:
//   - before target is mined, a signer whose nonce already moved past its
//     bundle transaction means the bundle can never land (nonce too high);
//   - once target is mined, the bundle is included only if every one of its
//     transactions is in that block.
func (c *Client) WaitResolution(ctx context.Context, bundle bundlecore.SignedBundle, target uint64) (bundlecore.RawResolution, error) {
	entries := bundle.Entries()
	if len(entries) == 0 {
		return 0, errors.New("empty bundle")
	}
	// lowest bundle nonce per signer
	firstNonce := make(map[common.Address]uint64, len(entries))
	for _, e := range entries {
		if n, ok := firstNonce[e.From]; !ok || e.Nonce < n {
			firstNonce[e.From] = e.Nonce
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		head, err := c.backend.HeaderByNumber(ctx, nil)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.logger.Debug("Head poll failed", "target", target, "err", err)
		case head != nil && head.Number != nil && head.Number.Uint64() >= target:
			res, err := c.checkInclusion(ctx, bundle, target)
			if !errors.Is(err, ethereum.NotFound) {
				return res, err
			}
			// head moved but the node does not serve the block yet
		case head != nil && head.Number != nil:
			if tooHigh, err := c.noncesConsumed(ctx, firstNonce, head.Number); err == nil && tooHigh {
				return bundlecore.RawAccountNonceTooHigh, nil
			} else if err != nil {
				c.logger.Debug("Nonce poll failed", "target", target, "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// noncesConsumed reads nonces at head, the block the caller saw below target.
// Reading latest would count a target block mined since the poll.
func (c *Client) noncesConsumed(ctx context.Context, firstNonce map[common.Address]uint64, head *big.Int) (bool, error) {
	for addr, n := range firstNonce {
		onChain, err := c.backend.NonceAt(ctx, addr, head)
		if err != nil {
			return false, err
		}
		if onChain > n {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) checkInclusion(ctx context.Context, bundle bundlecore.SignedBundle, target uint64) (bundlecore.RawResolution, error) {
	block, err := c.backend.BlockByNumber(ctx, new(big.Int).SetUint64(target))
	if err != nil {
		return 0, fmt.Errorf("block %d: %w", target, err)
	}
	inBlock := mapset.NewThreadUnsafeSetWithSize[common.Hash](len(block.Transactions()))
	for _, tx := range block.Transactions() {
		inBlock.Add(tx.Hash())
	}
	want := mapset.NewThreadUnsafeSet(bundle.TxHashes()...)
	if want.IsSubset(inBlock) {
		c.logger.Info("Bundle included", "block", target, "txs", want.Cardinality())
		return bundlecore.RawBundleIncluded, nil
	}
	c.logger.Info("Block passed without bundle inclusion", "block", target, "missing", want.Difference(inBlock).Cardinality())
	return bundlecore.RawBlockPassedWithoutInclusion, nil
}
