package bundlecore

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// scriptedRelay replays canned answers and records every call.
type scriptedRelay struct {
	mu sync.Mutex

	simOutcomes []SimulationOutcome // one per Simulate call; last one repeats
	simErr      error

	resolutions []RawResolution // one per submission
	sendErrs    []error         // one per submission, nil means accept
	waitErr     error

	bundleStatsErr error
	userStatsErr   error

	simTargets   []uint64
	sendTargets  []uint64
	bundleStatsN int
	userStatsN   int
}

func (r *scriptedRelay) Simulate(_ context.Context, b SignedBundle, target uint64) (SimulationOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simTargets = append(r.simTargets, target)
	if r.simErr != nil {
		return SimulationOutcome{}, r.simErr
	}
	if len(r.simOutcomes) == 0 {
		return Viable(target, 21_000*uint64(b.Len()), common.Hash{0xb0}, nil), nil
	}
	i := min(len(r.simTargets)-1, len(r.simOutcomes)-1)
	return r.simOutcomes[i], nil
}

func (r *scriptedRelay) SendRawBundle(_ context.Context, _ SignedBundle, target uint64) (AttemptHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sendTargets)
	r.sendTargets = append(r.sendTargets, target)
	if n < len(r.sendErrs) && r.sendErrs[n] != nil {
		return nil, r.sendErrs[n]
	}
	res := RawBlockPassedWithoutInclusion
	if n < len(r.resolutions) {
		res = r.resolutions[n]
	}
	return &scriptedHandle{hash: common.BigToHash(big.NewInt(int64(n + 1))), target: target, res: res, err: r.waitErr}, nil
}

func (r *scriptedRelay) BundleStats(_ context.Context, h common.Hash, target uint64) (BundleStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundleStatsN++
	if r.bundleStatsErr != nil {
		return BundleStats{}, r.bundleStatsErr
	}
	return BundleStats{IsSimulated: true}, nil
}

func (r *scriptedRelay) UserStats(_ context.Context, block uint64) (UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userStatsN++
	if r.userStatsErr != nil {
		return UserStats{}, r.userStatsErr
	}
	return UserStats{IsHighPriority: true}, nil
}

func (r *scriptedRelay) sends() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.sendTargets...)
}

type scriptedHandle struct {
	hash   common.Hash
	target uint64
	res    RawResolution
	err    error
}

func (h *scriptedHandle) BundleHash() common.Hash { return h.hash }
func (h *scriptedHandle) TargetBlock() uint64     { return h.target }
func (h *scriptedHandle) Wait(ctx context.Context) (RawResolution, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return h.res, h.err
}

// staticChain is a ChainView frozen at one block.
type staticChain struct {
	block Block
	err   error
}

func (c *staticChain) LatestBlock(context.Context) (Block, error) { return c.block, c.err }

// signedFixture builds a one-transaction bundle with a fixed key.
func signedFixture(t *testing.T) SignedBundle {
	t.Helper()
	key, err := crypto.HexToECDSA(bobKey)
	require.NoError(t, err)
	id := NewKeyIdentity(key)
	signed, err := (&Builder{ChainID: testChainID}).Build(context.Background(),
		[]UnsignedTransaction{transfer(t, id.Address(), u64(0))}, []SigningIdentity{id})
	require.NoError(t, err)
	return signed
}
