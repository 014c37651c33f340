package bundlecore

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Block is the slice of chain state the engine anchors on.
type Block struct {
	Number  uint64
	BaseFee *uint256.Int // zero before the fee market
}

// ChainView is a read-only, possibly stale view of the chain head.
type ChainView interface {
	LatestBlock(ctx context.Context) (Block, error)
}

// AttemptHandle is returned by a successful submission.
type AttemptHandle interface {
	BundleHash() common.Hash
	TargetBlock() uint64
	// Wait blocks until the target block is decided or ctx is done.
	Wait(ctx context.Context) (RawResolution, error)
}

// InclusionWatcher decides what happened to a bundle submitted for target.
type InclusionWatcher interface {
	WaitResolution(ctx context.Context, bundle SignedBundle, target uint64) (RawResolution, error)
}

// Simulator is the dry-run half of a relay.
type Simulator interface {
	// Simulate returns an error only for transport failures; relay-side
	// rejections come back as a Rejected outcome.
	Simulate(ctx context.Context, bundle SignedBundle, targetBlock uint64) (SimulationOutcome, error)
}

// StatsSource is the diagnostics half of a relay.
type StatsSource interface {
	BundleStats(ctx context.Context, bundleHash common.Hash, targetBlock uint64) (BundleStats, error)
	UserStats(ctx context.Context, blockNumber uint64) (UserStats, error)
}

// Relay is everything the engine needs from a block-builder relay.
type Relay interface {
	Simulator
	StatsSource
	SendRawBundle(ctx context.Context, bundle SignedBundle, targetBlock uint64) (AttemptHandle, error)
}

// BundleStats is the relay's view of one bundle (flashbots_getBundleStatsV2).
type BundleStats struct {
	IsHighPriority bool            `json:"isHighPriority"`
	IsSimulated    bool            `json:"isSimulated"`
	SimulatedAt    string          `json:"simulatedAt,omitempty"`
	ReceivedAt     string          `json:"receivedAt,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// UserStats is the relay's reputation view of the auth signer (flashbots_getUserStatsV2).
type UserStats struct {
	IsHighPriority           bool            `json:"isHighPriority"`
	AllTimeValidatorPayments string          `json:"allTimeValidatorPayments,omitempty"`
	AllTimeGasSimulated      string          `json:"allTimeGasSimulated,omitempty"`
	Last7dValidatorPayments  string          `json:"last7dValidatorPayments,omitempty"`
	Last7dGasSimulated       string          `json:"last7dGasSimulated,omitempty"`
	Last1dValidatorPayments  string          `json:"last1dValidatorPayments,omitempty"`
	Last1dGasSimulated       string          `json:"last1dGasSimulated,omitempty"`
	Raw                      json.RawMessage `json:"-"`
}
