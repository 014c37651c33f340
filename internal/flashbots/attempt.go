package flashbots

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/bundle-submit/internal/bundlecore"
)

type attempt struct {
	hash    common.Hash
	target  uint64
	bundle  bundlecore.SignedBundle
	watcher bundlecore.InclusionWatcher
}

func (a *attempt) BundleHash() common.Hash { return a.hash }
func (a *attempt) TargetBlock() uint64     { return a.target }

func (a *attempt) Wait(ctx context.Context) (bundlecore.RawResolution, error) {
	return a.watcher.WaitResolution(ctx, a.bundle, a.target)
}
