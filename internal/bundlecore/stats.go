package bundlecore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// StatsReport holds post-hoc diagnostics for a bundle that did not land.
type StatsReport struct {
	BundleHash  common.Hash
	TargetBlock uint64
	Bundle      *BundleStats
	User        *UserStats
}

// Reporter fetches relay statistics. It never touches chain state.
type Reporter struct {
	Relay  StatsSource
	Logger log.Logger
}

// Report fetches bundle and user stats. Each half is fetched independently;
// the returned error joins whatever failed.
func (r *Reporter) Report(ctx context.Context, bundleHash common.Hash, targetBlock uint64) (StatsReport, error) {
	rep := StatsReport{BundleHash: bundleHash, TargetBlock: targetBlock}
	var errs []error
	if bs, err := r.Relay.BundleStats(ctx, bundleHash, targetBlock); err != nil {
		errs = append(errs, fmt.Errorf("bundle stats: %w", err))
	} else {
		rep.Bundle = &bs
	}
	if us, err := r.Relay.UserStats(ctx, targetBlock); err != nil {
		errs = append(errs, fmt.Errorf("user stats: %w", err))
	} else {
		rep.User = &us
	}
	err := errors.Join(errs...)
	if r.Logger != nil && err != nil {
		r.Logger.Debug("Stats fetch incomplete", "hash", bundleHash, "err", err)
	}
	return rep, err
}
