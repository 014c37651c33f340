package bundlecore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// SubmissionAttempt records one target block tried. It is appended once the
// attempt has finished and never changed afterwards.
type SubmissionAttempt struct {
	Number      int
	TargetBlock uint64
	SubmittedAt time.Time
	BundleHash  common.Hash
	Outcome     ResolutionOutcome
	Err         error
}

// Result is what a flow hands back: the final outcome plus the full history.
type Result struct {
	IntentID   string
	Outcome    ResolutionOutcome
	Simulation SimulationOutcome
	Attempts   []SubmissionAttempt
	Stats      *StatsReport
}

// Included is a shorthand for Outcome == Included.
func (r Result) Included() bool { return r.Outcome == Included }

// TargetPolicy picks the block after prev to try next.
type TargetPolicy func(prev uint64) uint64

// NextBlock is the default policy: the very next block.
func NextBlock(prev uint64) uint64 { return prev + 1 }

// Scheduler drives one bundle through simulate → submit → resolve, retrying
// on a plain miss. A Scheduler holds configuration only and can run many
// independent flows; each flow keeps its own attempt history.
type Scheduler struct {
	Relay  Relay
	Chain  ChainView    // optional; skips targets the chain has already passed
	Next   TargetPolicy // nil means NextBlock
	Logger log.Logger

	// ResimulateOnRetry re-runs the simulation for every new target block.
	// Off by default: the signed payload does not change between attempts.
	ResimulateOnRetry bool
}

// Run executes a flow synchronously. Errors before the first submission are
// returned as-is; errors inside the loop are also recorded on their attempt.
func (s *Scheduler) Run(ctx context.Context, bundle SignedBundle, initialTarget uint64, maxAttempts int) (Result, error) {
	res := Result{IntentID: uuid.NewString(), Outcome: Unknown}
	if maxAttempts < 1 {
		return res, invalidInput("maxAttempts must be >= 1, got %d", maxAttempts)
	}
	if initialTarget == 0 {
		return res, invalidInput("initial target block must be > 0")
	}
	if bundle.Len() == 0 {
		return res, invalidInput("empty signed bundle")
	}
	logger := s.logger().New("intent", res.IntentID)
	gate := &Gate{Relay: s.Relay, Logger: logger}

	sim, err := gate.Simulate(ctx, bundle, initialTarget)
	res.Simulation = sim
	if err != nil {
		return res, err
	}

	target := initialTarget
	for n := 1; ; n++ {
		if n > 1 {
			next, err := s.nextTarget(ctx, target, logger)
			if err != nil {
				return res, err
			}
			target = next
			if s.ResimulateOnRetry {
				sim, err := gate.Simulate(ctx, bundle, target)
				if sim.TargetBlock != 0 {
					res.Simulation = sim
				}
				if err != nil {
					return res, err
				}
			}
		}

		att, err := s.attempt(ctx, bundle, n, target, logger)
		res.Attempts = append(res.Attempts, att)
		res.Outcome = att.Outcome
		if errors.Is(err, ErrUnknownResolution) {
			// the relay still knows the bundle; report what it saw
			res.Stats = s.report(ctx, att, logger)
		}
		if err != nil {
			return res, err
		}
		if !ShouldRetry(att.Outcome, n, maxAttempts) {
			break
		}
		logger.Info("Bundle missed target, retrying", "attempt", n, "target", target)
	}

	if wantsStats(res.Outcome) {
		res.Stats = s.report(ctx, res.Attempts[len(res.Attempts)-1], logger)
	}
	logger.Info("Bundle flow finished", "outcome", res.Outcome, "attempts", len(res.Attempts))
	return res, nil
}

func (s *Scheduler) report(ctx context.Context, att SubmissionAttempt, logger log.Logger) *StatsReport {
	rep := &Reporter{Relay: s.Relay, Logger: logger}
	stats, err := rep.Report(ctx, att.BundleHash, att.TargetBlock)
	if err != nil {
		logger.Warn("Failed to fetch bundle stats", "err", err)
	}
	return &stats
}

// attempt submits to a single target block and waits for its resolution.
func (s *Scheduler) attempt(ctx context.Context, bundle SignedBundle, n int, target uint64, logger log.Logger) (SubmissionAttempt, error) {
	att := SubmissionAttempt{Number: n, TargetBlock: target, SubmittedAt: time.Now(), Outcome: Unknown}

	handle, err := s.Relay.SendRawBundle(ctx, bundle, target)
	if err != nil {
		if !errors.Is(err, ErrSubmissionRejected) && !errors.Is(err, ErrTransport) {
			err = &TransportError{Op: "send bundle", Err: err}
		}
		logger.Warn("Bundle submission failed", "attempt", n, "target", target, "err", err)
		att.Err = err
		return att, err
	}
	att.BundleHash = handle.BundleHash()
	logger.Info("Bundle submitted", "attempt", n, "target", target, "hash", att.BundleHash)

	raw, err := handle.Wait(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrTransport) {
			err = &TransportError{Op: "await resolution", Err: err}
		}
		logger.Warn("Bundle resolution unknown", "attempt", n, "target", target, "err", err)
		att.Err = err
		return att, err
	}
	att.Outcome = Classify(raw)
	if att.Outcome == Unknown {
		att.Err = &UnknownResolutionError{Raw: raw}
		logger.Error("Unrecognised bundle resolution", "attempt", n, "target", target, "raw", int(raw))
		return att, att.Err
	}
	logger.Info("Bundle resolved", "attempt", n, "target", target, "outcome", att.Outcome)
	return att, nil
}

// nextTarget applies the target policy and, with a chain view attached,
// moves past blocks that are already mined. Targets only ever increase.
func (s *Scheduler) nextTarget(ctx context.Context, prev uint64, logger log.Logger) (uint64, error) {
	policy := s.Next
	if policy == nil {
		policy = NextBlock
	}
	next := policy(prev)
	if next <= prev {
		return 0, invalidInput("target policy returned %d after %d", next, prev)
	}
	if s.Chain == nil {
		return next, nil
	}
	head, err := s.Chain.LatestBlock(ctx)
	if err != nil {
		// A stale view only costs us a wasted attempt; keep the policy target.
		logger.Debug("Chain head unavailable, keeping policy target", "target", next, "err", err)
		return next, nil
	}
	if head.Number >= next {
		logger.Info("Chain already passed target, skipping ahead", "target", next, "head", head.Number)
		next = head.Number + 1
	}
	return next, nil
}

func (s *Scheduler) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Root()
}

// Flow is a flow started in the background by Scheduler.Start.
type Flow struct {
	done chan struct{}
	res  Result
	err  error
}

// Start runs the flow on its own goroutine so the caller is not held for the
// whole resolution latency. Cancel ctx to abandon it.
func (s *Scheduler) Start(ctx context.Context, bundle SignedBundle, initialTarget uint64, maxAttempts int) *Flow {
	f := &Flow{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.res, f.err = s.Run(ctx, bundle, initialTarget, maxAttempts)
	}()
	return f
}

// Done is closed when the flow has finished.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Wait returns the flow's result, or ctx's error if ctx ends first.
func (f *Flow) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("waiting for flow: %w", ctx.Err())
	}
}
