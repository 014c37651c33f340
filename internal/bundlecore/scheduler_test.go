package bundlecore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectedSimulationNeverSubmits(t *testing.T) {
	relay := &scriptedRelay{simOutcomes: []SimulationOutcome{Rejection(0, "insufficient funds")}}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 2)

	var rej *SimulationRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "insufficient funds", rej.Reason)
	assert.Empty(t, relay.sends())
	assert.Empty(t, res.Attempts)
	assert.True(t, res.Simulation.Rejected)
	assert.Nil(t, res.Stats)
}

func TestRunRetriesOnceThenIncluded(t *testing.T) {
	relay := &scriptedRelay{resolutions: []RawResolution{RawBlockPassedWithoutInclusion, RawBundleIncluded}}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 2)
	require.NoError(t, err)

	assert.Equal(t, Included, res.Outcome)
	assert.True(t, res.Included())
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, []uint64{100, 101}, relay.sends())
	assert.Equal(t, NotIncludedThisBlock, res.Attempts[0].Outcome)
	assert.Equal(t, Included, res.Attempts[1].Outcome)
	assert.Equal(t, 1, res.Attempts[0].Number)
	assert.Equal(t, 2, res.Attempts[1].Number)
	assert.Nil(t, res.Stats)
	assert.Zero(t, relay.bundleStatsN)
	assert.Zero(t, relay.userStatsN)
	assert.Equal(t, []uint64{100}, relay.simTargets)
	assert.NotEmpty(t, res.IntentID)
}

func TestRunStopsOnNonceTooHigh(t *testing.T) {
	relay := &scriptedRelay{resolutions: []RawResolution{RawAccountNonceTooHigh, RawBundleIncluded}}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 5)
	require.NoError(t, err)

	assert.Equal(t, AccountNonceTooHigh, res.Outcome)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, []uint64{100}, relay.sends())
	assert.Nil(t, res.Stats)
	assert.Zero(t, relay.bundleStatsN)
}

func TestRunSingleAttemptMissFetchesStats(t *testing.T) {
	relay := &scriptedRelay{resolutions: []RawResolution{RawBlockPassedWithoutInclusion}}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 1)
	require.NoError(t, err)

	assert.Equal(t, NotIncludedThisBlock, res.Outcome)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, relay.bundleStatsN)
	assert.Equal(t, 1, relay.userStatsN)
	require.NotNil(t, res.Stats)
	assert.Equal(t, res.Attempts[0].BundleHash, res.Stats.BundleHash)
	assert.Equal(t, uint64(100), res.Stats.TargetBlock)
}

func TestRunStatsFailureDoesNotFailFlow(t *testing.T) {
	relay := &scriptedRelay{userStatsErr: errors.New("rate limited")}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Stats)
	assert.NotNil(t, res.Stats.Bundle)
	assert.Nil(t, res.Stats.User)
}

func TestRunExhaustsAttemptsWithIncreasingTargets(t *testing.T) {
	relay := &scriptedRelay{}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 4)
	require.NoError(t, err)

	assert.Equal(t, NotIncludedThisBlock, res.Outcome)
	assert.Equal(t, []uint64{100, 101, 102, 103}, relay.sends())
	for i := 1; i < len(res.Attempts); i++ {
		assert.Greater(t, res.Attempts[i].TargetBlock, res.Attempts[i-1].TargetBlock)
		assert.False(t, res.Attempts[i].SubmittedAt.Before(res.Attempts[i-1].SubmittedAt))
	}
	assert.Equal(t, 1, relay.bundleStatsN)
}

func TestRunCustomTargetPolicy(t *testing.T) {
	relay := &scriptedRelay{}
	s := &Scheduler{Relay: relay, Next: func(prev uint64) uint64 { return prev + 2 }}
	_, err := s.Run(context.Background(), signedFixture(t), 100, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 102, 104}, relay.sends())

	s.Next = func(prev uint64) uint64 { return prev }
	relay = &scriptedRelay{}
	s.Relay = relay
	_, err = s.Run(context.Background(), signedFixture(t), 100, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, []uint64{100}, relay.sends())
}

func TestRunSkipsTargetsTheChainPassed(t *testing.T) {
	relay := &scriptedRelay{}
	chain := &staticChain{block: Block{Number: 110}}
	_, err := (&Scheduler{Relay: relay, Chain: chain}).Run(context.Background(), signedFixture(t), 100, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 111}, relay.sends())

	// An unavailable head keeps the policy target.
	relay = &scriptedRelay{}
	chain = &staticChain{err: errors.New("timeout")}
	_, err = (&Scheduler{Relay: relay, Chain: chain}).Run(context.Background(), signedFixture(t), 100, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 101}, relay.sends())
}

func TestRunResimulateOnRetry(t *testing.T) {
	relay := &scriptedRelay{simOutcomes: []SimulationOutcome{
		Viable(0, 21_000, common.Hash{1}, nil),
		Rejection(0, "nonce too low"),
	}}
	s := &Scheduler{Relay: relay, ResimulateOnRetry: true}
	res, err := s.Run(context.Background(), signedFixture(t), 100, 3)

	require.ErrorIs(t, err, ErrSimulationRejected)
	assert.Equal(t, []uint64{100, 101}, relay.simTargets)
	assert.Equal(t, []uint64{100}, relay.sends())
	assert.Len(t, res.Attempts, 1)
	assert.True(t, res.Simulation.Rejected)
}

func TestRunSubmissionFailureStopsFlow(t *testing.T) {
	relay := &scriptedRelay{sendErrs: []error{nil, &SubmissionError{TargetBlock: 101, Reason: "bundle too large"}}}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 3)

	require.ErrorIs(t, err, ErrSubmissionRejected)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, Unknown, res.Outcome)
	assert.ErrorIs(t, res.Attempts[1].Err, ErrSubmissionRejected)
	assert.Nil(t, res.Stats)

	relay = &scriptedRelay{sendErrs: []error{errors.New("connection refused")}}
	_, err = (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 3)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestRunWaitFailureIsTransport(t *testing.T) {
	relay := &scriptedRelay{waitErr: errors.New("header not found")}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 2)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, Unknown, res.Outcome)
	require.Len(t, res.Attempts, 1)
	assert.NotEqual(t, common.Hash{}, res.Attempts[0].BundleHash)
}

func TestRunUnknownResolution(t *testing.T) {
	relay := &scriptedRelay{resolutions: []RawResolution{7}}
	res, err := (&Scheduler{Relay: relay}).Run(context.Background(), signedFixture(t), 100, 2)
	require.ErrorIs(t, err, ErrUnknownResolution)
	var ue *UnknownResolutionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, RawResolution(7), ue.Raw)
	assert.Equal(t, Unknown, res.Outcome)
	assert.Len(t, relay.sends(), 1)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 1, relay.bundleStatsN)
	assert.Equal(t, res.Attempts[0].BundleHash, res.Stats.BundleHash)
}

func TestRunInvalidInput(t *testing.T) {
	relay := &scriptedRelay{}
	s := &Scheduler{Relay: relay}
	_, err := s.Run(context.Background(), signedFixture(t), 100, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Run(context.Background(), signedFixture(t), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Run(context.Background(), SignedBundle{}, 100, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, relay.simTargets)
}

func TestStartRunsFlowsIndependently(t *testing.T) {
	s := &Scheduler{Relay: &scriptedRelay{resolutions: []RawResolution{RawBundleIncluded}}}
	other := &Scheduler{Relay: &scriptedRelay{resolutions: []RawResolution{RawAccountNonceTooHigh}}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f1 := s.Start(ctx, signedFixture(t), 100, 2)
	f2 := other.Start(ctx, signedFixture(t), 200, 2)

	r1, err := f1.Wait(ctx)
	require.NoError(t, err)
	r2, err := f2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, Included, r1.Outcome)
	assert.Equal(t, AccountNonceTooHigh, r2.Outcome)
	assert.NotEqual(t, r1.IntentID, r2.IntentID)

	select {
	case <-f1.Done():
	default:
		t.Fatal("flow reported a result before finishing")
	}
}

func TestFlowWaitHonoursContext(t *testing.T) {
	f := &Flow{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
