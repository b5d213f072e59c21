package calculator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func newCalculatorFixture(t *testing.T) (*Calculator, *fakeClock, *fakeChain, *fakeOracle) {
	t.Helper()

	clock := newFakeClock()
	chain := newFakeChain(clock)
	chain.addPool(rewarderAddr, mainTokenAddr, sdkmath.NewIntWithDecimal(1, 16), sdkmath.NewIntWithDecimal(150_000, 18))
	chain.supplies[platformAddr] = sdkmath.NewIntWithDecimal(50_000_000, 18)

	oracle := newFakeOracle()
	oracle.lpPrices[lpTokenAddr] = sdkmath.NewIntWithDecimal(1, 18)
	oracle.fastPrices[mainTokenAddr] = sdkmath.NewIntWithDecimal(1, 18)
	oracle.fastPrices[platformAddr] = sdkmath.NewIntWithDecimal(1, 18)

	calc, err := newTestCalculator(clock, chain, oracle)
	require.NoError(t, err)
	return calc, clock, chain, oracle
}

func TestCalculatorInitializeOnce(t *testing.T) {
	require := require.New(t)
	calc, _, _, _ := newCalculatorFixture(t)

	err := calc.Initialize(InitConfig{
		AprID:         "again",
		Rewarder:      rewarderAddr,
		LPToken:       lpTokenAddr,
		PlatformToken: platformAddr,
	})
	require.ErrorIs(err, ErrAlreadyInitialized)
}

func TestCalculatorInitializeRejectsZeroAddresses(t *testing.T) {
	require := require.New(t)

	clock := newFakeClock()
	chain := newFakeChain(clock)
	oracle := newFakeOracle()

	strategy, err := NewPlatformStrategy("convex", chain, chain, chain)
	require.NoError(err)

	calc, err := New(Dependencies{
		Pools:            chain,
		RootOracle:       oracle,
		IncentivePricing: oracle,
		Underlyer:        &fakeUnderlyer{payload: []byte(`{}`)},
		Strategy:         strategy,
		Now:              clock.Now,
	})
	require.NoError(err)

	err = calc.Initialize(InitConfig{AprID: "x", LPToken: lpTokenAddr, PlatformToken: platformAddr})
	require.ErrorIs(err, ErrZeroAddress)

	err = calc.Initialize(InitConfig{AprID: "x", Rewarder: rewarderAddr, PlatformToken: platformAddr})
	require.ErrorIs(err, ErrZeroAddress)

	require.False(calc.initialized)
	_, err = calc.Snapshot(context.Background())
	require.ErrorIs(err, ErrNotInitialized)
	_, err = calc.Current(context.Background())
	require.ErrorIs(err, ErrNotInitialized)
}

func TestCalculatorRejectsNilDependencies(t *testing.T) {
	require := require.New(t)

	_, err := New(Dependencies{})
	require.Error(err)
}

func TestCalculatorSnapshotLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	calc, _, chain, _ := newCalculatorFixture(t)

	// A fresh calculator has never measured anything.
	due, err := calc.ShouldSnapshot(ctx)
	require.NoError(err)
	require.True(due)

	// First snapshot opens the window. APR is still zero, so the credit
	// engine enters decay with nothing to lose.
	event, err := calc.Snapshot(ctx)
	require.NoError(err)
	require.Zero(event.Credits)
	require.True(event.Decaying)
	require.Equal("staked-lp-weth", event.AprID)
	require.Equal(lpTokenAddr, event.AddressID)

	// Inside the measurement interval nothing is due.
	chain.advance(10 * time.Minute)
	due, err = calc.ShouldSnapshot(ctx)
	require.NoError(err)
	require.False(due)

	// Past the interval the window finalizes and real yield appears.
	chain.advance(4 * time.Hour)
	due, err = calc.ShouldSnapshot(ctx)
	require.NoError(err)
	require.True(due)

	event, err = calc.Snapshot(ctx)
	require.NoError(err)
	require.False(event.Decaying)
	require.Zero(event.Credits)
	require.True(event.TotalAPR.GT(NonTrivialAnnualRate))

	// A day later the daily floor re-measures and the first credits land.
	chain.advance(25 * time.Hour)
	event, err = calc.Snapshot(ctx)
	require.NoError(err)
	require.Equal(2, event.Credits)

	st := calc.EngineState()
	require.Equal(2, st.IncentiveCredits)
	require.False(st.Decaying)
}

func TestCalculatorSnapshotIsAtomic(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	calc, _, chain, oracle := newCalculatorFixture(t)

	_, err := calc.Snapshot(ctx)
	require.NoError(err)
	chain.advance(5 * time.Hour)

	stateBefore := calc.EngineState()
	trackerBefore := calc.tracker.State(rewarderAddr)

	// The window is due to finalize, but pricing is down.
	oracle.pricingErr = errors.New("oracle offline")
	_, err = calc.Snapshot(ctx)
	require.Error(err)

	// Nothing committed: the window is still open with its original anchor.
	require.Equal(stateBefore, calc.EngineState())
	require.Equal(trackerBefore, calc.tracker.State(rewarderAddr))

	// The next healthy snapshot finalizes the same window.
	oracle.pricingErr = nil
	_, err = calc.Snapshot(ctx)
	require.NoError(err)
	require.False(calc.tracker.State(rewarderAddr).Started)
	require.False(calc.tracker.SafeTotalSupply(rewarderAddr).IsZero())
}

func TestCalculatorShouldSnapshotIsReadOnly(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	calc, _, _, _ := newCalculatorFixture(t)

	before := calc.tracker.State(rewarderAddr)
	for i := 0; i < 3; i++ {
		_, err := calc.ShouldSnapshot(ctx)
		require.NoError(err)
	}
	require.Equal(before, calc.tracker.State(rewarderAddr))
	require.Equal(0, calc.EngineState().IncentiveCredits)
}

func TestCalculatorCurrentAppliesSpeculativeDecay(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	calc, _, chain, oracle := newCalculatorFixture(t)

	// Build up credits over three healthy days.
	_, err := calc.Snapshot(ctx)
	require.NoError(err)
	chain.advance(5 * time.Hour)
	_, err = calc.Snapshot(ctx)
	require.NoError(err)
	for day := 0; day < 3; day++ {
		chain.advance(25 * time.Hour)
		_, err = calc.Snapshot(ctx)
		require.NoError(err)
	}
	require.Equal(6, calc.EngineState().IncentiveCredits)

	// Reward token price collapses, pushing the APR under the threshold,
	// and a snapshot marks decay entry.
	oracle.fastPrices[mainTokenAddr] = sdkmath.NewInt(1)
	oracle.fastPrices[platformAddr] = sdkmath.NewInt(1)
	chain.advance(5 * time.Hour)
	event, err := calc.Snapshot(ctx)
	require.NoError(err)
	require.True(event.Decaying)
	require.Equal(6, event.Credits)

	// Three hours later a read shows the pending decay without committing it.
	chain.advance(3 * time.Hour)
	stats, err := calc.Current(ctx)
	require.NoError(err)
	require.Equal(3, stats.Incentive.IncentiveCredits)
	require.Equal(6, calc.EngineState().IncentiveCredits)

	// The read passes the underlyer payload through untouched.
	require.JSONEq(`{"fee_apr":0.01}`, string(stats.Underlyer))
	require.Equal("staked-lp-weth", stats.AprID)
	require.Equal(lpTokenAddr, stats.AddressID)
	require.Len(stats.Incentive.RewardTokens, 2)
}

func TestCalculatorCurrentAbortsWhenUnderlyerFails(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	calc, _, _, _ := newCalculatorFixture(t)

	calc.deps.Underlyer = &fakeUnderlyer{err: errors.New("stats api down")}
	_, err := calc.Current(ctx)
	require.Error(err)
}

func TestCalculatorCreditsStayBoundedUnderRandomSequences(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	calc, _, chain, oracle := newCalculatorFixture(t)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		chain.advance(time.Duration(1+rng.Intn(30)) * time.Hour)

		// Randomly flip the reward token prices between healthy and dust.
		if rng.Intn(2) == 0 {
			oracle.fastPrices[mainTokenAddr] = sdkmath.NewIntWithDecimal(1, 18)
			oracle.fastPrices[platformAddr] = sdkmath.NewIntWithDecimal(1, 18)
		} else {
			oracle.fastPrices[mainTokenAddr] = sdkmath.NewInt(1)
			oracle.fastPrices[platformAddr] = sdkmath.NewInt(1)
		}

		event, err := calc.Snapshot(ctx)
		require.NoError(err)
		require.GreaterOrEqual(event.Credits, 0)
		require.LessOrEqual(event.Credits, MaxCredits)

		st := calc.EngineState()
		require.Equal(event.Credits, st.IncentiveCredits)
	}
}
