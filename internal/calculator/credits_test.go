package calculator

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/arcvault/yielder/internal/types"
)

var (
	healthyAPR = sdkmath.NewIntWithDecimal(2, 16) // 2% per year
	dustAPR    = sdkmath.NewIntWithDecimal(1, 15) // 0.1% per year
)

func TestCreditsAccrueDailyWhileYieldPersists(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	// Three snapshots spaced one day apart, all at healthy yield.
	for day := 1; day <= 3; day++ {
		var event types.CreditEvent
		st, event = engine.Update(st, healthyAPR, start.Add(time.Duration(day)*24*time.Hour))
		require.Equal(2*day, st.IncentiveCredits)
		require.Equal(2*day, event.Credits)
		require.False(st.Decaying)
	}
}

func TestCreditsNeedAFullDayBetweenAccruals(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	// Frequent snapshots inside the first day earn nothing.
	for hour := 1; hour <= 23; hour++ {
		st, _ = engine.Update(st, healthyAPR, start.Add(time.Duration(hour)*time.Hour))
		require.Zero(st.IncentiveCredits)
	}

	// The anchor never advanced, so the full day still completes on time.
	st, _ = engine.Update(st, healthyAPR, start.Add(24*time.Hour))
	require.Equal(2, st.IncentiveCredits)
	require.Equal(start.Add(24*time.Hour), st.LastIncentiveAt)
}

func TestCreditsMultiDayGapAccruesPerDay(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	// A three and a half day gap pays three days.
	st, _ = engine.Update(st, healthyAPR, start.Add(84*time.Hour))
	require.Equal(6, st.IncentiveCredits)
}

func TestCreditsCapAtMaximum(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	now := start
	for i := 0; i < 40; i++ {
		now = now.Add(24 * time.Hour)
		st, _ = engine.Update(st, healthyAPR, now)
		require.LessOrEqual(st.IncentiveCredits, MaxCredits)
	}
	require.Equal(MaxCredits, st.IncentiveCredits)
}

func TestCreditsDecayHourlyUntilZero(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	// Earn ten credits over five days.
	now := start
	for day := 0; day < 5; day++ {
		now = now.Add(24 * time.Hour)
		st, _ = engine.Update(st, healthyAPR, now)
	}
	require.Equal(10, st.IncentiveCredits)

	// Yield collapses; the first low snapshot only marks decay entry.
	now = now.Add(time.Hour)
	st, _ = engine.Update(st, dustAPR, now)
	require.True(st.Decaying)
	require.Equal(now, st.DecayInitAt)
	require.Equal(10, st.IncentiveCredits)

	// Thirty hourly snapshots drain the ten credits and park at zero.
	prev := st.IncentiveCredits
	for hour := 0; hour < 30; hour++ {
		now = now.Add(time.Hour)
		st, _ = engine.Update(st, dustAPR, now)
		require.LessOrEqual(st.IncentiveCredits, prev)
		require.GreaterOrEqual(st.IncentiveCredits, 0)
		prev = st.IncentiveCredits
	}
	require.Zero(st.IncentiveCredits)
	require.True(st.Decaying)
}

func TestCreditsRecoveryClearsDecayWithoutPenalty(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	now := start
	for day := 0; day < 4; day++ {
		now = now.Add(24 * time.Hour)
		st, _ = engine.Update(st, healthyAPR, now)
	}
	require.Equal(8, st.IncentiveCredits)

	// Two hours of decay cost two credits.
	now = now.Add(time.Hour)
	st, _ = engine.Update(st, dustAPR, now)
	now = now.Add(2 * time.Hour)
	st, _ = engine.Update(st, dustAPR, now)
	require.Equal(6, st.IncentiveCredits)

	// Yield returns: the flag clears immediately and no further credits are
	// lost, but accrual needs a fresh full day.
	now = now.Add(30 * time.Minute)
	st, _ = engine.Update(st, healthyAPR, now)
	require.False(st.Decaying)
	require.Equal(6, st.IncentiveCredits)
}

func TestCreditsThresholdBoundary(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	// Exactly at the threshold counts as non-trivial yield.
	st, _ = engine.Update(st, NonTrivialAnnualRate, start.Add(24*time.Hour))
	require.Equal(2, st.IncentiveCredits)
	require.False(st.Decaying)

	// One below it does not.
	st, _ = engine.Update(st, NonTrivialAnnualRate.SubRaw(1), start.Add(25*time.Hour))
	require.True(st.Decaying)
}

func TestSpeculativeCreditsProjectDecayOnReads(t *testing.T) {
	require := require.New(t)

	engine := NewCreditDecayEngine()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := types.NewEngineState(start)

	now := start
	for day := 0; day < 3; day++ {
		now = now.Add(24 * time.Hour)
		st, _ = engine.Update(st, healthyAPR, now)
	}
	require.Equal(6, st.IncentiveCredits)

	// Not decaying: reads return the committed value untouched.
	require.Equal(6, SpeculativeCredits(st, dustAPR, now.Add(10*time.Hour)))

	now = now.Add(time.Hour)
	st, _ = engine.Update(st, dustAPR, now)
	require.True(st.Decaying)

	// Decaying and the view APR has not improved: pending decay shows up on
	// the read without being committed.
	require.Equal(6, SpeculativeCredits(st, dustAPR, now.Add(30*time.Minute)))
	require.Equal(3, SpeculativeCredits(st, dustAPR, now.Add(3*time.Hour)))
	require.Equal(0, SpeculativeCredits(st, dustAPR, now.Add(300*time.Hour)))
	require.Equal(6, st.IncentiveCredits)

	// A strictly improved view APR suppresses the projection.
	require.Equal(6, SpeculativeCredits(st, dustAPR.AddRaw(1), now.Add(3*time.Hour)))
}
