/*

This file contains the two-phase supply measurement. Instead of trusting the
rewarder's instantaneous totalSupply(), which a flash deposit can inflate
for a single block, the tracker opens a window, lets reward-per-token accrue
for at least the snapshot interval, and inverts the accrual relation
(rewardPerToken += elapsed * rate * 1e18 / supply) to back out the supply
that was actually staked over the window.

*/

package calculator

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/types"
)

// ErrUnexpectedSnapshotStatus signals a snapshot transition on a pool whose
// classification should never have reached SnapshotPool. This is a bug in
// the caller, not a retryable condition.
var ErrUnexpectedSnapshotStatus = errors.New("unexpected snapshot status")

const (
	// maxSnapshotAge is the freshness floor: a pool is always re-measured
	// once its last snapshot is older than this, whatever else holds.
	maxSnapshotAge = 24 * time.Hour
	// supplyDriftWindow gates the raw-supply drift trigger so cheap
	// manipulation of totalSupply() cannot force hourly re-measurement.
	supplyDriftWindow = 8 * time.Hour
	// driftThresholdPercent is the relative change in rate or supply that
	// counts as drift worth re-measuring.
	driftThresholdPercent = 5
)

var oneE18 = sdkmath.NewIntWithDecimal(1, 18)

// SnapshotTracker owns the per-pool measurement state. States are created
// lazily on first reference and never deleted.
type SnapshotTracker struct {
	logger zerolog.Logger
	states map[common.Address]types.PoolSnapshotState
}

// NewSnapshotTracker creates an empty tracker.
func NewSnapshotTracker() *SnapshotTracker {
	return &SnapshotTracker{
		logger: logger.GetForComponent("snapshot_tracker"),
		states: make(map[common.Address]types.PoolSnapshotState),
	}
}

// State returns the stored measurement state for a pool, or a fresh zero
// state if the pool has never been seen.
func (t *SnapshotTracker) State(pool common.Address) types.PoolSnapshotState {
	if st, ok := t.states[pool]; ok {
		return st
	}
	return types.NewPoolSnapshotState()
}

// SafeTotalSupply returns the last finalized supply estimate for a pool,
// zero if none has completed yet.
func (t *SnapshotTracker) SafeTotalSupply(pool common.Address) sdkmath.Int {
	return t.State(pool).SafeTotalSupply
}

// Clone returns an independent copy of the tracker. Snapshot passes mutate
// a clone and swap it in only on full success, so a failed pass commits
// nothing.
func (t *SnapshotTracker) Clone() *SnapshotTracker {
	states := make(map[common.Address]types.PoolSnapshotState, len(t.states))
	for pool, st := range t.states {
		states[pool] = st
	}
	return &SnapshotTracker{logger: t.logger, states: states}
}

// ShouldSnapshotPool decides whether a pool is due for a snapshot
// transition. Read-only. The rules balance the cost of a snapshot against
// responsiveness, with a guaranteed daily refresh floor.
func (t *SnapshotTracker) ShouldSnapshotPool(obs types.RewardPoolObservation) bool {
	st := t.State(obs.Pool)
	now := obs.ObservedAt

	switch ClassifySnapshotStatus(st, obs.RewardRate, now) {
	case types.SnapshotStatusShouldFinalize, types.SnapshotStatusShouldRestart:
		return true
	case types.SnapshotStatusTooSoon:
		return false
	}

	elapsed := now.Sub(st.LastSnapshotAt)
	if elapsed > maxSnapshotAge {
		return true
	}
	if obs.RewardRate.IsZero() {
		return false
	}
	if obs.Expired() {
		return false
	}
	if obs.TotalSupply.IsZero() {
		return true
	}
	if differsByMoreThanPercent(st.LastRewardRate, obs.RewardRate, driftThresholdPercent) {
		return true
	}
	if differsByMoreThanPercent(st.SafeTotalSupply, obs.TotalSupply, driftThresholdPercent) && elapsed > supplyDriftWindow {
		return true
	}
	return false
}

// SnapshotPool performs the start/finalize state transition for a pool.
// Callers must pre-filter with ShouldSnapshotPool; a pool classified
// TooSoon reaching here is a fatal invariant violation.
func (t *SnapshotTracker) SnapshotPool(obs types.RewardPoolObservation) error {
	st := t.State(obs.Pool)
	now := obs.ObservedAt

	// A collapsed pool is recorded immediately: no staked supply means no
	// meaningful measurement window, and downstream APR must read zero.
	if obs.TotalSupply.IsZero() {
		st.SafeTotalSupply = sdkmath.ZeroInt()
		st.Started = false
		st.LastRewardPerToken = sdkmath.ZeroInt()
		st.LastSnapshotAt = now
		t.states[obs.Pool] = st

		t.logger.Info().
			Str("pool", obs.Pool.Hex()).
			Msg("Total supply collapsed to zero, reset safe supply")
		return nil
	}

	status := ClassifySnapshotStatus(st, obs.RewardRate, now)
	switch status {
	case types.SnapshotStatusNone, types.SnapshotStatusShouldRestart:
		st.Started = true
		st.LastRewardPerToken = obs.RewardPerToken
		st.LastRewardRate = obs.RewardRate
		st.LastSnapshotAt = now

		t.logger.Debug().
			Str("pool", obs.Pool.Hex()).
			Str("rewardRate", obs.RewardRate.String()).
			Str("status", status.String()).
			Msg("Opened measurement window")

	case types.SnapshotStatusShouldFinalize:
		accrued := obs.RewardPerToken.Sub(st.LastRewardPerToken)
		elapsed := int64(now.Sub(st.LastSnapshotAt) / time.Second)

		if accrued.IsZero() {
			// Rewards flowed but per-token accrual did not move: the staked
			// supply is effectively unbounded from our vantage point, so no
			// estimate is recorded.
			st.SafeTotalSupply = sdkmath.ZeroInt()
		} else {
			st.SafeTotalSupply = obs.RewardRate.MulRaw(elapsed).Mul(oneE18).Quo(accrued)
		}
		st.Started = false
		st.LastRewardPerToken = sdkmath.ZeroInt()
		st.LastRewardRate = obs.RewardRate
		st.LastSnapshotAt = now

		t.logger.Info().
			Str("pool", obs.Pool.Hex()).
			Str("safeTotalSupply", st.SafeTotalSupply.String()).
			Int64("windowSeconds", elapsed).
			Msg("Finalized measurement window")

	default:
		return fmt.Errorf("%w: pool %s classified %s during snapshot", ErrUnexpectedSnapshotStatus, obs.Pool.Hex(), status)
	}

	t.states[obs.Pool] = st
	return nil
}

// differsByMoreThanPercent reports whether observed deviates from recorded
// by more than pct percent, relative to the recorded value. A zero recorded
// value with a non-zero observation counts as a deviation.
func differsByMoreThanPercent(recorded, observed sdkmath.Int, pct int64) bool {
	if recorded.IsZero() {
		return !observed.IsZero()
	}
	diff := recorded.Sub(observed).Abs()
	return diff.MulRaw(100).GT(recorded.MulRaw(pct))
}
