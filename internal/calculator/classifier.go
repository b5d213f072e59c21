/*

This file contains the pure classification of a reward pool's measurement
window state. Everything else in the snapshot pipeline branches on the
status computed here.

*/

package calculator

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/arcvault/yielder/internal/types"
)

// SnapshotInterval is the minimum duration a measurement window must run
// before it can be finalized.
const SnapshotInterval = 4 * time.Hour

// ClassifySnapshotStatus classifies a pool's measurement window from its
// stored state, the currently observed reward rate, and the observation
// time. Pure function, no side effects.
//
// A rate change mid-window invalidates the accrual-based supply estimate
// and forces a restart. A stored rate of zero is excused: it only means the
// pool was added while its program was idle.
func ClassifySnapshotStatus(st types.PoolSnapshotState, currentRewardRate sdkmath.Int, now time.Time) types.SnapshotStatus {
	if !st.Started {
		return types.SnapshotStatusNone
	}
	if !st.LastRewardRate.IsZero() && !currentRewardRate.Equal(st.LastRewardRate) {
		return types.SnapshotStatusShouldRestart
	}
	if now.Before(st.LastSnapshotAt.Add(SnapshotInterval)) {
		return types.SnapshotStatusTooSoon
	}
	return types.SnapshotStatusShouldFinalize
}
