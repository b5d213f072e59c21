/*

This is a custom type for reward pools which carries one consistent read of a
staking rewarder's public state, used by the snapshot tracker and the APR
aggregator.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// RewardPoolObservation is a single read of a reward pool's externally
// visible state. All quantities are 1e18 fixed-point integers as reported by
// the contract. ObservedAt is the wall-clock time the read was taken; every
// time comparison inside the engine uses it rather than calling time.Now
// again, so one observation stays internally consistent.
type RewardPoolObservation struct {
	Pool           common.Address `json:"pool"`
	RewardToken    common.Address `json:"reward_token"`
	RewardRate     sdkmath.Int    `json:"reward_rate"`      // reward tokens emitted per second
	TotalSupply    sdkmath.Int    `json:"total_supply"`     // raw staked supply, manipulable
	RewardPerToken sdkmath.Int    `json:"reward_per_token"` // cumulative reward accrual per staked token
	PeriodFinish   time.Time      `json:"period_finish"`    // end of the current reward program
	ObservedAt     time.Time      `json:"observed_at"`
}

// Expired reports whether the reward program had already ended at the time
// of the observation.
func (o RewardPoolObservation) Expired() bool {
	return o.ObservedAt.After(o.PeriodFinish)
}
