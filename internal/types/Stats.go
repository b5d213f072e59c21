/*

This file contains the output types for the calculator's canonical read,
consumed by the downstream rebalancing strategy.

*/

package types

import (
	"encoding/json"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// IncentiveStats is the incentive half of the calculator output. The reward
// slices run in parallel: index 0 is the main reward token, index 1 the
// platform-token-equivalent row, and the remainder the extra reward pools
// that resolved to a real token. IncentiveCredits may include a display-only
// speculative decay; the persisted value lives in EngineState.
type IncentiveStats struct {
	SafeTotalSupply         sdkmath.Int      `json:"safe_total_supply"`
	RewardTokens            []common.Address `json:"reward_tokens"`
	AnnualizedRewardAmounts []sdkmath.Int    `json:"annualized_reward_amounts"`
	PeriodFinishForRewards  []time.Time      `json:"period_finish_for_rewards"`
	IncentiveCredits        int              `json:"incentive_credits"`
}

// UnderlyerStats is pass-through data from the external DEX/LST stats
// aggregator. The engine never interprets it.
type UnderlyerStats = json.RawMessage

// CalculatorStats merges the incentive output with the underlyer
// pass-through. This is what the allocation strategy reads.
type CalculatorStats struct {
	AprID     string         `json:"apr_id"`
	AddressID common.Address `json:"address_id"`
	Incentive IncentiveStats `json:"incentive"`
	Underlyer UnderlyerStats `json:"underlyer,omitempty"`
}

// RewardRow is one logical incentive row assembled by the APR aggregator.
type RewardRow struct {
	Pool             common.Address `json:"pool"`
	RewardToken      common.Address `json:"reward_token"`
	SafeTotalSupply  sdkmath.Int    `json:"safe_total_supply"`
	AnnualizedReward sdkmath.Int    `json:"annualized_reward"`
	PeriodFinish     time.Time      `json:"period_finish"`
}
