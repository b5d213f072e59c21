/*

This file contains the state types for the two-phase supply measurement and
the credit accounting, plus the observability event emitted on every
snapshot transition.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// SnapshotStatus classifies where a reward pool sits in its measurement
// window.
type SnapshotStatus int

const (
	// SnapshotStatusNone means no measurement window has been started.
	SnapshotStatusNone SnapshotStatus = iota
	// SnapshotStatusTooSoon means a window is open but has not run for the
	// full measurement interval yet.
	SnapshotStatusTooSoon
	// SnapshotStatusShouldRestart means the reward rate changed mid-window,
	// invalidating the accrual-based supply estimate.
	SnapshotStatusShouldRestart
	// SnapshotStatusShouldFinalize means the window has run long enough to
	// compute a safe total supply.
	SnapshotStatusShouldFinalize
)

func (s SnapshotStatus) String() string {
	switch s {
	case SnapshotStatusNone:
		return "none"
	case SnapshotStatusTooSoon:
		return "too_soon"
	case SnapshotStatusShouldRestart:
		return "should_restart"
	case SnapshotStatusShouldFinalize:
		return "should_finalize"
	default:
		return "unknown"
	}
}

// PoolSnapshotState is the per-pool measurement state owned by the engine.
// Started is an explicit flag distinguishing "window open" from "never
// measured"; SafeTotalSupply only ever changes on a completed finalize
// transition or a zero-supply reset.
type PoolSnapshotState struct {
	Started            bool        `json:"started"`
	LastSnapshotAt     time.Time   `json:"last_snapshot_at"`
	LastRewardPerToken sdkmath.Int `json:"last_reward_per_token"`
	LastRewardRate     sdkmath.Int `json:"last_reward_rate"`
	SafeTotalSupply    sdkmath.Int `json:"safe_total_supply"`
}

// NewPoolSnapshotState returns an empty state with all integers initialized.
func NewPoolSnapshotState() PoolSnapshotState {
	return PoolSnapshotState{
		LastRewardPerToken: sdkmath.ZeroInt(),
		LastRewardRate:     sdkmath.ZeroInt(),
		SafeTotalSupply:    sdkmath.ZeroInt(),
	}
}

// EngineState is the singleton credit-accounting state of one calculator
// instance. IncentiveCredits always stays within [0, 48].
type EngineState struct {
	LastSnapshotTotalAPR sdkmath.Int `json:"last_snapshot_total_apr"`
	IncentiveCredits     int         `json:"incentive_credits"`
	LastIncentiveAt      time.Time   `json:"last_incentive_at"`
	DecayInitAt          time.Time   `json:"decay_init_at"`
	Decaying             bool        `json:"decaying"`
}

// NewEngineState returns the post-initialize engine state. The incentive
// timestamp starts at the initialization time so the first accrual requires
// a full day of sustained yield.
func NewEngineState(now time.Time) EngineState {
	return EngineState{
		LastSnapshotTotalAPR: sdkmath.ZeroInt(),
		LastIncentiveAt:      now,
	}
}

// CreditEvent is emitted on every snapshot transition and persisted for
// observability. APRPercent and the raw APR carry the same value at
// different scales (human-readable percent vs 1e18 fixed point).
type CreditEvent struct {
	AprID           string         `json:"apr_id"`
	AddressID       common.Address `json:"address_id"`
	TotalAPR        sdkmath.Int    `json:"total_apr"`
	APRPercent      float64        `json:"apr_percent"`
	Credits         int            `json:"credits"`
	LastIncentiveAt time.Time      `json:"last_incentive_at"`
	Decaying        bool           `json:"decaying"`
	DecayInitAt     time.Time      `json:"decay_init_at"`
	Timestamp       time.Time      `json:"timestamp"`
}
