/*

This file contains the hysteretic confidence counter. Credits accrue slowly
(two per day of sustained non-trivial yield, capped at 48) and decay faster
(one per hour once yield drops below the threshold), so the downstream
allocator discounts incentive yield quickly when it disappears but trusts
it only after it has persisted.

*/

package calculator

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/types"
	"github.com/arcvault/yielder/internal/utils"
)

const (
	// MaxCredits bounds the confidence counter.
	MaxCredits = 48
	// CreditsPerDay is the accrual earned per full day of sustained yield.
	CreditsPerDay = 2
)

// CreditDecayEngine applies one accrue/steady/decay transition per
// snapshot. It is stateless itself; the state travels in and out so the
// caller controls when a transition is committed.
type CreditDecayEngine struct {
	logger zerolog.Logger
}

// NewCreditDecayEngine creates the transition engine.
func NewCreditDecayEngine() *CreditDecayEngine {
	return &CreditDecayEngine{logger: logger.GetForComponent("credit_decay")}
}

// Update applies one transition for the given aggregate APR at the given
// time and returns the successor state plus the observability event
// describing the transition. The input state is not modified.
func (e *CreditDecayEngine) Update(st types.EngineState, apr sdkmath.Int, now time.Time) (types.EngineState, types.CreditEvent) {
	if apr.GTE(NonTrivialAnnualRate) {
		elapsed := now.Sub(st.LastIncentiveAt)
		if st.IncentiveCredits < MaxCredits && elapsed >= 24*time.Hour {
			days := int(elapsed / (24 * time.Hour))
			st.IncentiveCredits += CreditsPerDay * days
			if st.IncentiveCredits > MaxCredits {
				st.IncentiveCredits = MaxCredits
			}
			st.LastIncentiveAt = now
		}
		// Recovery from decay carries no penalty beyond what already
		// decayed.
		st.Decaying = false
	} else {
		if !st.Decaying {
			st.Decaying = true
			st.DecayInitAt = now
		} else {
			hoursPassed := int(now.Sub(st.DecayInitAt) / time.Hour)
			if hoursPassed > 0 {
				st.IncentiveCredits -= hoursPassed
				if st.IncentiveCredits < 0 {
					st.IncentiveCredits = 0
				}
				st.DecayInitAt = now
			}
		}
		st.LastIncentiveAt = now
	}

	st.LastSnapshotTotalAPR = apr

	event := types.CreditEvent{
		TotalAPR:        apr,
		APRPercent:      utils.AprToPercent(apr),
		Credits:         st.IncentiveCredits,
		LastIncentiveAt: st.LastIncentiveAt,
		Decaying:        st.Decaying,
		DecayInitAt:     st.DecayInitAt,
		Timestamp:       now,
	}

	e.logger.Info().
		Float64("aprPercent", event.APRPercent).
		Int("credits", event.Credits).
		Bool("decaying", event.Decaying).
		Msg("Credit transition applied")

	return st, event
}

// SpeculativeCredits returns the display value of the credits without
// committing anything: when the engine is decaying and the view APR has not
// improved over the last committed APR, the decay that would apply at the
// next snapshot is projected onto the read.
func SpeculativeCredits(st types.EngineState, viewApr sdkmath.Int, now time.Time) int {
	credits := st.IncentiveCredits
	if !st.Decaying || viewApr.GT(st.LastSnapshotTotalAPR) {
		return credits
	}
	credits -= int(now.Sub(st.DecayInitAt) / time.Hour)
	if credits < 0 {
		credits = 0
	}
	return credits
}
