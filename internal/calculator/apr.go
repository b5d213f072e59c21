/*

This file contains the cross-pool APR aggregation: the main reward token
row, the platform-token-equivalent row, and the extra reward pools are
priced and summed into one annualized rate against the safe supply
estimates maintained by the snapshot tracker.

*/

package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/arcvault/yielder/internal/datafetcher"
	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/pricing"
	"github.com/arcvault/yielder/internal/types"
)

// SecondsPerYear annualizes per-second reward rates.
const SecondsPerYear = 31_536_000

// PriceMaxStaleness bounds how old incentive token pricing may be.
const PriceMaxStaleness = 48 * time.Hour

// NonTrivialAnnualRate is the APR below which incentive yield stops earning
// confidence credits: 0.5% per year at 1e18 scale.
var NonTrivialAnnualRate = sdkmath.NewIntWithDecimal(5, 15)

// AprAggregator turns reward rates, safe supplies, and oracle prices into
// one aggregate annualized rate for a rewarder and its sub-pools.
type AprAggregator struct {
	logger           zerolog.Logger
	pools            datafetcher.RewardPoolReader
	rootOracle       pricing.RootPriceOracle
	incentivePricing pricing.IncentivePricing
	strategy         PlatformStrategy

	rewarder      common.Address
	lpToken       common.Address
	platformToken common.Address
}

// AprBreakdown is the result of one aggregation pass.
type AprBreakdown struct {
	TotalAPR       sdkmath.Int
	MainSafeSupply sdkmath.Int
	Rows           []types.RewardRow
}

// NewAprAggregator wires an aggregator. All dependencies are required.
func NewAprAggregator(
	pools datafetcher.RewardPoolReader,
	rootOracle pricing.RootPriceOracle,
	incentivePricing pricing.IncentivePricing,
	strategy PlatformStrategy,
	rewarder, lpToken, platformToken common.Address,
) (*AprAggregator, error) {
	if pools == nil || rootOracle == nil || incentivePricing == nil || strategy == nil {
		return nil, errors.New("apr aggregator dependencies cannot be nil")
	}
	if rewarder == (common.Address{}) || lpToken == (common.Address{}) || platformToken == (common.Address{}) {
		return nil, errors.New("apr aggregator addresses cannot be zero")
	}
	return &AprAggregator{
		logger:           logger.GetForComponent("apr_aggregator"),
		pools:            pools,
		rootOracle:       rootOracle,
		incentivePricing: incentivePricing,
		strategy:         strategy,
		rewarder:         rewarder,
		lpToken:          lpToken,
		platformToken:    platformToken,
	}, nil
}

// ComputeTotalAPR runs one aggregation pass. With allowSnapshots set, any
// pool that is due gets its snapshot transition before its APR contribution
// is computed; with it unset the pass is strictly read-only (the Current
// code path). Any chain or oracle failure aborts the whole pass.
func (a *AprAggregator) ComputeTotalAPR(ctx context.Context, tr *SnapshotTracker, allowSnapshots bool) (AprBreakdown, error) {
	obs, err := a.pools.Observe(ctx, a.rewarder)
	if err != nil {
		return AprBreakdown{}, fmt.Errorf("failed to observe main rewarder: %w", err)
	}

	if allowSnapshots && tr.ShouldSnapshotPool(obs) {
		if err := tr.SnapshotPool(obs); err != nil {
			return AprBreakdown{}, err
		}
	}

	lpPrice, err := a.rootOracle.GetPriceInEth(ctx, a.lpToken)
	if err != nil {
		return AprBreakdown{}, fmt.Errorf("failed to price LP token %s: %w", a.lpToken.Hex(), err)
	}

	total := sdkmath.ZeroInt()
	rows := make([]types.RewardRow, 0, 2)

	// Main reward token row.
	annualizedMain := obs.RewardRate.MulRaw(SecondsPerYear)
	apr, err := a.computeAPR(ctx, tr, obs.Pool, lpPrice, obs.RewardToken, annualizedMain, obs.PeriodFinish, obs.ObservedAt)
	if err != nil {
		return AprBreakdown{}, err
	}
	total = total.Add(apr)
	rows = append(rows, types.RewardRow{
		Pool:             obs.Pool,
		RewardToken:      obs.RewardToken,
		SafeTotalSupply:  tr.SafeTotalSupply(obs.Pool),
		AnnualizedReward: annualizedMain,
		PeriodFinish:     obs.PeriodFinish,
	})

	// Platform-token-equivalent row: same pool, supply, and period, but the
	// token identity and the minted amount come from the family strategy.
	annualizedPlatform, err := a.strategy.PlatformTokenMintAmount(ctx, a.platformToken, annualizedMain)
	if err != nil {
		return AprBreakdown{}, fmt.Errorf("failed to compute platform token mint: %w", err)
	}
	apr, err = a.computeAPR(ctx, tr, obs.Pool, lpPrice, a.platformToken, annualizedPlatform, obs.PeriodFinish, obs.ObservedAt)
	if err != nil {
		return AprBreakdown{}, err
	}
	total = total.Add(apr)
	rows = append(rows, types.RewardRow{
		Pool:             obs.Pool,
		RewardToken:      a.platformToken,
		SafeTotalSupply:  tr.SafeTotalSupply(obs.Pool),
		AnnualizedReward: annualizedPlatform,
		PeriodFinish:     obs.PeriodFinish,
	})

	// Extra reward pools whose token resolves to something real.
	extraCount, err := a.pools.ExtraRewardsLength(ctx, a.rewarder)
	if err != nil {
		return AprBreakdown{}, fmt.Errorf("failed to count extra rewards: %w", err)
	}
	for i := 0; i < extraCount; i++ {
		extra, err := a.pools.ExtraRewards(ctx, a.rewarder, i)
		if err != nil {
			return AprBreakdown{}, fmt.Errorf("failed to read extra reward pool %d: %w", i, err)
		}

		token, err := a.strategy.ResolveRewardToken(ctx, extra)
		if err != nil {
			return AprBreakdown{}, err
		}
		if token == (common.Address{}) {
			a.logger.Debug().Str("extraPool", extra.Hex()).Msg("Extra reward token did not resolve, skipping row")
			continue
		}

		extraObs, err := a.pools.Observe(ctx, extra)
		if err != nil {
			return AprBreakdown{}, fmt.Errorf("failed to observe extra rewarder %s: %w", extra.Hex(), err)
		}

		if allowSnapshots && tr.ShouldSnapshotPool(extraObs) {
			if err := tr.SnapshotPool(extraObs); err != nil {
				return AprBreakdown{}, err
			}
		}

		annualized := extraObs.RewardRate.MulRaw(SecondsPerYear)
		apr, err = a.computeAPR(ctx, tr, extra, lpPrice, token, annualized, extraObs.PeriodFinish, extraObs.ObservedAt)
		if err != nil {
			return AprBreakdown{}, err
		}
		total = total.Add(apr)
		rows = append(rows, types.RewardRow{
			Pool:             extra,
			RewardToken:      token,
			SafeTotalSupply:  tr.SafeTotalSupply(extra),
			AnnualizedReward: annualized,
			PeriodFinish:     extraObs.PeriodFinish,
		})
	}

	a.logger.Debug().
		Str("totalAPR", total.String()).
		Int("rows", len(rows)).
		Msg("Aggregated incentive APR")

	return AprBreakdown{
		TotalAPR:       total,
		MainSafeSupply: tr.SafeTotalSupply(a.rewarder),
		Rows:           rows,
	}, nil
}

// ShouldSnapshotAny reports whether the main rewarder or any resolvable
// extra pool is due for a snapshot. Read-only; backs the scheduler's
// ShouldSnapshot query.
func (a *AprAggregator) ShouldSnapshotAny(ctx context.Context, tr *SnapshotTracker) (bool, error) {
	obs, err := a.pools.Observe(ctx, a.rewarder)
	if err != nil {
		return false, fmt.Errorf("failed to observe main rewarder: %w", err)
	}
	if tr.ShouldSnapshotPool(obs) {
		return true, nil
	}

	extraCount, err := a.pools.ExtraRewardsLength(ctx, a.rewarder)
	if err != nil {
		return false, fmt.Errorf("failed to count extra rewards: %w", err)
	}
	for i := 0; i < extraCount; i++ {
		extra, err := a.pools.ExtraRewards(ctx, a.rewarder, i)
		if err != nil {
			return false, fmt.Errorf("failed to read extra reward pool %d: %w", i, err)
		}
		token, err := a.strategy.ResolveRewardToken(ctx, extra)
		if err != nil {
			return false, err
		}
		if token == (common.Address{}) {
			continue
		}
		extraObs, err := a.pools.Observe(ctx, extra)
		if err != nil {
			return false, fmt.Errorf("failed to observe extra rewarder %s: %w", extra.Hex(), err)
		}
		if tr.ShouldSnapshotPool(extraObs) {
			return true, nil
		}
	}
	return false, nil
}

// computeAPR prices one reward row against the pool's safe supply. Expired
// programs, zero emissions, and pools without a completed measurement all
// contribute zero without consulting the pricing oracle.
func (a *AprAggregator) computeAPR(
	ctx context.Context,
	tr *SnapshotTracker,
	pool common.Address,
	lpPrice sdkmath.Int,
	token common.Address,
	annualizedAmount sdkmath.Int,
	periodFinish time.Time,
	now time.Time,
) (sdkmath.Int, error) {
	if now.After(periodFinish) || annualizedAmount.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	fast, slow, err := a.incentivePricing.GetPrice(ctx, token, PriceMaxStaleness)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to price reward token %s: %w", token.Hex(), err)
	}
	price := pricing.MinPrice(fast, slow)

	denominator := tr.SafeTotalSupply(pool).Mul(lpPrice)
	if denominator.IsZero() {
		// No completed measurement yet; not an error, the pool simply does
		// not contribute until a window finalizes.
		return sdkmath.ZeroInt(), nil
	}

	return annualizedAmount.Mul(price).Mul(oneE18).Quo(denominator), nil
}
