/*

This file contains the per-family capability strategies. Each staking
platform family wraps its extra-reward tokens behind a different stash
convention and mints its platform token on a different declining-emission
schedule; both behaviors are injected into the calculator behind one
interface rather than baked into it.

*/

package calculator

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/arcvault/yielder/internal/datafetcher"
)

var ErrUnknownPlatform = errors.New("unknown reward platform")

// PlatformStrategy supplies the reward-program-family specific behavior.
type PlatformStrategy interface {
	// Name identifies the family ("convex", "aura").
	Name() string

	// ResolveRewardToken unwraps the stash indirection of an extra reward
	// pool and returns the real underlying token, or the zero address when
	// the stash is invalid and the row should be skipped.
	ResolveRewardToken(ctx context.Context, extraPool common.Address) (common.Address, error)

	// PlatformTokenMintAmount returns the amount of the platform token
	// minted for distributing primaryAmount of the main reward token, given
	// the platform token's current total supply and emission schedule.
	PlatformTokenMintAmount(ctx context.Context, platformToken common.Address, primaryAmount sdkmath.Int) (sdkmath.Int, error)
}

// NewPlatformStrategy selects a strategy by family name.
func NewPlatformStrategy(name string, pools datafetcher.RewardPoolReader, stash datafetcher.StashReader, supplies datafetcher.TokenSupplyReader) (PlatformStrategy, error) {
	if pools == nil || stash == nil || supplies == nil {
		return nil, errors.New("platform strategy dependencies cannot be nil")
	}
	switch name {
	case "convex":
		return &ConvexStrategy{pools: pools, stash: stash, supplies: supplies}, nil
	case "aura":
		return &AuraStrategy{pools: pools, stash: stash, supplies: supplies}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
}

// ConvexStrategy implements the Convex family conventions: extra rewarders
// hand out stash tokens carrying a validity flag, and the platform token is
// minted on a 1000-cliff schedule over a 100m max supply.
type ConvexStrategy struct {
	pools    datafetcher.RewardPoolReader
	stash    datafetcher.StashReader
	supplies datafetcher.TokenSupplyReader
}

var (
	convexCliffSize   = sdkmath.NewIntWithDecimal(100_000, 18)
	convexTotalCliffs = sdkmath.NewInt(1000)
	convexMaxSupply   = sdkmath.NewIntWithDecimal(100_000_000, 18)
)

func (s *ConvexStrategy) Name() string { return "convex" }

// ResolveRewardToken reads the extra rewarder's stash token and unwraps it,
// dropping stashes flagged invalid.
func (s *ConvexStrategy) ResolveRewardToken(ctx context.Context, extraPool common.Address) (common.Address, error) {
	stashToken, err := s.pools.RewardToken(ctx, extraPool)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read stash token of %s: %w", extraPool.Hex(), err)
	}
	if stashToken == (common.Address{}) {
		return common.Address{}, nil
	}

	invalid, err := s.stash.StashInvalid(ctx, stashToken)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to check stash validity of %s: %w", stashToken.Hex(), err)
	}
	if invalid {
		return common.Address{}, nil
	}

	underlying, err := s.stash.StashToken(ctx, stashToken)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unwrap stash %s: %w", stashToken.Hex(), err)
	}
	return underlying, nil
}

// PlatformTokenMintAmount applies the cliff schedule: emission shrinks by
// one thousandth per 100k tokens already minted and is capped at the
// remaining supply.
func (s *ConvexStrategy) PlatformTokenMintAmount(ctx context.Context, platformToken common.Address, primaryAmount sdkmath.Int) (sdkmath.Int, error) {
	supply, err := s.supplies.TotalSupply(ctx, platformToken)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read platform token supply: %w", err)
	}

	cliff := supply.Quo(convexCliffSize)
	if cliff.GTE(convexTotalCliffs) {
		return sdkmath.ZeroInt(), nil
	}

	reduction := convexTotalCliffs.Sub(cliff)
	amount := primaryAmount.Mul(reduction).Quo(convexTotalCliffs)

	remaining := convexMaxSupply.Sub(supply)
	if amount.GT(remaining) {
		amount = remaining
	}
	return amount, nil
}

// AuraStrategy implements the Aura family conventions: extra rewarders hand
// out virtual wrapper tokens unwrapped via baseToken(), and the platform
// token is minted on a 500-cliff schedule over a 50m emission range above
// the 50m initial mint.
type AuraStrategy struct {
	pools    datafetcher.RewardPoolReader
	stash    datafetcher.StashReader
	supplies datafetcher.TokenSupplyReader
}

var (
	auraInitMint           = sdkmath.NewIntWithDecimal(50_000_000, 18)
	auraEmissionsMaxSupply = sdkmath.NewIntWithDecimal(50_000_000, 18)
	auraTotalCliffs        = sdkmath.NewInt(500)
	auraCliffSize          = auraEmissionsMaxSupply.Quo(auraTotalCliffs)
)

func (s *AuraStrategy) Name() string { return "aura" }

// ResolveRewardToken unwraps the virtual wrapper via baseToken. Aura
// wrappers carry no validity flag; a zero base token skips the row.
func (s *AuraStrategy) ResolveRewardToken(ctx context.Context, extraPool common.Address) (common.Address, error) {
	wrapper, err := s.pools.RewardToken(ctx, extraPool)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read wrapper token of %s: %w", extraPool.Hex(), err)
	}
	if wrapper == (common.Address{}) {
		return common.Address{}, nil
	}

	base, err := s.stash.BaseToken(ctx, wrapper)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unwrap wrapper %s: %w", wrapper.Hex(), err)
	}
	return base, nil
}

// PlatformTokenMintAmount applies Aura's declining multiplier
// ((totalCliffs - cliff) * 5/2 + 700) / totalCliffs, capped at the
// remaining emission range. Tokens minted directly by the minter are not
// readable on-chain and are treated as zero, matching how the emission
// share is estimated elsewhere.
func (s *AuraStrategy) PlatformTokenMintAmount(ctx context.Context, platformToken common.Address, primaryAmount sdkmath.Int) (sdkmath.Int, error) {
	supply, err := s.supplies.TotalSupply(ctx, platformToken)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read platform token supply: %w", err)
	}

	emissionsMinted := supply.Sub(auraInitMint)
	if emissionsMinted.IsNegative() {
		emissionsMinted = sdkmath.ZeroInt()
	}

	cliff := emissionsMinted.Quo(auraCliffSize)
	if cliff.GTE(auraTotalCliffs) {
		return sdkmath.ZeroInt(), nil
	}

	reduction := auraTotalCliffs.Sub(cliff).MulRaw(5).QuoRaw(2).AddRaw(700)
	amount := primaryAmount.Mul(reduction).Quo(auraTotalCliffs)

	remaining := auraEmissionsMaxSupply.Sub(emissionsMinted)
	if amount.GT(remaining) {
		amount = remaining
	}
	return amount, nil
}
