package calculator

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewPlatformStrategy(t *testing.T) {
	require := require.New(t)

	clock := newFakeClock()
	chain := newFakeChain(clock)

	convex, err := NewPlatformStrategy("convex", chain, chain, chain)
	require.NoError(err)
	require.Equal("convex", convex.Name())

	aura, err := NewPlatformStrategy("aura", chain, chain, chain)
	require.NoError(err)
	require.Equal("aura", aura.Name())

	_, err = NewPlatformStrategy("yearn", chain, chain, chain)
	require.ErrorIs(err, ErrUnknownPlatform)
}

func TestConvexResolveRewardToken(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	clock := newFakeClock()
	chain := newFakeChain(clock)
	chain.addPool(extraPoolAddr, stashAddr, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	chain.stashToken[stashAddr] = extraTokAddr

	strategy, err := NewPlatformStrategy("convex", chain, chain, chain)
	require.NoError(err)

	token, err := strategy.ResolveRewardToken(ctx, extraPoolAddr)
	require.NoError(err)
	require.Equal(extraTokAddr, token)

	// An invalidated stash resolves to the zero address so the caller skips
	// the row.
	chain.stashInvalid[stashAddr] = true
	token, err = strategy.ResolveRewardToken(ctx, extraPoolAddr)
	require.NoError(err)
	require.Equal(common.Address{}, token)
}

func TestConvexMintSchedule(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	clock := newFakeClock()
	chain := newFakeChain(clock)

	strategy, err := NewPlatformStrategy("convex", chain, chain, chain)
	require.NoError(err)

	primary := sdkmath.NewIntWithDecimal(1000, 18)

	// Nothing minted yet: full pro rata emission.
	chain.supplies[platformAddr] = sdkmath.ZeroInt()
	amount, err := strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	require.True(amount.Equal(primary))

	// Halfway through the cliffs the emission halves.
	chain.supplies[platformAddr] = sdkmath.NewIntWithDecimal(50_000_000, 18)
	amount, err = strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	require.True(amount.Equal(primary.QuoRaw(2)))

	// Past the last cliff nothing is minted.
	chain.supplies[platformAddr] = sdkmath.NewIntWithDecimal(100_000_000, 18)
	amount, err = strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	require.True(amount.IsZero())

	// Near the supply cap the emission is truncated to what remains.
	remaining := sdkmath.NewIntWithDecimal(1, 18)
	chain.supplies[platformAddr] = sdkmath.NewIntWithDecimal(100_000_000, 18).Sub(remaining)
	amount, err = strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	require.True(amount.Equal(remaining))
}

func TestAuraResolveRewardToken(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	clock := newFakeClock()
	chain := newFakeChain(clock)
	chain.addPool(extraPoolAddr, stashAddr, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	chain.baseToken[stashAddr] = extraTokAddr

	strategy, err := NewPlatformStrategy("aura", chain, chain, chain)
	require.NoError(err)

	token, err := strategy.ResolveRewardToken(ctx, extraPoolAddr)
	require.NoError(err)
	require.Equal(extraTokAddr, token)
}

func TestAuraMintSchedule(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	clock := newFakeClock()
	chain := newFakeChain(clock)

	strategy, err := NewPlatformStrategy("aura", chain, chain, chain)
	require.NoError(err)

	primary := sdkmath.NewIntWithDecimal(1000, 18)
	initMint := sdkmath.NewIntWithDecimal(50_000_000, 18)

	// Before any emissions the multiplier is (500 * 5/2 + 700) / 500.
	chain.supplies[platformAddr] = initMint
	amount, err := strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	expected := primary.MulRaw(500*5/2 + 700).QuoRaw(500)
	require.True(amount.Equal(expected), "expected %s, got %s", expected, amount)

	// Supply below the initial mint is clamped, not treated as negative
	// emissions.
	chain.supplies[platformAddr] = initMint.QuoRaw(2)
	amount, err = strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	require.True(amount.Equal(expected))

	// 250 cliffs in: multiplier is (250 * 5/2 + 700) / 500.
	chain.supplies[platformAddr] = initMint.Add(sdkmath.NewIntWithDecimal(25_000_000, 18))
	amount, err = strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	expected = primary.MulRaw(250*5/2 + 700).QuoRaw(500)
	require.True(amount.Equal(expected), "expected %s, got %s", expected, amount)

	// Emissions exhausted: nothing mints.
	chain.supplies[platformAddr] = initMint.Add(sdkmath.NewIntWithDecimal(50_000_000, 18))
	amount, err = strategy.PlatformTokenMintAmount(ctx, platformAddr, primary)
	require.NoError(err)
	require.True(amount.IsZero())
}
