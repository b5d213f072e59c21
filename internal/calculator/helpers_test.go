package calculator

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/arcvault/yielder/internal/types"
)

// Shared fakes for the calculator tests. The fake chain simulates the
// accrual relation rewardPerToken += elapsed * rate * 1e18 / stakedSupply,
// with the reported totalSupply decoupled from the staked supply that
// actually drives accrual so manipulation scenarios can be expressed.

var (
	rewarderAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lpTokenAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	platformAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	mainTokenAddr = common.HexToAddress("0x4444444444444444444444444444444444444444")
	extraPoolAddr = common.HexToAddress("0x5555555555555555555555555555555555555555")
	stashAddr     = common.HexToAddress("0x6666666666666666666666666666666666666666")
	extraTokAddr  = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakePool struct {
	rewardToken    common.Address
	rewardRate     sdkmath.Int
	totalSupply    sdkmath.Int
	stakedSupply   sdkmath.Int
	rewardPerToken sdkmath.Int
	periodFinish   time.Time
}

type fakeChain struct {
	clock  *fakeClock
	pools  map[common.Address]*fakePool
	extras []common.Address

	stashToken   map[common.Address]common.Address
	stashInvalid map[common.Address]bool
	baseToken    map[common.Address]common.Address
	supplies     map[common.Address]sdkmath.Int

	observeErr error
}

func newFakeChain(clock *fakeClock) *fakeChain {
	return &fakeChain{
		clock:        clock,
		pools:        make(map[common.Address]*fakePool),
		stashToken:   make(map[common.Address]common.Address),
		stashInvalid: make(map[common.Address]bool),
		baseToken:    make(map[common.Address]common.Address),
		supplies:     make(map[common.Address]sdkmath.Int),
	}
}

// addPool registers a pool whose accrual is driven by stakedSupply.
func (f *fakeChain) addPool(addr, token common.Address, rewardRate, stakedSupply sdkmath.Int) *fakePool {
	p := &fakePool{
		rewardToken:    token,
		rewardRate:     rewardRate,
		totalSupply:    stakedSupply,
		stakedSupply:   stakedSupply,
		rewardPerToken: sdkmath.ZeroInt(),
		periodFinish:   f.clock.now.Add(365 * 24 * time.Hour),
	}
	f.pools[addr] = p
	return p
}

// advance moves the clock and accrues rewardPerToken on every pool.
func (f *fakeChain) advance(d time.Duration) {
	f.clock.now = f.clock.now.Add(d)
	seconds := int64(d / time.Second)
	for _, p := range f.pools {
		if p.rewardRate.IsZero() || p.stakedSupply.IsZero() {
			continue
		}
		accrued := p.rewardRate.MulRaw(seconds).Mul(oneE18).Quo(p.stakedSupply)
		p.rewardPerToken = p.rewardPerToken.Add(accrued)
	}
}

func (f *fakeChain) Observe(ctx context.Context, pool common.Address) (types.RewardPoolObservation, error) {
	if f.observeErr != nil {
		return types.RewardPoolObservation{}, f.observeErr
	}
	p, ok := f.pools[pool]
	if !ok {
		return types.RewardPoolObservation{}, errors.New("unknown pool")
	}
	return types.RewardPoolObservation{
		Pool:           pool,
		RewardToken:    p.rewardToken,
		RewardRate:     p.rewardRate,
		TotalSupply:    p.totalSupply,
		RewardPerToken: p.rewardPerToken,
		PeriodFinish:   p.periodFinish,
		ObservedAt:     f.clock.now,
	}, nil
}

func (f *fakeChain) RewardToken(ctx context.Context, pool common.Address) (common.Address, error) {
	p, ok := f.pools[pool]
	if !ok {
		return common.Address{}, errors.New("unknown pool")
	}
	return p.rewardToken, nil
}

func (f *fakeChain) ExtraRewardsLength(ctx context.Context, pool common.Address) (int, error) {
	return len(f.extras), nil
}

func (f *fakeChain) ExtraRewards(ctx context.Context, pool common.Address, index int) (common.Address, error) {
	if index < 0 || index >= len(f.extras) {
		return common.Address{}, errors.New("extra reward index out of range")
	}
	return f.extras[index], nil
}

func (f *fakeChain) TotalSupply(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	supply, ok := f.supplies[token]
	if !ok {
		return sdkmath.ZeroInt(), errors.New("unknown token")
	}
	return supply, nil
}

func (f *fakeChain) StashToken(ctx context.Context, stash common.Address) (common.Address, error) {
	token, ok := f.stashToken[stash]
	if !ok {
		return common.Address{}, errors.New("unknown stash")
	}
	return token, nil
}

func (f *fakeChain) StashInvalid(ctx context.Context, stash common.Address) (bool, error) {
	return f.stashInvalid[stash], nil
}

func (f *fakeChain) BaseToken(ctx context.Context, stash common.Address) (common.Address, error) {
	base, ok := f.baseToken[stash]
	if !ok {
		return common.Address{}, errors.New("unknown wrapper")
	}
	return base, nil
}

type fakeOracle struct {
	lpPrices   map[common.Address]sdkmath.Int
	fastPrices map[common.Address]sdkmath.Int
	slowPrices map[common.Address]sdkmath.Int
	rootErr    error
	pricingErr error
	priceCalls int
	rootCalls  int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		lpPrices:   make(map[common.Address]sdkmath.Int),
		fastPrices: make(map[common.Address]sdkmath.Int),
		slowPrices: make(map[common.Address]sdkmath.Int),
	}
}

func (o *fakeOracle) GetPriceInEth(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	o.rootCalls++
	if o.rootErr != nil {
		return sdkmath.ZeroInt(), o.rootErr
	}
	price, ok := o.lpPrices[token]
	if !ok {
		return sdkmath.ZeroInt(), errors.New("no lp price")
	}
	return price, nil
}

func (o *fakeOracle) GetPrice(ctx context.Context, token common.Address, maxStaleness time.Duration) (sdkmath.Int, sdkmath.Int, error) {
	o.priceCalls++
	if o.pricingErr != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), o.pricingErr
	}
	fast, ok := o.fastPrices[token]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.New("no incentive price")
	}
	slow, ok := o.slowPrices[token]
	if !ok {
		slow = fast
	}
	return fast, slow, nil
}

type fakeUnderlyer struct {
	payload types.UnderlyerStats
	err     error
}

func (u *fakeUnderlyer) Current(ctx context.Context) (types.UnderlyerStats, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.payload, nil
}

// newTestCalculator wires a calculator over the fakes with a Convex strategy
// and a single main rewarder.
func newTestCalculator(clock *fakeClock, chain *fakeChain, oracle *fakeOracle) (*Calculator, error) {
	strategy, err := NewPlatformStrategy("convex", chain, chain, chain)
	if err != nil {
		return nil, err
	}

	calc, err := New(Dependencies{
		Pools:            chain,
		RootOracle:       oracle,
		IncentivePricing: oracle,
		Underlyer:        &fakeUnderlyer{payload: types.UnderlyerStats(`{"fee_apr":0.01}`)},
		Strategy:         strategy,
		Now:              clock.Now,
	})
	if err != nil {
		return nil, err
	}

	err = calc.Initialize(InitConfig{
		AprID:         "staked-lp-weth",
		Rewarder:      rewarderAddr,
		LPToken:       lpTokenAddr,
		PlatformToken: platformAddr,
	})
	if err != nil {
		return nil, err
	}
	return calc, nil
}
