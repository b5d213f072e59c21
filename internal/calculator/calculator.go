/*

This file contains the public lifecycle of one incentive calculator
instance: one-shot initialization, the scheduler-facing ShouldSnapshot
query, the mutating Snapshot pass, and the read-only Current view consumed
by the rebalancing strategy.

*/

package calculator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/arcvault/yielder/internal/datafetcher"
	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/pricing"
	"github.com/arcvault/yielder/internal/types"
)

var (
	ErrAlreadyInitialized = errors.New("calculator already initialized")
	ErrNotInitialized     = errors.New("calculator not initialized")
	ErrZeroAddress        = errors.New("address cannot be zero")
)

// Dependencies holds the external collaborators injected into a calculator.
type Dependencies struct {
	Pools            datafetcher.RewardPoolReader
	RootOracle       pricing.RootPriceOracle
	IncentivePricing pricing.IncentivePricing
	Underlyer        datafetcher.UnderlyerStatsProvider
	Strategy         PlatformStrategy

	// Now overrides the wall clock; nil means time.Now. Tests drive the
	// engine with a synthetic clock through this hook.
	Now func() time.Time
}

// InitConfig is the one-shot initialization payload.
type InitConfig struct {
	AprID           string
	DependentAprIDs []string
	Rewarder        common.Address
	LPToken         common.Address
	PlatformToken   common.Address
}

// Calculator is the yield-accounting engine for one reward-program
// grouping. All public methods are safe for concurrent use; each call runs
// to completion under one lock so no two calls interleave their writes.
type Calculator struct {
	mu     sync.Mutex
	logger zerolog.Logger
	deps   Dependencies
	now    func() time.Time

	initialized     bool
	aprID           string
	dependentAprIDs []string
	rewarder        common.Address
	lpToken         common.Address
	platformToken   common.Address

	aggregator *AprAggregator
	tracker    *SnapshotTracker
	credits    *CreditDecayEngine
	state      types.EngineState
}

// New creates an uninitialized calculator with dependency injection.
func New(deps Dependencies) (*Calculator, error) {
	if err := validateDependencies(deps); err != nil {
		return nil, fmt.Errorf("calculator dependency validation failed: %w", err)
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Calculator{
		logger: logger.GetForComponent("incentive_calculator"),
		deps:   deps,
		now:    now,
	}, nil
}

// validateDependencies validates the injected collaborators.
func validateDependencies(deps Dependencies) error {
	if deps.Pools == nil {
		return errors.New("reward pool reader cannot be nil")
	}
	if deps.RootOracle == nil {
		return errors.New("root price oracle cannot be nil")
	}
	if deps.IncentivePricing == nil {
		return errors.New("incentive pricing cannot be nil")
	}
	if deps.Underlyer == nil {
		return errors.New("underlyer stats provider cannot be nil")
	}
	if deps.Strategy == nil {
		return errors.New("platform strategy cannot be nil")
	}
	return nil
}

// Initialize performs the one-time setup. Calling it twice, or with a zero
// address anywhere, is a configuration error.
func (c *Calculator) Initialize(cfg InitConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return ErrAlreadyInitialized
	}
	if cfg.AprID == "" {
		return errors.New("apr id cannot be empty")
	}
	if cfg.Rewarder == (common.Address{}) {
		return fmt.Errorf("%w: rewarder", ErrZeroAddress)
	}
	if cfg.LPToken == (common.Address{}) {
		return fmt.Errorf("%w: lp token", ErrZeroAddress)
	}
	if cfg.PlatformToken == (common.Address{}) {
		return fmt.Errorf("%w: platform token", ErrZeroAddress)
	}

	aggregator, err := NewAprAggregator(
		c.deps.Pools, c.deps.RootOracle, c.deps.IncentivePricing, c.deps.Strategy,
		cfg.Rewarder, cfg.LPToken, cfg.PlatformToken,
	)
	if err != nil {
		return err
	}

	c.aprID = cfg.AprID
	c.dependentAprIDs = append([]string(nil), cfg.DependentAprIDs...)
	c.rewarder = cfg.Rewarder
	c.lpToken = cfg.LPToken
	c.platformToken = cfg.PlatformToken
	c.aggregator = aggregator
	c.tracker = NewSnapshotTracker()
	c.credits = NewCreditDecayEngine()
	c.state = types.NewEngineState(c.now())
	c.initialized = true

	c.logger.Info().
		Str("aprID", c.aprID).
		Str("rewarder", c.rewarder.Hex()).
		Str("lpToken", c.lpToken.Hex()).
		Str("platform", c.deps.Strategy.Name()).
		Msg("Calculator initialized")

	return nil
}

// AprID returns the registry identifier of this calculator.
func (c *Calculator) AprID() string {
	return c.aprID
}

// AddressID returns the address this calculator reports stats for: the
// staked LP token.
func (c *Calculator) AddressID() common.Address {
	return c.lpToken
}

// DependentAprIDs returns the registry identifiers this calculator depends
// on.
func (c *Calculator) DependentAprIDs() []string {
	return append([]string(nil), c.dependentAprIDs...)
}

// EngineState returns a copy of the committed credit-accounting state.
func (c *Calculator) EngineState() types.EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ShouldSnapshot reports whether a Snapshot call is currently worth paying
// for. It never mutates state; an external scheduler polls it between
// snapshot calls.
func (c *Calculator) ShouldSnapshot(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return false, ErrNotInitialized
	}
	return c.aggregator.ShouldSnapshotAny(ctx, c.tracker)
}

// Snapshot runs one full measurement pass: due pools transition their
// measurement windows, the aggregate APR is computed, and the credit state
// machine advances. The pass is atomic; any chain or oracle failure aborts
// it with no state committed.
func (c *Calculator) Snapshot(ctx context.Context) (types.CreditEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return types.CreditEvent{}, ErrNotInitialized
	}

	// All mutations land on a working copy; the swap below is the commit
	// point, so a failure anywhere leaves the calculator untouched.
	working := c.tracker.Clone()
	breakdown, err := c.aggregator.ComputeTotalAPR(ctx, working, true)
	if err != nil {
		return types.CreditEvent{}, fmt.Errorf("snapshot aborted: %w", err)
	}

	nextState, event := c.credits.Update(c.state, breakdown.TotalAPR, c.now())
	event.AprID = c.aprID
	event.AddressID = c.lpToken

	c.tracker = working
	c.state = nextState

	return event, nil
}

// Current returns the canonical read: per-row reward data from the
// persisted safe supplies, the credit value, and the underlyer stats
// pass-through. Persisted snapshot state is never mutated.
//
// The credit value may differ from the committed one: when the engine is
// decaying and the freshly computed view APR has not improved over the last
// committed APR, the decay that would land at the next snapshot is applied
// to the returned value only. Consumers that need the committed ground
// truth should read EngineState instead.
func (c *Calculator) Current(ctx context.Context) (types.CalculatorStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return types.CalculatorStats{}, ErrNotInitialized
	}

	breakdown, err := c.aggregator.ComputeTotalAPR(ctx, c.tracker, false)
	if err != nil {
		return types.CalculatorStats{}, fmt.Errorf("current aborted: %w", err)
	}

	incentive := types.IncentiveStats{
		SafeTotalSupply:         breakdown.MainSafeSupply,
		RewardTokens:            make([]common.Address, 0, len(breakdown.Rows)),
		AnnualizedRewardAmounts: make([]sdkmath.Int, 0, len(breakdown.Rows)),
		PeriodFinishForRewards:  make([]time.Time, 0, len(breakdown.Rows)),
		IncentiveCredits:        SpeculativeCredits(c.state, breakdown.TotalAPR, c.now()),
	}
	for _, row := range breakdown.Rows {
		incentive.RewardTokens = append(incentive.RewardTokens, row.RewardToken)
		incentive.AnnualizedRewardAmounts = append(incentive.AnnualizedRewardAmounts, row.AnnualizedReward)
		incentive.PeriodFinishForRewards = append(incentive.PeriodFinishForRewards, row.PeriodFinish)
	}

	underlyer, err := c.deps.Underlyer.Current(ctx)
	if err != nil {
		return types.CalculatorStats{}, fmt.Errorf("current aborted: %w", err)
	}

	return types.CalculatorStats{
		AprID:     c.aprID,
		AddressID: c.lpToken,
		Incentive: incentive,
		Underlyer: underlyer,
	}, nil
}
