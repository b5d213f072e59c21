package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/types"
)

var poolLogger = logger.GetForComponent("reward_pool_fetcher")
var ErrInvalidPoolData = errors.New("invalid reward pool data")
var ErrCallFailed = errors.New("contract call failed")

// RewardPoolReader reads a staking rewarder's public state. One Observe call
// produces an internally consistent view of the pool; the individual
// accessors exist for callers that only need a single field.
type RewardPoolReader interface {
	Observe(ctx context.Context, pool common.Address) (types.RewardPoolObservation, error)
	RewardToken(ctx context.Context, pool common.Address) (common.Address, error)
	ExtraRewardsLength(ctx context.Context, pool common.Address) (int, error)
	ExtraRewards(ctx context.Context, pool common.Address, index int) (common.Address, error)
}

// TokenSupplyReader reads an ERC-20 total supply.
type TokenSupplyReader interface {
	TotalSupply(ctx context.Context, token common.Address) (sdkmath.Int, error)
}

// StashReader unwraps the stash-token indirection some reward-program
// families place between an extra rewarder and its real reward token.
type StashReader interface {
	// StashToken returns the underlying token wrapped by the stash.
	StashToken(ctx context.Context, stash common.Address) (common.Address, error)
	// StashInvalid reports whether the stash has been flagged invalid.
	StashInvalid(ctx context.Context, stash common.Address) (bool, error)
	// BaseToken returns the base token behind a virtual reward wrapper.
	BaseToken(ctx context.Context, stash common.Address) (common.Address, error)
}

// rewarderABIJSON covers the read surface of the staking rewarder, the
// ERC-20 supply call, and both stash-token unwrap conventions.
const rewarderABIJSON = `[
	{"type":"function","name":"rewardRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"rewardPerToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"periodFinish","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"rewardToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"extraRewardsLength","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"extraRewards","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isInvalid","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"baseToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// ChainPoolReader is the live RewardPoolReader/TokenSupplyReader/StashReader
// backed by an EVM node over JSON-RPC.
type ChainPoolReader struct {
	client *ethclient.Client
	abi    abi.ABI
}

// NewChainPoolReader creates a reader bound to the given node client.
func NewChainPoolReader(client *ethclient.Client) (*ChainPoolReader, error) {
	if client == nil {
		return nil, errors.New("eth client cannot be nil")
	}

	parsed, err := abi.JSON(strings.NewReader(rewarderABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rewarder ABI: %w", err)
	}

	return &ChainPoolReader{client: client, abi: parsed}, nil
}

// Observe reads the full public state of a rewarder in one pass.
func (r *ChainPoolReader) Observe(ctx context.Context, pool common.Address) (types.RewardPoolObservation, error) {
	if pool == (common.Address{}) {
		return types.RewardPoolObservation{}, fmt.Errorf("%w: zero pool address", ErrInvalidPoolData)
	}

	observedAt := time.Now()

	rate, err := r.callUint(ctx, pool, "rewardRate")
	if err != nil {
		return types.RewardPoolObservation{}, err
	}
	supply, err := r.callUint(ctx, pool, "totalSupply")
	if err != nil {
		return types.RewardPoolObservation{}, err
	}
	rewardPerToken, err := r.callUint(ctx, pool, "rewardPerToken")
	if err != nil {
		return types.RewardPoolObservation{}, err
	}
	periodFinish, err := r.callUint(ctx, pool, "periodFinish")
	if err != nil {
		return types.RewardPoolObservation{}, err
	}
	rewardToken, err := r.callAddress(ctx, pool, "rewardToken")
	if err != nil {
		return types.RewardPoolObservation{}, err
	}

	if !periodFinish.IsInt64() {
		return types.RewardPoolObservation{}, fmt.Errorf("%w: periodFinish overflows unix time for pool %s", ErrInvalidPoolData, pool.Hex())
	}

	obs := types.RewardPoolObservation{
		Pool:           pool,
		RewardToken:    rewardToken,
		RewardRate:     rate,
		TotalSupply:    supply,
		RewardPerToken: rewardPerToken,
		PeriodFinish:   time.Unix(periodFinish.Int64(), 0).UTC(),
		ObservedAt:     observedAt,
	}

	poolLogger.Debug().
		Str("pool", pool.Hex()).
		Str("rewardRate", rate.String()).
		Str("totalSupply", supply.String()).
		Time("periodFinish", obs.PeriodFinish).
		Msg("Observed reward pool state")

	return obs, nil
}

// RewardToken returns the nominal reward token of a rewarder. For extra
// reward pools this is usually a stash token that still needs unwrapping.
func (r *ChainPoolReader) RewardToken(ctx context.Context, pool common.Address) (common.Address, error) {
	return r.callAddress(ctx, pool, "rewardToken")
}

// ExtraRewardsLength returns the number of extra sub-reward pools.
func (r *ChainPoolReader) ExtraRewardsLength(ctx context.Context, pool common.Address) (int, error) {
	n, err := r.callUint(ctx, pool, "extraRewardsLength")
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() < 0 {
		return 0, fmt.Errorf("%w: extraRewardsLength out of range for pool %s", ErrInvalidPoolData, pool.Hex())
	}
	return int(n.Int64()), nil
}

// ExtraRewards returns the address of the i-th extra sub-reward pool.
func (r *ChainPoolReader) ExtraRewards(ctx context.Context, pool common.Address, index int) (common.Address, error) {
	if index < 0 {
		return common.Address{}, fmt.Errorf("%w: negative extra rewards index", ErrInvalidPoolData)
	}
	return r.callAddress(ctx, pool, "extraRewards", big.NewInt(int64(index)))
}

// TotalSupply returns the ERC-20 total supply of a token.
func (r *ChainPoolReader) TotalSupply(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	return r.callUint(ctx, token, "totalSupply")
}

// StashToken returns the token a stash contract wraps.
func (r *ChainPoolReader) StashToken(ctx context.Context, stash common.Address) (common.Address, error) {
	return r.callAddress(ctx, stash, "token")
}

// StashInvalid reports the stash contract's validity flag.
func (r *ChainPoolReader) StashInvalid(ctx context.Context, stash common.Address) (bool, error) {
	out, err := r.call(ctx, stash, "isInvalid")
	if err != nil {
		return false, err
	}
	invalid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: isInvalid returned non-bool for %s", ErrInvalidPoolData, stash.Hex())
	}
	return invalid, nil
}

// BaseToken returns the base token behind a virtual reward wrapper.
func (r *ChainPoolReader) BaseToken(ctx context.Context, stash common.Address) (common.Address, error) {
	return r.callAddress(ctx, stash, "baseToken")
}

func (r *ChainPoolReader) call(ctx context.Context, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: packing %s: %w", ErrCallFailed, method, err)
	}

	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		poolLogger.Error().Err(err).Str("contract", to.Hex()).Str("method", method).Msg("Contract call failed")
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrCallFailed, method, to.Hex(), err)
	}

	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpacking %s from %s: %w", ErrCallFailed, method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty return from %s on %s", ErrCallFailed, method, to.Hex())
	}
	return out, nil
}

func (r *ChainPoolReader) callUint(ctx context.Context, to common.Address, method string, args ...interface{}) (sdkmath.Int, error) {
	out, err := r.call(ctx, to, method, args...)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, ok := out[0].(*big.Int)
	if !ok || value == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s returned non-uint256 from %s", ErrInvalidPoolData, method, to.Hex())
	}
	return sdkmath.NewIntFromBigInt(value), nil
}

func (r *ChainPoolReader) callAddress(ctx context.Context, to common.Address, method string, args ...interface{}) (common.Address, error) {
	out, err := r.call(ctx, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned non-address from %s", ErrInvalidPoolData, method, to.Hex())
	}
	return addr, nil
}
