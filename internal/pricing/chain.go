/*

This file contains the on-chain oracle clients. The root oracle contract
serves ETH-denominated LP token prices; the incentive pricing contract
serves dual-filtered (fast and slow EMA) quotes for reward tokens, with the
staleness bound enforced contract-side through the seconds argument.

*/

package pricing

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
)

var pricingLogger = logger.GetForComponent("pricing_client")

const oracleABIJSON = `[
	{"name":"getPriceInEth","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"price","type":"uint256"}]},
	{"name":"getPrice","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"address"},{"name":"maxAge","type":"uint40"}],"outputs":[{"name":"fastPrice","type":"uint256"},{"name":"slowPrice","type":"uint256"},{"name":"isSpotSafe","type":"bool"}]}
]`

// ChainOracleClient implements both pricing interfaces against the deployed
// oracle contracts.
type ChainOracleClient struct {
	client           *ethclient.Client
	abi              abi.ABI
	rootOracle       common.Address
	incentivePricing common.Address
}

// NewChainOracleClient wires a client against the two oracle contracts.
func NewChainOracleClient(client *ethclient.Client, rootOracle, incentivePricing common.Address) (*ChainOracleClient, error) {
	if client == nil {
		return nil, errors.New("eth client cannot be nil")
	}
	if rootOracle == (common.Address{}) || incentivePricing == (common.Address{}) {
		return nil, errors.New("oracle addresses cannot be zero")
	}
	parsed, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse oracle ABI: %w", err)
	}
	return &ChainOracleClient{
		client:           client,
		abi:              parsed,
		rootOracle:       rootOracle,
		incentivePricing: incentivePricing,
	}, nil
}

// GetPriceInEth returns the root oracle's ETH price for one unit of the
// token, 1e18 fixed point.
func (c *ChainOracleClient) GetPriceInEth(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	out, err := c.call(ctx, c.rootOracle, "getPriceInEth", token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	price, ok := out[0].(*big.Int)
	if !ok || price == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: root oracle returned non-uint256 for %s", ErrNoPrice, token.Hex())
	}
	if price.Sign() == 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNoPrice, token.Hex())
	}
	return sdkmath.NewIntFromBigInt(price), nil
}

// GetPrice returns the fast and slow filtered ETH prices for the token. The
// contract reverts on data older than maxStaleness; that revert surfaces
// here as ErrStalePrice.
func (c *ChainOracleClient) GetPrice(ctx context.Context, token common.Address, maxStaleness time.Duration) (sdkmath.Int, sdkmath.Int, error) {
	maxAge := big.NewInt(int64(maxStaleness / time.Second))
	out, err := c.call(ctx, c.incentivePricing, "getPrice", token, maxAge)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %s: %w", ErrStalePrice, token.Hex(), err)
	}
	if len(out) < 2 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: truncated getPrice return for %s", ErrNoPrice, token.Hex())
	}

	fast, fastOK := out[0].(*big.Int)
	slow, slowOK := out[1].(*big.Int)
	if !fastOK || !slowOK || fast == nil || slow == nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: malformed getPrice return for %s", ErrNoPrice, token.Hex())
	}
	if fast.Sign() == 0 && slow.Sign() == 0 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNoPrice, token.Hex())
	}

	pricingLogger.Debug().
		Str("token", token.Hex()).
		Str("fast", fast.String()).
		Str("slow", slow.String()).
		Msg("Fetched incentive token price")

	return sdkmath.NewIntFromBigInt(fast), sdkmath.NewIntFromBigInt(slow), nil
}

func (c *ChainOracleClient) call(ctx context.Context, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		pricingLogger.Error().Err(err).Str("contract", to.Hex()).Str("method", method).Msg("Oracle call failed")
		return nil, fmt.Errorf("oracle call %s on %s failed: %w", method, to.Hex(), err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s from %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty return from %s on %s", method, to.Hex())
	}
	return out, nil
}
