/*

This file defines the pricing interfaces the engine consumes. Price
discovery itself lives outside this repository; the engine only requires
that quotes are ETH-denominated 1e18 fixed-point values and that the
incentive oracle rejects data older than the requested staleness bound.

*/

package pricing

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrStalePrice is returned when an oracle cannot produce a quote within
	// the requested staleness bound. The engine treats it as a transient
	// failure: the whole snapshot call aborts and a later cycle retries.
	ErrStalePrice = errors.New("price data exceeds staleness bound")

	// ErrNoPrice is returned when an oracle has no quote at all for a token.
	ErrNoPrice = errors.New("no price available for token")
)

// RootPriceOracle supplies token-to-ETH conversion rates for LP tokens.
type RootPriceOracle interface {
	// GetPriceInEth returns the ETH price of one unit of the token,
	// 1e18 fixed point.
	GetPriceInEth(ctx context.Context, token common.Address) (sdkmath.Int, error)
}

// IncentivePricing supplies dual-filtered prices for incentive reward
// tokens. The fast filter tracks recent trades, the slow filter a longer
// window; consumers take the conservative of the two.
type IncentivePricing interface {
	// GetPrice returns the fast and slow filtered ETH prices for the token.
	// Both are 1e18 fixed point. Data older than maxStaleness must be
	// rejected with ErrStalePrice.
	GetPrice(ctx context.Context, token common.Address, maxStaleness time.Duration) (fast, slow sdkmath.Int, err error)
}

// MinPrice returns the conservative (lower) of the fast and slow filtered
// prices.
func MinPrice(fast, slow sdkmath.Int) sdkmath.Int {
	if slow.LT(fast) {
		return slow
	}
	return fast
}
