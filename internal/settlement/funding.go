// Package settlement computes periodic funding fees for open contract
// positions. Long positions pay the fee, short positions receive it.
package settlement

import (
	"context"
	"fmt"

	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/money"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	fundingFeeScale = 3

	indexPriceKeyFormat = "contract:market:price:%s"
)

// LoadIndexPrice reads a contract's index price from the redis cache.
// A missing, unparseable or non-positive value is soft-unavailable: it
// is logged and reported as absent, never as an error.
func LoadIndexPrice(ctx context.Context, client *redis.Client, symbolUpper string) (decimal.Decimal, bool) {
	logger := log.With().
		Str("component", "settlement").
		Str("symbol", symbolUpper).
		Logger()

	raw, err := client.Get(ctx, fmt.Sprintf(indexPriceKeyFormat, symbolUpper)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Error().Err(err).Msg("failed to read index price from cache")
		}
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		logger.Error().Err(err).Str("raw", raw).Msg("failed to parse index price")
		return decimal.Zero, false
	}
	if price.Sign() <= 0 {
		logger.Warn().Str("price", price.String()).Msg("index price is non-positive")
		return decimal.Zero, false
	}
	return price, true
}

// ComputeFundingFees sets the current funding amount on each position:
// position value times the funding rate, negated for longs (they pay),
// at a fixed scale rounded up. Position value is taken at markPrice
// when one is supplied, at the entry price otherwise. A zero rate
// zeroes every fee.
func ComputeFundingFees(symbol *types.SymbolConfig, fundingRate, markPrice decimal.Decimal, positions []*types.Position) {
	if symbol == nil || len(positions) == 0 {
		return
	}
	if fundingRate.Sign() == 0 {
		for _, p := range positions {
			if p != nil {
				p.CurFundingAmount = decimal.Zero
			}
		}
		return
	}

	for _, p := range positions {
		if p == nil {
			continue
		}
		price := markPrice
		if price.Sign() <= 0 {
			price = p.AvgPrice
		}
		positionValue := money.TradeNotional(p.Volume, price, symbol.Multiplier)
		fee := positionValue.Mul(fundingRate)
		if p.IsLong() {
			fee = fee.Neg()
		}
		p.CurFundingAmount = fee.RoundUp(fundingFeeScale)
	}
}
