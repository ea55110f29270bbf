package liquidation

import (
	"errors"

	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity   = errors.New("position quantity must be positive")
	ErrInvalidMultiplier = errors.New("contract multiplier must be positive")
	ErrInvalidLeverage   = errors.New("leverage must be positive")
)

var one = decimal.NewFromInt(1)

// PriceParams are the inputs to the liquidation-price formula.
type PriceParams struct {
	Price          decimal.Decimal // average entry price
	Quantity       decimal.Decimal // position volume in contracts
	Multiplier     decimal.Decimal // contract size scalar
	Leverage       decimal.Decimal
	Margin         decimal.Decimal // margin held against the position
	Side           string          // BUY (long) or SELL (short)
	PricePrecision int32
}

// Price computes the price at which the position must be force-closed.
// ok is false when no liquidation price exists: a 1x long holding a
// margin surplus cannot be forced. Errors indicate invalid inputs, not
// an undefined result.
func Price(p PriceParams, table *FactorTable) (price decimal.Decimal, ok bool, err error) {
	if p.Quantity.Sign() <= 0 {
		return decimal.Zero, false, ErrInvalidQuantity
	}
	if p.Multiplier.Sign() <= 0 {
		return decimal.Zero, false, ErrInvalidMultiplier
	}
	if p.Leverage.Sign() <= 0 {
		return decimal.Zero, false, ErrInvalidLeverage
	}

	positionValue := money.TradeNotional(p.Quantity, p.Price, p.Multiplier)
	requiredMargin := positionValue.DivRound(p.Leverage, money.DivisionScale)
	marginDiff := p.Margin.Sub(requiredMargin)
	priceGap := marginDiff.DivRound(p.Quantity.Mul(p.Multiplier), money.DivisionScale)

	var configured decimal.Decimal
	isLong := p.Side == types.SideBuy
	if p.Leverage.Equal(one) && isLong {
		if marginDiff.Sign() > 0 {
			return decimal.Zero, false, nil
		}
		configured = table.LeverageOneFactor
	} else {
		configured = table.Resolve(p.Leverage, positionValue)
	}
	factor := one.DivRound(p.Leverage, money.DivisionScale).Sub(configured)

	if isLong {
		base := money.CeilToScale(p.Price.Mul(one.Sub(factor)), p.PricePrecision)
		return base.Sub(priceGap), true, nil
	}
	base := money.CeilToScale(p.Price.Mul(one.Add(factor)), p.PricePrecision)
	return base.Add(priceGap), true, nil
}
