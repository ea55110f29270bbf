// Package money holds the exact-precision arithmetic helpers shared by
// the matching engine and the liquidation flows. All amounts are
// shopspring decimals; floats never touch money.
package money

import "github.com/shopspring/decimal"

// DivisionScale is the working scale for intermediate divisions before
// any caller-side truncation to a symbol's configured precision.
const DivisionScale = 16

// TradeNotional returns the quote value of a fill:
// volume x price x contract multiplier.
func TradeNotional(volume, price, multiplier decimal.Decimal) decimal.Decimal {
	return volume.Mul(price).Mul(multiplier)
}

// VolumeForNotional converts a quote amount into base contract quantity
// at the given price and multiplier. Returns zero when the price or
// multiplier is non-positive.
func VolumeForNotional(notional, price, multiplier decimal.Decimal) decimal.Decimal {
	unit := price.Mul(multiplier)
	if unit.Sign() <= 0 {
		return decimal.Zero
	}
	return notional.DivRound(unit, DivisionScale)
}

// StripRemainder drops any fractional remainder beyond the given
// precision, always toward zero. Used when translating a market order's
// quote budget into base volume: stripping down guarantees the spend
// never exceeds the declared notional.
func StripRemainder(v decimal.Decimal, precision int32) decimal.Decimal {
	return v.Truncate(precision)
}

// CeilToScale rounds up (toward positive infinity) at the given scale.
func CeilToScale(v decimal.Decimal, scale int32) decimal.Decimal {
	return v.RoundCeil(scale)
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxZero floors a decimal at zero.
func MaxZero(v decimal.Decimal) decimal.Decimal {
	if v.Sign() < 0 {
		return decimal.Zero
	}
	return v
}
