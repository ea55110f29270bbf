// Package liquidation drives forced position close-out: the tiered
// margin-factor lookup, the liquidation-price formula that decides when
// a position must be closed, and the orchestrator that resolves a
// liquidation event against ADL counterparties.
package liquidation

import "github.com/shopspring/decimal"

// ValueTier maps a position-value threshold to a margin factor. Tiers
// are scanned in ascending threshold order.
type ValueTier struct {
	Threshold decimal.Decimal
	Factor    decimal.Decimal
}

// LeverageBracket holds the value tiers applying to one leverage range.
// Bounds are inclusive.
type LeverageBracket struct {
	MinLeverage   decimal.Decimal
	MaxLeverage   decimal.Decimal
	Tiers         []ValueTier
	DefaultFactor decimal.Decimal
}

// FactorTable is a contract's full margin-factor configuration.
// Read-only at match and liquidation time.
type FactorTable struct {
	Brackets []LeverageBracket
	// DefaultFactor applies when no bracket contains the leverage.
	DefaultFactor decimal.Decimal
	// LeverageOneFactor is the dedicated factor for 1x long positions
	// with no margin surplus; it bypasses the bracket lookup.
	LeverageOneFactor decimal.Decimal
}

// Resolve returns the configured margin factor for a position: the
// first tier in the leverage's bracket whose threshold covers the
// position value, the bracket default when none does, or the table
// default when no bracket contains the leverage.
func (t *FactorTable) Resolve(leverage, positionValue decimal.Decimal) decimal.Decimal {
	for _, bracket := range t.Brackets {
		if leverage.LessThan(bracket.MinLeverage) || leverage.GreaterThan(bracket.MaxLeverage) {
			continue
		}
		for _, tier := range bracket.Tiers {
			if tier.Threshold.GreaterThanOrEqual(positionValue) {
				return tier.Factor
			}
		}
		return bracket.DefaultFactor
	}
	return t.DefaultFactor
}
