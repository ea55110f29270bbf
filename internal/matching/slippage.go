package matching

import (
	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/money"
	"github.com/shopspring/decimal"
)

// slippageScale is the fixed fractional scale the per-trade slippage
// cost is rounded up to before it is charged against the budget.
const slippageScale = 16

// consumeSlippageBudget enforces the execution-cost ceiling for market
// orders from a human source. It returns true when the proposed trade
// may proceed, charging its cost against the order's budget; false when
// the budget is exhausted. Orders outside the check's scope (limit
// orders, robot flow, no rate, no reference price, no budget) are
// always permitted with the budget untouched.
func consumeSlippageBudget(taker *types.Order, trade *types.Trade) bool {
	if taker == nil || trade == nil {
		return true
	}
	if taker.OrderType != types.OrderTypeMarket {
		return true
	}
	if taker.Source == types.SourceRobot {
		return true
	}
	if taker.SlippageRate.Sign() <= 0 {
		return true
	}
	if taker.LastPrice.Sign() <= 0 {
		return true
	}
	if !taker.SlippageBudget.Valid {
		return true
	}

	unitCost := perUnitSlippageCost(taker.Side, taker.LastPrice, trade.Price)
	if unitCost.Sign() <= 0 {
		// Favorable or neutral execution is always permitted
		return true
	}

	remaining := taker.SlippageBudget.Decimal.Sub(taker.UsedSlippageBudget)
	if remaining.Sign() <= 0 {
		return false
	}

	cost := unitCost.Mul(trade.Volume).RoundUp(slippageScale)
	if cost.GreaterThan(remaining) {
		return false
	}
	taker.UsedSlippageBudget = taker.UsedSlippageBudget.Add(cost)
	return true
}

// perUnitSlippageCost is the unfavorable price movement per contract
// relative to the order's reference price, floored at zero.
func perUnitSlippageCost(side string, lastPrice, tradePrice decimal.Decimal) decimal.Decimal {
	if side == types.SideBuy {
		return money.MaxZero(tradePrice.Sub(lastPrice))
	}
	return money.MaxZero(lastPrice.Sub(tradePrice))
}
