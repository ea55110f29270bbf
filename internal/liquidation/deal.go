package liquidation

import (
	"time"

	"github.com/google/uuid"
	"github.com/marginx/contract-core/internal/types"
	"github.com/shopspring/decimal"
)

// newDealTrade builds the trade record for one liquidation deal. The
// counterparty plays the maker, so the deal executes at its entry
// price; the trend side is the liquidated position's side.
func newDealTrade(symbol *types.SymbolConfig, target, counterparty *types.Position, volume decimal.Decimal) *types.Trade {
	now := time.Now()
	t := &types.Trade{
		TradeNonce: uuid.New().String(),
		Symbol:     symbol.ContractName,
		Price:      counterparty.AvgPrice,
		Volume:     volume,
		TrendSide:  target.Side,
		BuyType:    types.OrderTypeMarket,
		SellType:   types.OrderTypeMarket,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if target.Side == types.SideBuy {
		t.BidUID = target.UID
		t.AskUID = counterparty.UID
	} else {
		t.BidUID = counterparty.UID
		t.AskUID = target.UID
	}
	return t
}

// reducePosition consumes volume from a position, releasing margin
// proportionally and closing the position when it goes flat.
func reducePosition(p *types.Position, volume decimal.Decimal) {
	if p.Volume.Sign() <= 0 {
		return
	}
	ratio := p.Volume.Sub(volume).DivRound(p.Volume, 16)
	p.Margin = p.Margin.Mul(ratio)
	p.Volume = p.Volume.Sub(volume)
	if p.Volume.Sign() <= 0 {
		p.Volume = decimal.Zero
		p.Margin = decimal.Zero
		p.Status = types.PositionClosed
	}
	p.UpdatedAt = time.Now()
}
