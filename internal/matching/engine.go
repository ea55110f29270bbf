// Package matching implements the greedy price-time matching engine.
// A taker order is crossed against the opposite-side book until it is
// filled, the book no longer crosses, or the taker's slippage budget
// rejects the next fill.
package matching

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marginx/contract-core/internal/book"
	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/money"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TradeSink receives every trade the engine creates. Where trades are
// written is the sink's concern; implementations must be non-blocking
// or bounded since they run inside the symbol's critical section.
type TradeSink interface {
	CreateTrade(trade *types.Trade) error
}

// Engine matches taker orders against resting maker books. All crossing
// activity for one symbol is serialized through one exclusive lock held
// for the entire greedy loop; distinct symbols proceed in parallel.
type Engine struct {
	sink TradeSink

	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
}

// NewEngine creates a matching engine emitting trades to the given sink
func NewEngine(sink TradeSink) *Engine {
	return &Engine{
		sink:      sink,
		pairLocks: make(map[string]*sync.Mutex),
	}
}

// Match crosses the taker against the maker book and returns the taker
// with updated fill and budget state. A nil taker, symbol or book, or
// an unsupported order type, returns the taker unchanged rather than an
// error. The only error surfaced is a trade sink rejection, which stops
// the loop with the taker partially filled.
func (e *Engine) Match(symbol *types.SymbolConfig, taker *types.Order, makerBook *book.Book) (*types.Order, error) {
	if taker == nil || symbol == nil || makerBook == nil {
		return taker, nil
	}
	if taker.OrderType != types.OrderTypeLimit && taker.OrderType != types.OrderTypeMarket {
		return taker, nil
	}
	if taker.IsFilled() || makerBook.IsEmpty() {
		return taker, nil
	}

	pairLock := e.pairLock(symbol.ContractName)
	pairLock.Lock()
	defer pairLock.Unlock()

	logger := log.With().
		Str("component", "matching").
		Str("symbol", symbol.ContractName).
		Str("taker_id", taker.OrderID).
		Logger()

	for !taker.IsFilled() && !makerBook.IsEmpty() {
		maker := makerBook.PeekBest()
		if maker == nil {
			break
		}

		trade := e.tradeIfCrosses(symbol, taker, maker)
		if trade == nil {
			break
		}

		// The budget check runs before the trade is applied anywhere,
		// so a rejected trade never consumes book liquidity.
		if !consumeSlippageBudget(taker, trade) {
			logger.Debug().
				Str("trade_nonce", trade.TradeNonce).
				Str("maker_id", maker.OrderID).
				Msg("slippage budget exhausted, stopping match loop")
			break
		}

		applyToTaker(taker, trade)
		if _, err := makerBook.ApplyToBest(trade); err != nil {
			logger.Error().Err(err).Msg("maker book mutation failed")
			break
		}

		if err := e.sink.CreateTrade(trade); err != nil {
			logger.Error().
				Err(err).
				Str("trade_nonce", trade.TradeNonce).
				Msg("trade sink rejected trade")
			return taker, fmt.Errorf("trade sink rejected trade %s: %w", trade.TradeNonce, err)
		}

		logger.Debug().
			Str("trade_nonce", trade.TradeNonce).
			Str("maker_id", maker.OrderID).
			Str("price", trade.Price.String()).
			Str("volume", trade.Volume.String()).
			Msg("trade executed")
	}

	return taker, nil
}

// tradeIfCrosses builds the next trade between taker and the resting
// maker, or returns nil when they do not cross or the computed volume
// is not positive.
func (e *Engine) tradeIfCrosses(symbol *types.SymbolConfig, taker, maker *types.Order) *types.Trade {
	if maker.OrderType != types.OrderTypeLimit {
		return nil
	}
	if types.OppositeSide(taker.Side) != maker.Side {
		return nil
	}
	price := maker.Price
	if price.Sign() <= 0 {
		return nil
	}

	var volume decimal.Decimal
	switch taker.OrderType {
	case types.OrderTypeMarket:
		volume = marketVolume(symbol, taker, maker, price)
	default:
		if !taker.CrossesAt(price) {
			return nil
		}
		volume = money.Min(taker.UnfilledQuantity, maker.UnfilledQuantity)
	}
	if volume.Sign() <= 0 {
		return nil
	}
	return newTrade(symbol, taker, maker, price, volume)
}

// marketVolume translates a market taker's declared volume into base
// contract quantity for the next fill. Opening orders declare quote
// notional; closing orders declare base quantity directly.
func marketVolume(symbol *types.SymbolConfig, taker, maker *types.Order, tradePrice decimal.Decimal) decimal.Decimal {
	makerQty := maker.UnfilledQuantity
	if makerQty.Sign() <= 0 {
		return decimal.Zero
	}

	if taker.Open == types.OrderOpen {
		makerNotional := money.TradeNotional(makerQty, tradePrice, maker.Multiplier)
		remainingQuote := taker.Volume.Sub(taker.DealMoney)
		if makerNotional.LessThanOrEqual(remainingQuote) {
			return makerQty
		}
		volume := money.VolumeForNotional(remainingQuote, tradePrice, taker.Multiplier)
		return money.StripRemainder(volume, symbol.VolumePrecision)
	}

	remainingBase := taker.Volume.Sub(taker.DealVolume)
	return money.MaxZero(money.Min(makerQty, remainingBase))
}

// newTrade assigns bid/ask identities by side: a BUY taker is the bid
// and the maker the ask, and vice versa. Trades always execute at the
// maker's price; the trend side is the taker's side.
func newTrade(symbol *types.SymbolConfig, taker, maker *types.Order, price, volume decimal.Decimal) *types.Trade {
	now := time.Now()
	t := &types.Trade{
		TradeNonce: uuid.New().String(),
		Symbol:     symbol.ContractName,
		Price:      price,
		Volume:     volume,
		TrendSide:  taker.Side,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if taker.Side == types.SideBuy {
		t.BidOrderID = taker.OrderID
		t.BidUID = taker.UID
		t.AskOrderID = maker.OrderID
		t.AskUID = maker.UID
		t.BuyType = taker.OrderType
		t.SellType = maker.OrderType
	} else {
		t.BidOrderID = maker.OrderID
		t.BidUID = maker.UID
		t.AskOrderID = taker.OrderID
		t.AskUID = taker.UID
		t.BuyType = maker.OrderType
		t.SellType = taker.OrderType
	}
	return t
}

// applyToTaker commits a trade to the taker's fill trackers. Unfilled
// quantity never goes below zero; DealMoney and DealVolume track the
// cumulative quote and base consumption of a market order's declared
// budget.
func applyToTaker(taker *types.Order, trade *types.Trade) {
	taker.UnfilledQuantity = money.MaxZero(taker.UnfilledQuantity.Sub(trade.Volume))
	taker.DealVolume = taker.DealVolume.Add(trade.Volume)
	taker.DealMoney = taker.DealMoney.Add(money.TradeNotional(trade.Volume, trade.Price, taker.Multiplier))
	taker.UpdatedAt = trade.CreatedAt
}

// pairLock returns the exclusive lock serializing all matching for one
// symbol, creating it on first use.
func (e *Engine) pairLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.pairLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.pairLocks[symbol] = l
	}
	return l
}
