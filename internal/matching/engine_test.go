package matching

import (
	"errors"
	"testing"

	"github.com/marginx/contract-core/internal/book"
	"github.com/marginx/contract-core/internal/types"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// recordingSink collects created trades in memory.
type recordingSink struct {
	trades []*types.Trade
	err    error
}

func (r *recordingSink) CreateTrade(t *types.Trade) error {
	if r.err != nil {
		return r.err
	}
	r.trades = append(r.trades, t)
	return nil
}

func testSymbol() *types.SymbolConfig {
	return &types.SymbolConfig{
		ContractID:      1,
		ContractName:    "BTCUSD",
		Multiplier:      decimal.NewFromInt(1),
		PricePrecision:  2,
		VolumePrecision: 4,
		MinTradeVolume:  dec("0.0001"),
	}
}

func limitOrder(id string, uid int64, side, price, volume string) *types.Order {
	return &types.Order{
		OrderID:          id,
		UID:              uid,
		Symbol:           "BTCUSD",
		Side:             side,
		OrderType:        types.OrderTypeLimit,
		Open:             types.OrderOpen,
		Price:            dec(price),
		Volume:           dec(volume),
		UnfilledQuantity: dec(volume),
		Multiplier:       decimal.NewFromInt(1),
		Source:           types.SourceHuman,
	}
}

func askBook(symbol *types.SymbolConfig, makers ...*types.Order) *book.Book {
	b := book.New(symbol.ContractName, types.SideSell, symbol.MinTradeVolume)
	for _, m := range makers {
		b.Add(m)
	}
	return b
}

func TestMatchLimitTakerAgainstBetterAsk(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	maker := limitOrder("maker", 1, types.SideSell, "100", "6")
	b := askBook(symbol, maker)

	taker := limitOrder("taker", 2, types.SideBuy, "105", "10")
	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(sink.trades))
	}
	trade := sink.trades[0]
	if !trade.Price.Equal(dec("100")) {
		t.Errorf("trade must execute at the maker's price, got %s", trade.Price)
	}
	if !trade.Volume.Equal(dec("6")) {
		t.Errorf("expected volume 6, got %s", trade.Volume)
	}
	if !result.UnfilledQuantity.Equal(dec("4")) {
		t.Errorf("expected taker unfilled 4, got %s", result.UnfilledQuantity)
	}
	if !b.IsEmpty() {
		t.Error("fully filled maker must be removed from the book")
	}
	if trade.BidOrderID != "taker" || trade.AskOrderID != "maker" {
		t.Errorf("bid/ask assignment wrong: bid=%s ask=%s", trade.BidOrderID, trade.AskOrderID)
	}
	if trade.TrendSide != types.SideBuy {
		t.Errorf("trend side must be the taker's side, got %s", trade.TrendSide)
	}
}

func TestMatchStopsWhenPriceDoesNotCross(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	b := askBook(symbol, limitOrder("maker", 1, types.SideSell, "110", "5"))
	taker := limitOrder("taker", 2, types.SideBuy, "105", "5")

	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(sink.trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(sink.trades))
	}
	if !result.UnfilledQuantity.Equal(dec("5")) {
		t.Errorf("taker must be untouched, unfilled=%s", result.UnfilledQuantity)
	}
}

func TestMatchConsumesBookInPriceTimeOrder(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	b := askBook(symbol,
		limitOrder("second", 1, types.SideSell, "101", "3"),
		limitOrder("first", 2, types.SideSell, "100", "3"),
	)
	taker := limitOrder("taker", 3, types.SideBuy, "101", "6")

	if _, err := engine.Match(symbol, taker, b); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(sink.trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(sink.trades))
	}
	if sink.trades[0].AskOrderID != "first" || sink.trades[1].AskOrderID != "second" {
		t.Errorf("better-priced maker must fill first: %s then %s",
			sink.trades[0].AskOrderID, sink.trades[1].AskOrderID)
	}
}

func TestMarketOpenTranslatesQuoteNotional(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	// Maker's full-fill notional 30x50 = 1500 exceeds the taker's
	// declared quote budget 1000, so the fill is 1000/50 = 20.
	b := askBook(symbol, limitOrder("maker", 1, types.SideSell, "50", "30"))
	taker := &types.Order{
		OrderID:          "taker",
		UID:              2,
		Symbol:           "BTCUSD",
		Side:             types.SideBuy,
		OrderType:        types.OrderTypeMarket,
		Open:             types.OrderOpen,
		Volume:           dec("1000"),
		UnfilledQuantity: dec("1000"),
		Multiplier:       decimal.NewFromInt(1),
		Source:           types.SourceRobot,
	}

	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(sink.trades))
	}
	if !sink.trades[0].Volume.Equal(dec("20")) {
		t.Errorf("expected trade volume 20, got %s", sink.trades[0].Volume)
	}
	if !result.DealMoney.Equal(dec("1000")) {
		t.Errorf("expected quote budget fully consumed, deal money %s", result.DealMoney)
	}
	maker := b.PeekBest()
	if maker == nil || !maker.UnfilledQuantity.Equal(dec("10")) {
		t.Errorf("expected maker left with 10 unfilled, got %+v", maker)
	}
}

func TestMarketOpenNeverOverspendsNotional(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	// Odd price forces a fractional volume that must strip down
	b := askBook(symbol, limitOrder("maker", 1, types.SideSell, "3", "100"))
	taker := &types.Order{
		OrderID:          "taker",
		UID:              2,
		Symbol:           "BTCUSD",
		Side:             types.SideBuy,
		OrderType:        types.OrderTypeMarket,
		Open:             types.OrderOpen,
		Volume:           dec("100"),
		UnfilledQuantity: dec("100"),
		Multiplier:       decimal.NewFromInt(1),
		Source:           types.SourceRobot,
	}

	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if result.DealMoney.GreaterThan(dec("100")) {
		t.Errorf("cumulative spend %s exceeds declared notional 100", result.DealMoney)
	}
	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(sink.trades))
	}
	// 100/3 = 33.333... stripped to 33.3333 at volume precision 4
	if !sink.trades[0].Volume.Equal(dec("33.3333")) {
		t.Errorf("expected stripped volume 33.3333, got %s", sink.trades[0].Volume)
	}
}

func TestMarketCloseUsesBaseQuantity(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	b := askBook(symbol, limitOrder("maker", 1, types.SideSell, "50", "30"))
	taker := &types.Order{
		OrderID:          "taker",
		UID:              2,
		Symbol:           "BTCUSD",
		Side:             types.SideBuy,
		OrderType:        types.OrderTypeMarket,
		Open:             types.OrderClose,
		Volume:           dec("5"),
		UnfilledQuantity: dec("5"),
		Multiplier:       decimal.NewFromInt(1),
		Source:           types.SourceRobot,
	}

	if _, err := engine.Match(symbol, taker, b); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(sink.trades) != 1 || !sink.trades[0].Volume.Equal(dec("5")) {
		t.Fatalf("expected one trade of volume 5, got %+v", sink.trades)
	}
}

func TestMatchNilInputsReturnTakerUnchanged(t *testing.T) {
	engine := NewEngine(&recordingSink{})
	symbol := testSymbol()
	taker := limitOrder("taker", 1, types.SideBuy, "100", "5")

	if got, err := engine.Match(nil, taker, askBook(symbol)); err != nil || got != taker {
		t.Errorf("nil symbol must return taker unchanged")
	}
	if got, err := engine.Match(symbol, nil, askBook(symbol)); err != nil || got != nil {
		t.Errorf("nil taker must be passed through")
	}
	if got, err := engine.Match(symbol, taker, nil); err != nil || got != taker {
		t.Errorf("nil book must return taker unchanged")
	}

	taker.OrderType = "STOP"
	if got, err := engine.Match(symbol, taker, askBook(symbol)); err != nil || got != taker {
		t.Errorf("unsupported order type must return taker unchanged")
	}
}

func TestMatchSinkErrorStopsLoop(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{err: errors.New("insert rejected")}
	engine := NewEngine(sink)

	b := askBook(symbol, limitOrder("maker", 1, types.SideSell, "100", "5"))
	taker := limitOrder("taker", 2, types.SideBuy, "105", "10")

	if _, err := engine.Match(symbol, taker, b); err == nil {
		t.Fatal("expected sink error to surface")
	}
}

func TestMatchVolumeConservation(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	b := askBook(symbol,
		limitOrder("m1", 1, types.SideSell, "100", "2"),
		limitOrder("m2", 2, types.SideSell, "101", "2"),
		limitOrder("m3", 3, types.SideSell, "102", "2"),
	)
	taker := limitOrder("taker", 4, types.SideBuy, "101", "10")

	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	total := decimal.Zero
	for _, trade := range sink.trades {
		total = total.Add(trade.Volume)
	}
	// Only the two makers at or below the limit price are eligible
	if !total.Equal(dec("4")) {
		t.Errorf("expected 4 contracts traded, got %s", total)
	}
	if !result.UnfilledQuantity.Equal(dec("6")) {
		t.Errorf("expected taker unfilled 6, got %s", result.UnfilledQuantity)
	}
}
