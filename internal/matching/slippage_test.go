package matching

import (
	"testing"

	"github.com/marginx/contract-core/internal/book"
	"github.com/marginx/contract-core/internal/types"
	"github.com/shopspring/decimal"
)

func marketCloseTaker(volume, lastPrice, budget string) *types.Order {
	return &types.Order{
		OrderID:            "taker",
		UID:                200001,
		Symbol:             "BTCUSD",
		Side:               types.SideSell,
		OrderType:          types.OrderTypeMarket,
		Open:               types.OrderClose,
		Volume:             dec(volume),
		UnfilledQuantity:   dec(volume),
		Multiplier:         decimal.NewFromInt(1),
		Source:             types.SourceHuman,
		SlippageRate:       dec("0.01"),
		LastPrice:          dec(lastPrice),
		SlippageBudget:     decimal.NewNullDecimal(dec(budget)),
		UsedSlippageBudget: decimal.Zero,
	}
}

func TestSlippageBudgetRejectionStopsLoop(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	// SELL taker, reference price 100, budget 2. First bid at 98
	// costs 2/unit for 1 contract, exactly exhausting the budget;
	// the next bid at 95 costs 5/unit and must be rejected.
	b := book.New(symbol.ContractName, types.SideBuy, symbol.MinTradeVolume)
	first := limitOrder("first", 1, types.SideBuy, "98", "1")
	second := limitOrder("second", 2, types.SideBuy, "95", "10")
	b.Add(first)
	b.Add(second)

	taker := marketCloseTaker("5", "100", "2")
	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade before rejection, got %d", len(sink.trades))
	}
	if !result.UsedSlippageBudget.Equal(dec("2")) {
		t.Errorf("expected used budget 2, got %s", result.UsedSlippageBudget)
	}
	if !result.UnfilledQuantity.Equal(dec("4")) {
		t.Errorf("expected taker left with 4 unfilled, got %s", result.UnfilledQuantity)
	}
	// The rejected trade must not have consumed book liquidity
	if !second.UnfilledQuantity.Equal(dec("10")) {
		t.Errorf("rejected trade consumed maker liquidity: %s", second.UnfilledQuantity)
	}
}

func TestSlippageFavorableExecutionIsFree(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	// SELL above reference price: favorable, cost 0, budget untouched
	b := book.New(symbol.ContractName, types.SideBuy, symbol.MinTradeVolume)
	b.Add(limitOrder("maker", 1, types.SideBuy, "102", "5"))

	taker := marketCloseTaker("5", "100", "2")
	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(sink.trades))
	}
	if result.UsedSlippageBudget.Sign() != 0 {
		t.Errorf("favorable execution must not consume budget, used=%s", result.UsedSlippageBudget)
	}
}

func TestSlippageUsedNeverExceedsBudget(t *testing.T) {
	symbol := testSymbol()
	sink := &recordingSink{}
	engine := NewEngine(sink)

	b := book.New(symbol.ContractName, types.SideBuy, symbol.MinTradeVolume)
	b.Add(limitOrder("m1", 1, types.SideBuy, "99", "1"))
	b.Add(limitOrder("m2", 2, types.SideBuy, "98", "1"))
	b.Add(limitOrder("m3", 3, types.SideBuy, "97", "1"))

	taker := marketCloseTaker("3", "100", "3.5")
	result, err := engine.Match(symbol, taker, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	budget := result.SlippageBudget.Decimal
	if result.UsedSlippageBudget.GreaterThan(budget) {
		t.Errorf("used budget %s exceeds budget %s", result.UsedSlippageBudget, budget)
	}
	// Fills at 99 (cost 1) and 98 (cost 2) fit in 3.5; 97 (cost 3) does not
	if len(sink.trades) != 2 {
		t.Errorf("expected 2 trades within budget, got %d", len(sink.trades))
	}
}

func TestSlippageBypasses(t *testing.T) {
	base := func() (*types.Order, *types.Trade) {
		taker := marketCloseTaker("1", "100", "0.5")
		trade := &types.Trade{Price: dec("95"), Volume: dec("1")}
		return taker, trade
	}

	t.Run("robot source", func(t *testing.T) {
		taker, trade := base()
		taker.Source = types.SourceRobot
		if !consumeSlippageBudget(taker, trade) {
			t.Error("robot orders must bypass the budget check")
		}
	})
	t.Run("limit order", func(t *testing.T) {
		taker, trade := base()
		taker.OrderType = types.OrderTypeLimit
		if !consumeSlippageBudget(taker, trade) {
			t.Error("limit orders must bypass the budget check")
		}
	})
	t.Run("no slippage rate", func(t *testing.T) {
		taker, trade := base()
		taker.SlippageRate = decimal.Zero
		if !consumeSlippageBudget(taker, trade) {
			t.Error("orders without a rate must bypass the budget check")
		}
	})
	t.Run("no reference price", func(t *testing.T) {
		taker, trade := base()
		taker.LastPrice = decimal.Zero
		if !consumeSlippageBudget(taker, trade) {
			t.Error("orders without a reference price must bypass the budget check")
		}
	})
	t.Run("no budget", func(t *testing.T) {
		taker, trade := base()
		taker.SlippageBudget = decimal.NullDecimal{}
		if !consumeSlippageBudget(taker, trade) {
			t.Error("orders without a budget must bypass the budget check")
		}
	})
	t.Run("over budget rejected", func(t *testing.T) {
		taker, trade := base()
		if consumeSlippageBudget(taker, trade) {
			t.Error("cost 5 against budget 0.5 must be rejected")
		}
		if taker.UsedSlippageBudget.Sign() != 0 {
			t.Errorf("rejected trade must not consume budget, used=%s", taker.UsedSlippageBudget)
		}
	})
}

func TestSlippageCostRoundsUp(t *testing.T) {
	taker := marketCloseTaker("1", "100", "1")
	// Unit cost 0.0000000000000000003 rounds up to 1e-16 at scale 16
	taker.LastPrice = dec("100.0000000000000000003")
	trade := &types.Trade{Price: dec("100"), Volume: dec("1")}

	if !consumeSlippageBudget(taker, trade) {
		t.Fatal("tiny cost within budget must be permitted")
	}
	if !taker.UsedSlippageBudget.Equal(dec("0.0000000000000001")) {
		t.Errorf("expected cost rounded up to 1e-16, got %s", taker.UsedSlippageBudget)
	}
}
