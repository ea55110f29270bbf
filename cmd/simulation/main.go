// Command simulation drives the transactional core end to end without
// any network surface: it seeds a symbol and a resting book, runs
// limit and market takers through the matching engine, then forces a
// liquidation against ADL counterparties.
package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marginx/contract-core/internal/config"
	"github.com/marginx/contract-core/internal/database"
	"github.com/marginx/contract-core/internal/liquidation"
	"github.com/marginx/contract-core/internal/matching"
	"github.com/marginx/contract-core/internal/settlement"
	"github.com/marginx/contract-core/internal/trades"
	"github.com/marginx/contract-core/internal/trading"
	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/lock"
	"gorm.io/gorm"
)

const simSymbol = "BTCUSD"

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// settings is the resolved simulation configuration: built-in defaults
// overridden by an on-disk config.yaml when one exists.
type settings struct {
	dbPath        string
	redisAddr     string
	fundingEvery  time.Duration
	maxIterations int
	lockTTL       time.Duration
	symbols       []*types.SymbolConfig
	factors       *liquidation.FactorTable
}

func loadSettings() *settings {
	s := &settings{
		dbPath:       "simulation.db",
		redisAddr:    os.Getenv("REDIS_ADDR"),
		fundingEvery: 100 * time.Millisecond,
		factors:      defaultFactorTable(),
		symbols: []*types.SymbolConfig{{
			ContractID:      1,
			ContractName:    simSymbol,
			Multiplier:      decimal.NewFromInt(1),
			PricePrecision:  2,
			VolumePrecision: 4,
			MinTradeVolume:  decimal.RequireFromString("0.0001"),
		}},
	}

	if _, err := os.Stat("config.yaml"); err != nil {
		return s
	}
	cfg, err := config.Load("config.yaml")
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.DatabasePath != "" {
		s.dbPath = cfg.DatabasePath
	}
	if cfg.RedisAddr != "" {
		s.redisAddr = cfg.RedisAddr
	}
	if cfg.ParsedInterval > 0 {
		s.fundingEvery = cfg.ParsedInterval
	}
	s.maxIterations = cfg.Liquidation.MaxIterations
	s.lockTTL = time.Duration(cfg.Liquidation.LockTTLSeconds) * time.Second

	if len(cfg.Symbols) > 0 {
		s.symbols = s.symbols[:0]
		for i := range cfg.Symbols {
			symbol, err := cfg.Symbols[i].ToSymbolConfig()
			if err != nil {
				zlog.Fatal().Err(err).Msg("invalid symbol config")
			}
			s.symbols = append(s.symbols, symbol)
		}
		if cfg.Symbols[0].Factors.DefaultFactor != "" {
			table, err := cfg.Symbols[0].Factors.ToFactorTable()
			if err != nil {
				zlog.Fatal().Err(err).Msg("invalid factor table config")
			}
			s.factors = table
		}
	}
	return s
}

// defaultFactorTable is the built-in margin-factor configuration used
// when config.yaml carries none.
func defaultFactorTable() *liquidation.FactorTable {
	return &liquidation.FactorTable{
		Brackets: []liquidation.LeverageBracket{{
			MinLeverage: decimal.NewFromInt(1),
			MaxLeverage: decimal.NewFromInt(25),
			Tiers: []liquidation.ValueTier{
				{Threshold: decimal.NewFromInt(50000), Factor: decimal.RequireFromString("0.005")},
				{Threshold: decimal.NewFromInt(250000), Factor: decimal.RequireFromString("0.01")},
			},
			DefaultFactor: decimal.RequireFromString("0.02"),
		}},
		DefaultFactor:     decimal.RequireFromString("0.05"),
		LeverageOneFactor: decimal.RequireFromString("0.003"),
	}
}

// flatFees charges a flat 0.05% taker/maker fee on notional.
type flatFees struct{}

func (flatFees) TradeFee(price, volume, multiplier decimal.Decimal, _ *types.Order, _ string) decimal.Decimal {
	return price.Mul(volume).Mul(multiplier).Mul(decimal.RequireFromString("0.0005"))
}

func main() {
	s := loadSettings()

	db, err := database.NewDatabase(s.dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize database")
	}

	if err := database.SeedSymbols(db, s.symbols); err != nil {
		zlog.Fatal().Err(err).Msg("failed to seed symbols")
	}

	tradeService := trades.NewService(db, flatFees{})
	engine := matching.NewEngine(tradeService)
	tradingService := trading.NewService(db, engine)

	runMatching(tradingService, tradeService)
	runLiquidation(db, s)
	runFunding(db, s)

	zlog.Info().Msg("simulation complete")
}

// staticRate applies one funding rate to every contract.
type staticRate struct{ rate decimal.Decimal }

func (s staticRate) FundingRate(string) decimal.Decimal { return s.rate }

// runFunding drives funding settlement rounds through the periodic
// processor at the configured interval.
func runFunding(db *gorm.DB, s *settings) {
	var indexPrices *redis.Client
	if s.redisAddr != "" {
		indexPrices = redis.NewClient(&redis.Options{Addr: s.redisAddr})
		defer indexPrices.Close()
	}
	processor := settlement.NewProcessor(db, staticRate{rate: decimal.RequireFromString("0.0001")}, indexPrices, s.fundingEvery)

	ctx, cancel := context.WithTimeout(context.Background(), 3*s.fundingEvery+50*time.Millisecond)
	defer cancel()
	processor.Start(ctx)

	zlog.Info().Msg("funding settlement round finished")
}

// runMatching rests a small ask ladder and sends a limit and a
// budgeted market taker through it.
func runMatching(svc *trading.Service, tradeSvc *trades.Service) {
	asks := []struct {
		price  string
		volume string
	}{
		{"100.00", "6"},
		{"101.00", "5"},
		{"103.00", "5"},
	}
	for i, a := range asks {
		maker := &types.Order{
			UID:              int64(200000 + i),
			Symbol:           simSymbol,
			Side:             types.SideSell,
			OrderType:        types.OrderTypeLimit,
			Open:             types.OrderOpen,
			Price:            decimal.RequireFromString(a.price),
			Volume:           decimal.RequireFromString(a.volume),
			UnfilledQuantity: decimal.RequireFromString(a.volume),
			Source:           types.SourceHuman,
		}
		if _, err := svc.SubmitOrder(maker); err != nil {
			zlog.Fatal().Err(err).Msg("failed to rest maker order")
		}
	}
	bids, askCount := svc.Depth(simSymbol)
	zlog.Info().Int("bids", bids).Int("asks", askCount).Msg("book seeded")

	limitTaker := &types.Order{
		UID:              300001,
		Symbol:           simSymbol,
		Side:             types.SideBuy,
		OrderType:        types.OrderTypeLimit,
		Open:             types.OrderOpen,
		Price:            decimal.RequireFromString("101.00"),
		Volume:           decimal.NewFromInt(8),
		UnfilledQuantity: decimal.NewFromInt(8),
		Source:           types.SourceHuman,
	}
	result, err := svc.SubmitOrder(limitTaker)
	if err != nil {
		zlog.Fatal().Err(err).Msg("limit taker failed")
	}
	zlog.Info().
		Str("order_id", result.OrderID).
		Str("unfilled", result.UnfilledQuantity.String()).
		Msg("limit taker matched")

	marketTaker := &types.Order{
		UID:                300002,
		Symbol:             simSymbol,
		Side:               types.SideBuy,
		OrderType:          types.OrderTypeMarket,
		Open:               types.OrderClose,
		Volume:             decimal.NewFromInt(5),
		UnfilledQuantity:   decimal.NewFromInt(5),
		Source:             types.SourceHuman,
		SlippageRate:       decimal.RequireFromString("0.01"),
		LastPrice:          decimal.RequireFromString("100.50"),
		SlippageBudget:     decimal.NewNullDecimal(decimal.NewFromInt(10)),
		UsedSlippageBudget: decimal.Zero,
	}
	result, err = svc.SubmitOrder(marketTaker)
	if err != nil {
		zlog.Fatal().Err(err).Msg("market taker failed")
	}
	bids, askCount = svc.Depth(simSymbol)
	zlog.Info().
		Str("order_id", result.OrderID).
		Str("unfilled", result.UnfilledQuantity.String()).
		Str("used_slippage", result.UsedSlippageBudget.String()).
		Int("bids", bids).
		Int("asks", askCount).
		Msg("market taker matched")

	rows, err := tradeSvc.TradesForOrder(result.OrderID)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load trade rows")
	}
	for _, row := range rows {
		zlog.Info().
			Str("trade_id", row.TradeID).
			Str("price", row.TradePrice.String()).
			Str("volume", row.TradeVolume.String()).
			Str("fee", row.TradeFee.String()).
			Str("role", row.OrderRole).
			Msg("recorded trade row")
	}
	if len(rows) > 0 {
		raw, err := tradeSvc.TradeByNonce(rows[0].TradeID)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to load raw trade")
		}
		zlog.Info().
			Str("trade_nonce", raw.TradeNonce).
			Str("trend_side", raw.TrendSide).
			Str("price", raw.Price.String()).
			Msg("raw trade recorded")
	}
}

// runLiquidation seeds an underwater long plus counterparties, reports
// the position's liquidation trigger price, and resolves one
// liquidation event.
func runLiquidation(db *gorm.DB, s *settings) {
	positions := []*types.Position{
		{PositionID: 1, UID: 300101, ContractID: 1, Symbol: simSymbol, Side: types.SideBuy,
			Volume: decimal.NewFromInt(100), AvgPrice: decimal.RequireFromString("100.00"),
			Margin: decimal.NewFromInt(500), Leverage: decimal.NewFromInt(20), Status: types.PositionActive},
		{PositionID: 2, UID: 1001, ContractID: 1, Symbol: simSymbol, Side: types.SideSell,
			Volume: decimal.NewFromInt(40), AvgPrice: decimal.RequireFromString("99.00"),
			Margin: decimal.NewFromInt(400), Leverage: decimal.NewFromInt(10), Status: types.PositionActive},
		{PositionID: 3, UID: 300102, ContractID: 1, Symbol: simSymbol, Side: types.SideSell,
			Volume: decimal.NewFromInt(80), AvgPrice: decimal.RequireFromString("98.50"),
			Margin: decimal.NewFromInt(800), Leverage: decimal.NewFromInt(10), Status: types.PositionActive},
	}
	for _, p := range positions {
		if err := db.Create(p).Error; err != nil {
			zlog.Fatal().Err(err).Msg("failed to seed position")
		}
	}
	event := &types.LiquidationEvent{EventID: 1, PositionID: 1, Status: types.LiquidationPending}
	if err := db.Create(event).Error; err != nil {
		zlog.Fatal().Err(err).Msg("failed to seed liquidation event")
	}

	target := positions[0]
	symbol := s.symbols[0]
	trigger, ok, err := liquidation.Price(liquidation.PriceParams{
		Price:          target.AvgPrice,
		Quantity:       target.Volume,
		Multiplier:     symbol.Multiplier,
		Leverage:       target.Leverage,
		Margin:         target.Margin,
		Side:           target.Side,
		PricePrecision: symbol.PricePrecision,
	}, s.factors)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to compute liquidation price")
	}
	if ok {
		zlog.Info().
			Int64("position_id", target.PositionID).
			Str("trigger_price", trigger.String()).
			Msg("liquidation trigger computed")
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if s.redisAddr != "" {
		redisLocker := lock.NewRedisLocker(s.redisAddr)
		defer redisLocker.Close()
		locker = redisLocker
	}
	orchestrate(db, locker, s, event)
}

func orchestrate(db *gorm.DB, locker lock.Locker, s *settings, event *types.LiquidationEvent) {
	deps := liquidation.NewGormDependencies(db)
	orchestrator := liquidation.NewOrchestratorWithLimits(deps, locker, s.maxIterations, s.lockTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := orchestrator.ProcessLiquidation(ctx, simSymbol, event.EventID, event.PositionID); err != nil {
		zlog.Fatal().Err(err).Msg("forced liquidation failed")
	}

	var refreshed types.LiquidationEvent
	if err := db.Where("event_id = ?", event.EventID).First(&refreshed).Error; err != nil {
		zlog.Fatal().Err(err).Msg("failed to reload liquidation event")
	}
	zlog.Info().
		Int("status", refreshed.Status).
		Msg("liquidation event resolved")
}
