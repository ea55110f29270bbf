// Package trades persists executed trades: the raw trade stream from
// the matching engine plus the enriched per-side trade rows (role, fee,
// human flag) and their audit copies.
package trades

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marginx/contract-core/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Uids above this threshold belong to human accounts.
const onlyHumanUIDThreshold = 100000

// Trade roles
const (
	RoleTaker = "TAKER"
	RoleMaker = "MAKER"
)

// ErrTradeInsert is returned when the persistence layer rejects a trade
// row. Recoverable but serious: the caller decides on retry.
var ErrTradeInsert = errors.New("trade insert rejected")

// FeeCalculator computes the trading fee for one side of a trade.
// Fee-rate policy lives outside this package.
type FeeCalculator interface {
	TradeFee(price, volume, multiplier decimal.Decimal, order *types.Order, trendSide string) decimal.Decimal
}

// Service converts executed trades into persistent rows.
type Service struct {
	db   *Database
	fees FeeCalculator
}

// NewService creates a trade persistence service with the given
// database connection and fee policy.
func NewService(gormDB *gorm.DB, fees FeeCalculator) *Service {
	return &Service{
		db:   NewDatabase(gormDB),
		fees: fees,
	}
}

// CreateTrade stores a raw trade from the matching engine, then writes
// the enriched per-side rows when both orders are resolvable.
// Implements the engine's trade sink. Enrichment is best effort:
// liquidation deals carry no order ids and produce only the raw row.
func (s *Service) CreateTrade(trade *types.Trade) error {
	if trade == nil {
		return errors.New("trade cannot be nil")
	}
	if err := s.db.CreateTrade(trade); err != nil {
		return fmt.Errorf("%w: %s", ErrTradeInsert, err)
	}
	s.enrich(trade)
	return nil
}

func (s *Service) enrich(trade *types.Trade) {
	if trade.BidOrderID == "" || trade.AskOrderID == "" {
		return
	}

	logger := log.With().
		Str("component", "trades").
		Str("trade_nonce", trade.TradeNonce).
		Logger()

	symbol, err := s.db.GetSymbolByName(trade.Symbol)
	if err != nil || symbol == nil {
		logger.Error().Err(err).Str("symbol", trade.Symbol).Msg("failed to resolve symbol for trade enrichment")
		return
	}
	bid, err := s.db.GetOrderByID(trade.BidOrderID)
	if err != nil || bid == nil {
		logger.Error().Err(err).Str("order_id", trade.BidOrderID).Msg("failed to resolve bid order for trade enrichment")
		return
	}
	ask, err := s.db.GetOrderByID(trade.AskOrderID)
	if err != nil || ask == nil {
		logger.Error().Err(err).Str("order_id", trade.AskOrderID).Msg("failed to resolve ask order for trade enrichment")
		return
	}

	if _, err := s.Persist(symbol, trade, bid, ask); err != nil {
		logger.Error().Err(err).Msg("failed to persist bid-side trade row")
	}
	if _, err := s.Persist(symbol, trade, ask, bid); err != nil {
		logger.Error().Err(err).Msg("failed to persist ask-side trade row")
	}
}

// TradesForOrder returns the enriched rows recorded for one order.
func (s *Service) TradesForOrder(orderID string) ([]ContractTrade, error) {
	return s.db.GetTradesForOrder(orderID)
}

// TradeByNonce returns the raw engine trade recorded under one nonce.
func (s *Service) TradeByNonce(nonce string) (*types.Trade, error) {
	return s.db.GetTradeByNonce(nonce)
}

// Persist writes the enriched trade row for one side of a trade plus
// its audit copy, in one transaction.
func (s *Service) Persist(symbol *types.SymbolConfig, trade *types.Trade, order, counterOrder *types.Order) (*ContractTrade, error) {
	if symbol == nil || trade == nil || order == nil || counterOrder == nil {
		return nil, errors.New("symbol, trade and both orders are required")
	}
	if trade.TradeNonce == "" {
		return nil, errors.New("trade nonce is required")
	}

	row := s.toTradeRow(symbol, trade, order, counterOrder)
	audit := toAuditRow(symbol, row)

	if err := s.db.SaveTradePair(row, audit); err != nil {
		return nil, fmt.Errorf("%w: trade %s: %s", ErrTradeInsert, row.TradeID, err)
	}
	return row, nil
}

func (s *Service) toTradeRow(symbol *types.SymbolConfig, trade *types.Trade, order, counterOrder *types.Order) *ContractTrade {
	trendSide := resolveTrendSide(trade, order)

	role := RoleMaker
	if trendSide == order.Side {
		role = RoleTaker
	}

	row := &ContractTrade{
		RecordID:       uuid.New().String(),
		TradeID:        trade.TradeNonce,
		TradeTime:      resolveTradeTime(trade),
		OrderID:        order.OrderID,
		CounterOrderID: counterOrder.OrderID,
		OrderKind:      order.Open,
		OrderSide:      order.Side,
		OrderType:      order.OrderType,
		UID:            order.UID,
		CounterUID:     counterOrder.UID,
		TradeVolume:    trade.Volume,
		TradePrice:     trade.Price,
		TradeFee:       s.fees.TradeFee(trade.Price, trade.Volume, symbol.Multiplier, order, trendSide),
		OrderRole:      role,
		OrderSource:    order.Source,
		OnlyHumanTrade: order.UID > onlyHumanUIDThreshold && counterOrder.UID > onlyHumanUIDThreshold,
	}
	return row
}

func toAuditRow(symbol *types.SymbolConfig, t *ContractTrade) *ContractTradeAudit {
	return &ContractTradeAudit{
		RecordID:       t.RecordID,
		ContractID:     symbol.ContractID,
		ContractName:   symbol.ContractName,
		TradeID:        t.TradeID,
		TradeTime:      t.TradeTime,
		OrderID:        t.OrderID,
		CounterOrderID: t.CounterOrderID,
		OrderKind:      t.OrderKind,
		OrderSide:      t.OrderSide,
		OrderType:      t.OrderType,
		UID:            t.UID,
		CounterUID:     t.CounterUID,
		TradeVolume:    t.TradeVolume,
		TradePrice:     t.TradePrice,
		TradeFee:       t.TradeFee,
		OrderRole:      t.OrderRole,
		OrderSource:    t.OrderSource,
		OnlyHumanTrade: t.OnlyHumanTrade,
	}
}

// resolveTrendSide prefers the trade's recorded trend side, falling
// back to the order's own side when absent.
func resolveTrendSide(trade *types.Trade, order *types.Order) string {
	if trade.TrendSide != "" {
		return trade.TrendSide
	}
	return order.Side
}

// resolveTradeTime falls back to the current time when the trade
// carries no creation timestamp.
func resolveTradeTime(trade *types.Trade) int64 {
	if trade.CreatedAt.IsZero() {
		log.Warn().
			Str("trade_nonce", trade.TradeNonce).
			Msg("trade has no creation time, using current time")
		return time.Now().UnixMilli()
	}
	return trade.CreatedAt.UnixMilli()
}
