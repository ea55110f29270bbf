// Package trading is the order intake surface: it persists incoming
// orders, routes takers through the matching engine, and rests
// unfilled limit orders in the in-memory books.
package trading

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marginx/contract-core/internal/book"
	"github.com/marginx/contract-core/internal/matching"
	"github.com/marginx/contract-core/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// sideBooks holds both resting sides for one symbol.
type sideBooks struct {
	bids *book.Book
	asks *book.Book
}

// Service manages order submission and the per-symbol books.
type Service struct {
	db     *Database
	engine *matching.Engine

	mu    sync.Mutex
	books map[string]*sideBooks
}

// NewService creates a trading service routing takers through the
// given engine.
func NewService(gormDB *gorm.DB, engine *matching.Engine) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		engine: engine,
		books:  make(map[string]*sideBooks),
	}
}

// SubmitOrder persists the order, matches it against the opposite book
// and rests any unfilled limit remainder. Returns the taker's final
// state.
func (s *Service) SubmitOrder(order *types.Order) (*types.Order, error) {
	if order == nil {
		return nil, errors.New("order cannot be nil")
	}

	symbol, err := s.db.GetSymbolByName(order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symbol %s: %w", order.Symbol, err)
	}
	if symbol == nil {
		return nil, fmt.Errorf("symbol not found: %s", order.Symbol)
	}

	if order.OrderID == "" {
		order.OrderID = uuid.New().String()
	}
	if order.Multiplier.Sign() == 0 {
		order.Multiplier = symbol.Multiplier
	}
	order.Status = types.OrderStatusOpen
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	if err := s.db.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	books := s.booksFor(symbol)
	makerBook := books.asks
	restingBook := books.bids
	if order.Side == types.SideSell {
		makerBook = books.bids
		restingBook = books.asks
	}

	taker, err := s.engine.Match(symbol, order, makerBook)
	if err != nil {
		return taker, err
	}

	if taker.IsFilled() {
		taker.Status = types.OrderStatusFilled
	} else if taker.OrderType == types.OrderTypeLimit {
		restingBook.Add(taker)
		log.Debug().
			Str("component", "trading").
			Str("order_id", taker.OrderID).
			Str("unfilled", taker.UnfilledQuantity.String()).
			Msg("resting unfilled limit order")
	}

	if err := s.db.UpdateOrder(taker); err != nil {
		return taker, fmt.Errorf("failed to update order: %w", err)
	}
	return taker, nil
}

// GetOrder retrieves an order by its ID.
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// Depth returns the number of resting orders on each side of a symbol.
func (s *Service) Depth(symbol string) (bids, asks int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[symbol]
	if !ok {
		return 0, 0
	}
	return b.bids.Len(), b.asks.Len()
}

// booksFor returns the symbol's books, creating them on first use.
func (s *Service) booksFor(symbol *types.SymbolConfig) *sideBooks {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[symbol.ContractName]
	if !ok {
		b = &sideBooks{
			bids: book.New(symbol.ContractName, types.SideBuy, symbol.MinTradeVolume),
			asks: book.New(symbol.ContractName, types.SideSell, symbol.MinTradeVolume),
		}
		s.books[symbol.ContractName] = b
	}
	return b
}
