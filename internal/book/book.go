// Package book implements the per-symbol, per-side resting order book
// used by the matching engine. Entries are ordered by strict price-time
// priority: better price first, earlier insertion first at equal price.
//
// The book itself is not safe for concurrent use. All mutation happens
// under the engine's per-symbol lock.
package book

import (
	"errors"
	"sort"

	"github.com/marginx/contract-core/internal/types"
	"github.com/shopspring/decimal"
)

var ErrEmptyBook = errors.New("order book is empty")

type entry struct {
	order *types.Order
	seq   uint64
}

// Book holds resting LIMIT orders for one side of one symbol.
type Book struct {
	symbol         string
	side           string
	minTradeVolume decimal.Decimal
	nextSeq        uint64
	entries        []entry
}

// New creates an empty book. minTradeVolume is the symbol's smallest
// tradeable unit: makers whose remaining quantity falls below it are
// removed as part of ApplyToBest.
func New(symbol, side string, minTradeVolume decimal.Decimal) *Book {
	return &Book{
		symbol:         symbol,
		side:           side,
		minTradeVolume: minTradeVolume,
	}
}

// Symbol returns the trading pair this book belongs to.
func (b *Book) Symbol() string { return b.symbol }

// Side returns the side of the resting orders in this book.
func (b *Book) Side() string { return b.side }

// IsEmpty reports whether the book holds no resting orders.
func (b *Book) IsEmpty() bool { return len(b.entries) == 0 }

// Len returns the number of resting orders.
func (b *Book) Len() int { return len(b.entries) }

// Add inserts a resting order at its price-time position. Orders below
// the minimum tradeable unit are ignored.
func (b *Book) Add(o *types.Order) {
	if o == nil || o.UnfilledQuantity.LessThan(b.minTradeVolume) {
		return
	}
	seq := b.nextSeq
	b.nextSeq++

	// First index holding a strictly worse price; equal prices keep
	// insertion order, so the new entry goes after all of them.
	idx := sort.Search(len(b.entries), func(i int) bool {
		return b.worsePrice(b.entries[i].order.Price, o.Price)
	})
	b.entries = append(b.entries, entry{})
	copy(b.entries[idx+1:], b.entries[idx:])
	b.entries[idx] = entry{order: o, seq: seq}
}

// PeekBest returns the highest-priority resting order without removing
// it, or nil when the book is empty.
func (b *Book) PeekBest() *types.Order {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[0].order
}

// ApplyToBest consumes the given trade volume from the best resting
// order and returns the maker's post-trade state. When the maker's
// remaining quantity falls below the minimum tradeable unit it is
// removed from the book; callers never perform a second removal step.
func (b *Book) ApplyToBest(t *types.Trade) (*types.Order, error) {
	if len(b.entries) == 0 {
		return nil, ErrEmptyBook
	}
	maker := b.entries[0].order
	maker.UnfilledQuantity = maker.UnfilledQuantity.Sub(t.Volume)
	maker.DealVolume = maker.DealVolume.Add(t.Volume)
	maker.DealMoney = maker.DealMoney.Add(t.Volume.Mul(t.Price).Mul(maker.Multiplier))

	if maker.UnfilledQuantity.LessThan(b.minTradeVolume) {
		b.entries = b.entries[1:]
	}
	updated := *maker
	return &updated, nil
}

// worsePrice reports whether a rests at strictly worse priority than b
// for this book's side.
func (b *Book) worsePrice(a, other decimal.Decimal) bool {
	if b.side == types.SideBuy {
		return a.LessThan(other)
	}
	return a.GreaterThan(other)
}
