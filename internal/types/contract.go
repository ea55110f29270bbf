package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types
const (
	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"
)

// Open flags: whether an order increases or decreases a position
const (
	OrderOpen  = "OPEN"
	OrderClose = "CLOSE"
)

// Order sources
const (
	SourceHuman = "HUMAN"
	SourceRobot = "ROBOT"
)

// Order status values
const (
	OrderStatusOpen      = "OPEN"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Position status values
const (
	PositionClosed = 0
	PositionActive = 1
)

// Liquidation event lifecycle
const (
	LiquidationPending = 1
	LiquidationInvalid = 2
	LiquidationClosed  = 3
)

// OppositeSide returns the counterparty side for a given order side
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order is a taker or maker order flowing through the matching engine.
// For MARKET orders the declared Volume is quote notional when opening a
// position and base contract quantity when closing one; DealMoney and
// DealVolume track cumulative consumption of either budget.
type Order struct {
	gorm.Model         `json:"-"`
	OrderID            string              `gorm:"uniqueIndex" json:"order_id"`
	UID                int64               `json:"uid"`
	Symbol             string              `json:"symbol"`
	Side               string              `json:"side"`       // BUY or SELL
	OrderType          string              `json:"order_type"` // LIMIT or MARKET
	Open               string              `json:"open"`       // OPEN or CLOSE
	Price              decimal.Decimal     `gorm:"type:decimal(32,16)" json:"price"`
	Volume             decimal.Decimal     `gorm:"type:decimal(32,16)" json:"volume"`
	UnfilledQuantity   decimal.Decimal     `gorm:"type:decimal(32,16)" json:"unfilled_quantity"`
	Multiplier         decimal.Decimal     `gorm:"type:decimal(32,16)" json:"multiplier"`
	Source             string              `json:"source"` // HUMAN or ROBOT
	SlippageRate       decimal.Decimal     `gorm:"type:decimal(32,16)" json:"slippage_rate"`
	LastPrice          decimal.Decimal     `gorm:"type:decimal(32,16)" json:"last_price"`
	SlippageBudget     decimal.NullDecimal `gorm:"type:decimal(32,16)" json:"slippage_budget"`
	UsedSlippageBudget decimal.Decimal     `gorm:"type:decimal(32,16)" json:"used_slippage_budget"`
	DealMoney          decimal.Decimal     `gorm:"type:decimal(32,16)" json:"deal_money"`
	DealVolume         decimal.Decimal     `gorm:"type:decimal(32,16)" json:"deal_volume"`
	PositionID         int64               `json:"position_id"` // set on take-profit/stop-loss orders tied to a position
	Status             string              `json:"status"`      // OPEN, FILLED or CANCELLED
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// IsFilled reports whether the order has no tradeable quantity left
func (o *Order) IsFilled() bool {
	return o.UnfilledQuantity.Sign() <= 0
}

// CrossesAt reports whether a LIMIT order would accept the given price
func (o *Order) CrossesAt(price decimal.Decimal) bool {
	if o.Side == SideBuy {
		return o.Price.GreaterThanOrEqual(price)
	}
	return o.Price.LessThanOrEqual(price)
}

// Trade is immutable once created by the matching engine or a
// liquidation deal. TrendSide records the side that initiated the trade.
type Trade struct {
	gorm.Model `json:"-"`
	TradeNonce string          `gorm:"uniqueIndex" json:"trade_nonce"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `gorm:"type:decimal(32,16)" json:"price"`
	Volume     decimal.Decimal `gorm:"type:decimal(32,16)" json:"volume"`
	BidOrderID string          `json:"bid_order_id"`
	BidUID     int64           `json:"bid_uid"`
	AskOrderID string          `json:"ask_order_id"`
	AskUID     int64           `json:"ask_uid"`
	BuyType    string          `json:"buy_type"`  // order type on the bid side
	SellType   string          `json:"sell_type"` // order type on the ask side
	TrendSide  string          `json:"trend_side"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Position is a user's open contract position. Volume is always
// non-negative; Side carries the direction.
type Position struct {
	gorm.Model       `json:"-"`
	PositionID       int64           `gorm:"uniqueIndex" json:"position_id"`
	UID              int64           `json:"uid"`
	ContractID       int64           `json:"contract_id"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"` // BUY (long) or SELL (short)
	Volume           decimal.Decimal `gorm:"type:decimal(32,16)" json:"volume"`
	AvgPrice         decimal.Decimal `gorm:"type:decimal(32,16)" json:"avg_price"`
	Margin           decimal.Decimal `gorm:"type:decimal(32,16)" json:"margin"`
	Leverage         decimal.Decimal `gorm:"type:decimal(32,16)" json:"leverage"`
	Status           int             `json:"status"` // PositionActive or PositionClosed
	CurFundingAmount decimal.Decimal `gorm:"type:decimal(32,16)" json:"cur_funding_amount"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasRemainingVolume reports whether there is anything left to liquidate
func (p *Position) HasRemainingVolume() bool {
	return p != nil && p.Volume.Sign() > 0
}

// IsLong reports whether the position gains when the price rises
func (p *Position) IsLong() bool {
	return p.Side == SideBuy
}

// SymbolConfig is the per-contract trading configuration. Read-only at
// match and liquidation time.
type SymbolConfig struct {
	gorm.Model      `json:"-"`
	ContractID      int64           `gorm:"uniqueIndex" json:"contract_id"`
	ContractName    string          `gorm:"uniqueIndex" json:"contract_name"`
	Multiplier      decimal.Decimal `gorm:"type:decimal(32,16)" json:"multiplier"`
	PricePrecision  int32           `json:"price_precision"`
	VolumePrecision int32           `json:"volume_precision"`
	MinTradeVolume  decimal.Decimal `gorm:"type:decimal(32,16)" json:"min_trade_volume"`
}

// LiquidationEvent is raised externally when a position's mark price
// crosses its liquidation price. Status is the single source of truth
// for whether a retry should re-run the flow.
type LiquidationEvent struct {
	gorm.Model `json:"-"`
	EventID    int64     `gorm:"uniqueIndex" json:"event_id"`
	PositionID int64     `json:"position_id"`
	Status     int       `json:"status"` // LiquidationPending, LiquidationInvalid or LiquidationClosed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
