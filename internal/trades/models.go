package trades

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ContractTrade is the enriched per-side trade row: one row per order
// involved in a trade, carrying that order's role and fee.
type ContractTrade struct {
	gorm.Model     `json:"-"`
	RecordID       string          `gorm:"uniqueIndex" json:"record_id"`
	TradeID        string          `gorm:"index" json:"trade_id"`
	TradeTime      int64           `json:"trade_time"`
	OrderID        string          `json:"order_id"`
	CounterOrderID string          `json:"counter_order_id"`
	OrderKind      string          `json:"order_kind"` // OPEN or CLOSE
	OrderSide      string          `json:"order_side"`
	OrderType      string          `json:"order_type"`
	UID            int64           `json:"uid"`
	CounterUID     int64           `json:"counter_uid"`
	TradeVolume    decimal.Decimal `gorm:"type:decimal(32,16)" json:"trade_volume"`
	TradePrice     decimal.Decimal `gorm:"type:decimal(32,16)" json:"trade_price"`
	TradeFee       decimal.Decimal `gorm:"type:decimal(32,16)" json:"trade_fee"`
	OrderRole      string          `json:"order_role"` // TAKER or MAKER
	OrderSource    string          `json:"order_source"`
	OnlyHumanTrade bool            `json:"only_human_trade"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ContractTradeAudit is the cross-contract audit copy of a trade row.
type ContractTradeAudit struct {
	gorm.Model     `json:"-"`
	RecordID       string          `gorm:"uniqueIndex" json:"record_id"`
	ContractID     int64           `json:"contract_id"`
	ContractName   string          `json:"contract_name"`
	TradeID        string          `gorm:"index" json:"trade_id"`
	TradeTime      int64           `json:"trade_time"`
	OrderID        string          `json:"order_id"`
	CounterOrderID string          `json:"counter_order_id"`
	OrderKind      string          `json:"order_kind"`
	OrderSide      string          `json:"order_side"`
	OrderType      string          `json:"order_type"`
	UID            int64           `json:"uid"`
	CounterUID     int64           `json:"counter_uid"`
	TradeVolume    decimal.Decimal `gorm:"type:decimal(32,16)" json:"trade_volume"`
	TradePrice     decimal.Decimal `gorm:"type:decimal(32,16)" json:"trade_price"`
	TradeFee       decimal.Decimal `gorm:"type:decimal(32,16)" json:"trade_fee"`
	OrderRole      string          `json:"order_role"`
	OrderSource    string          `json:"order_source"`
	OnlyHumanTrade bool            `json:"only_human_trade"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
