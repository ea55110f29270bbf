package trades

import (
	"errors"
	"fmt"

	"github.com/marginx/contract-core/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateTrade stores a raw matching-engine trade.
func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

// GetOrderByID retrieves an order by its external id; nil when absent.
func (d *Database) GetOrderByID(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetSymbolByName resolves a contract config by name; nil when absent.
func (d *Database) GetSymbolByName(name string) (*types.SymbolConfig, error) {
	var symbol types.SymbolConfig
	if err := d.db.Where("contract_name = ?", name).First(&symbol).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &symbol, nil
}

// GetTradeByNonce retrieves a raw trade by its nonce.
func (d *Database) GetTradeByNonce(nonce string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_nonce = ?", nonce).First(&trade).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	return &trade, nil
}

// SaveTradePair writes a trade row and its audit copy in one
// transaction.
func (d *Database) SaveTradePair(row *ContractTrade, audit *ContractTradeAudit) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(row).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save trade row: %w", err)
	}
	if err := tx.Create(audit).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save trade audit row: %w", err)
	}
	return tx.Commit().Error
}

// GetTradesForOrder retrieves the enriched rows recorded for an order.
func (d *Database) GetTradesForOrder(orderID string) ([]ContractTrade, error) {
	var rows []ContractTrade
	if err := d.db.Where("order_id = ?", orderID).
		Order("trade_time ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trades for order: %w", err)
	}
	return rows, nil
}
