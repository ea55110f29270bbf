package database

import (
	"errors"
	"fmt"

	"github.com/marginx/contract-core/internal/trades"
	"github.com/marginx/contract-core/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite database at path and migrates every
// model the core persists.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Order{},
		&types.Trade{},
		&types.Position{},
		&types.SymbolConfig{},
		&types.LiquidationEvent{},
		&trades.ContractTrade{},
		&trades.ContractTradeAudit{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// SeedSymbols upserts the configured symbols so matching and
// liquidation can resolve them.
func SeedSymbols(db *gorm.DB, symbols []*types.SymbolConfig) error {
	for _, symbol := range symbols {
		var existing types.SymbolConfig
		err := db.Where("contract_name = ?", symbol.ContractName).First(&existing).Error
		if err == nil {
			symbol.ID = existing.ID
			if err := db.Save(symbol).Error; err != nil {
				return fmt.Errorf("failed to update symbol %s: %w", symbol.ContractName, err)
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up symbol %s: %w", symbol.ContractName, err)
		}
		if err := db.Create(symbol).Error; err != nil {
			return fmt.Errorf("failed to seed symbol %s: %w", symbol.ContractName, err)
		}
	}
	return nil
}
