package settlement

import (
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

// GetSymbols retrieves every configured contract.
func (d *Database) GetSymbols() ([]types.SymbolConfig, error) {
	var symbols []types.SymbolConfig
	if err := d.db.Find(&symbols).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch symbols: %w", err)
	}
	return symbols, nil
}

// GetActivePositions retrieves a contract's open positions.
func (d *Database) GetActivePositions(contractID int64) ([]*types.Position, error) {
	var positions []*types.Position
	if err := d.db.
		Where("contract_id = ? AND status = ? AND volume > 0", contractID, types.PositionActive).
		Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch active positions: %w", err)
	}
	return positions, nil
}

// SaveFundingAmounts persists the computed funding fees in one
// transaction.
func (d *Database) SaveFundingAmounts(positions []*types.Position) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, p := range positions {
		if err := tx.Model(&types.Position{}).
			Where("position_id = ?", p.PositionID).
			Update("cur_funding_amount", p.CurFundingAmount).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save funding amount for position %d: %w", p.PositionID, err)
		}
	}
	return tx.Commit().Error
}
