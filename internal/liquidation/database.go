package liquidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/money"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// System accounts hold uids at or below this threshold; everything
// above it is a human account.
const systemUIDThreshold = 100000

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
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

// GetPositionForUpdate fetches a position under an exclusive row lock;
// nil when absent.
func (d *Database) GetPositionForUpdate(positionID int64) (*types.Position, error) {
	var position types.Position
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("position_id = ?", positionID).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// CancelOrdersForPosition cancels open orders tied to one position.
func (d *Database) CancelOrdersForPosition(positionID int64) error {
	return d.db.Model(&types.Order{}).
		Where("position_id = ? AND status = ?", positionID, types.OrderStatusOpen).
		Update("status", types.OrderStatusCancelled).Error
}

// CancelOrdersForUser cancels the user's open orders on one contract.
func (d *Database) CancelOrdersForUser(symbol string, uid int64) error {
	return d.db.Model(&types.Order{}).
		Where("symbol = ? AND uid = ? AND status = ?", symbol, uid, types.OrderStatusOpen).
		Update("status", types.OrderStatusCancelled).Error
}

// selectCounterparty returns the position at the given scan offset on
// one side of a contract, restricted to active positions with volume.
// systemOnly limits the scan to system-owned accounts.
func (d *Database) selectCounterparty(contractID int64, side string, offset int, systemOnly bool) (*types.Position, error) {
	query := d.db.
		Where("contract_id = ? AND side = ? AND status = ? AND volume > 0", contractID, side, types.PositionActive)
	if systemOnly {
		query = query.Where("uid <= ?", systemUIDThreshold)
	} else {
		query = query.Where("uid > ?", systemUIDThreshold)
	}

	var position types.Position
	err := query.Order("position_id ASC").Offset(offset).First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// SaveDeal persists both sides of a deal and the resulting trade in one
// transaction.
func (d *Database) SaveDeal(target, counterparty *types.Position, trade *types.Trade) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Save(target).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save target position: %w", err)
	}
	if err := tx.Save(counterparty).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save counterparty position: %w", err)
	}
	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record liquidation trade: %w", err)
	}
	return tx.Commit().Error
}

// UpdateEventStatus moves a liquidation event to the given status.
func (d *Database) UpdateEventStatus(eventID int64, status int) error {
	return d.db.Model(&types.LiquidationEvent{}).
		Where("event_id = ?", eventID).
		Update("status", status).Error
}

// GormDependencies implements the orchestrator's Dependencies surface
// on the shared database. Deal execution crosses the two positions at
// the counterparty's entry price, per the maker-price rule.
type GormDependencies struct {
	db *Database
}

func NewGormDependencies(gormDB *gorm.DB) *GormDependencies {
	return &GormDependencies{db: NewDatabase(gormDB)}
}

func (g *GormDependencies) SymbolByContractName(name string) (*types.SymbolConfig, error) {
	return g.db.GetSymbolByName(name)
}

func (g *GormDependencies) LockPosition(positionID int64) (*types.Position, error) {
	return g.db.GetPositionForUpdate(positionID)
}

func (g *GormDependencies) CancelTriggerOrders(symbol *types.SymbolConfig, positionID int64, reason string) {
	if err := g.db.CancelOrdersForPosition(positionID); err != nil {
		log.Error().
			Err(err).
			Int64("position_id", positionID).
			Str("reason", reason).
			Msg("failed to cancel trigger orders")
	}
}

// CancelDelegatingOrders cancels the owner's resting orders and reports
// whether that alone resolved the liquidation, which it does when the
// position has gone inactive by the time the cancellation lands.
func (g *GormDependencies) CancelDelegatingOrders(symbol *types.SymbolConfig, uid int64, positionID int64) (bool, error) {
	if err := g.db.CancelOrdersForUser(symbol.ContractName, uid); err != nil {
		return false, fmt.Errorf("failed to cancel delegating orders: %w", err)
	}
	position, err := g.db.GetPositionForUpdate(positionID)
	if err != nil {
		return false, err
	}
	return position == nil || position.Status == types.PositionClosed, nil
}

func (g *GormDependencies) SelectCounterparty(contractID int64, side string, offset int) (*types.Position, error) {
	return g.db.selectCounterparty(contractID, side, offset, false)
}

func (g *GormDependencies) SelectSystemCounterparty(contractID int64, side string, offset int) (*types.Position, error) {
	return g.db.selectCounterparty(contractID, side, offset, true)
}

func (g *GormDependencies) UpdateLiquidationStatus(eventID int64, status int) error {
	return g.db.UpdateEventStatus(eventID, status)
}

// ExecuteDeal crosses the target with the counterparty for the smaller
// of the two volumes, records the trade, and advances the cursors: a
// counterparty left with volume keeps absorbing nothing further, so the
// originating pool's offset moves past it; a fully-closed counterparty
// vacates its scan slot and the offset stays put.
func (g *GormDependencies) ExecuteDeal(ctx context.Context, symbol *types.SymbolConfig, eventID int64, target, counterparty *types.Position, cursors *Cursors) error {
	volume := money.Min(target.Volume, counterparty.Volume)
	if volume.Sign() <= 0 {
		return nil
	}

	trade := newDealTrade(symbol, target, counterparty, volume)
	reducePosition(target, volume)
	reducePosition(counterparty, volume)

	if err := g.db.SaveDeal(target, counterparty, trade); err != nil {
		return err
	}

	fromSystem := counterparty.UID <= systemUIDThreshold
	if counterparty.HasRemainingVolume() {
		if fromSystem {
			cursors.SystemOffset++
		} else {
			cursors.UserOffset++
		}
	}
	cursors.PreferSystem = fromSystem

	log.Info().
		Str("component", "liquidation").
		Int64("event_id", eventID).
		Int64("target_position", target.PositionID).
		Int64("counterparty_position", counterparty.PositionID).
		Str("volume", volume.String()).
		Str("price", trade.Price.String()).
		Msg("liquidation deal executed")
	return nil
}
