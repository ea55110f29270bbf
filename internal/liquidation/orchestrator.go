package liquidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marginx/contract-core/internal/types"
	"github.com/marginx/contract-core/pkg/lock"
	"github.com/rs/zerolog/log"
)

const (
	// MaxIterations bounds the deal loop so a thin counterparty market
	// cannot live-lock a liquidation run. A run that exhausts the bound
	// leaves the position partially liquidated and resumable.
	MaxIterations = 10

	// DefaultLockTTL is the lease duration on a counterparty position
	// lock; a crashed holder releases it by expiry.
	DefaultLockTTL = 5 * time.Second

	dealPositionLockPrefix = "liquidation:deal-position:"
)

// ErrNoCounterparty is returned when no position exists to absorb the
// liquidation. Recoverable but serious: the caller decides on retry.
var ErrNoCounterparty = errors.New("no counterparty position available")

// Cursors are the ADL scan offsets for one liquidation run. The
// orchestrator never advances them; deal execution does after a
// successful deal, so a skipped lock retries the same candidate.
type Cursors struct {
	UserOffset   int
	SystemOffset int
	PreferSystem bool
}

// Dependencies is the collaborator surface the orchestrator drives.
type Dependencies interface {
	// SymbolByContractName resolves the contract config; nil means the
	// symbol does not exist.
	SymbolByContractName(name string) (*types.SymbolConfig, error)

	// LockPosition fetches the target position under an exclusive row
	// lock. nil means the position is absent.
	LockPosition(positionID int64) (*types.Position, error)

	// CancelTriggerOrders cancels take-profit/stop-loss orders tied to
	// the position. Best effort, side effect only.
	CancelTriggerOrders(symbol *types.SymbolConfig, positionID int64, reason string)

	// CancelDelegatingOrders cancels the owner's resting orders. A true
	// result means the cancellation alone fully resolved the
	// liquidation and the flow stops; the collaborator is authoritative.
	CancelDelegatingOrders(symbol *types.SymbolConfig, uid int64, positionID int64) (bool, error)

	// SelectCounterparty returns the human-owned counterparty position
	// on the given side at the scan offset, nil when none remains.
	SelectCounterparty(contractID int64, side string, offset int) (*types.Position, error)

	// SelectSystemCounterparty is the system-pool variant of
	// SelectCounterparty.
	SelectSystemCounterparty(contractID int64, side string, offset int) (*types.Position, error)

	// UpdateLiquidationStatus moves the event through its lifecycle.
	UpdateLiquidationStatus(eventID int64, status int) error

	// ExecuteDeal crosses the target position with the counterparty,
	// records the resulting trade, and advances the cursors.
	ExecuteDeal(ctx context.Context, symbol *types.SymbolConfig, eventID int64, target, counterparty *types.Position, cursors *Cursors) error
}

// Orchestrator resolves liquidation events. Mutual exclusion is
// per-position and distributed, so independent workers can liquidate
// different positions concurrently.
type Orchestrator struct {
	deps          Dependencies
	locker        lock.Locker
	maxIterations int
	lockTTL       time.Duration
}

// NewOrchestrator creates an orchestrator with the default iteration
// bound and lock TTL.
func NewOrchestrator(deps Dependencies, locker lock.Locker) *Orchestrator {
	return NewOrchestratorWithLimits(deps, locker, MaxIterations, DefaultLockTTL)
}

// NewOrchestratorWithLimits creates an orchestrator with a configured
// iteration bound and lock TTL. Non-positive values fall back to the
// defaults.
func NewOrchestratorWithLimits(deps Dependencies, locker lock.Locker, maxIterations int, lockTTL time.Duration) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = MaxIterations
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Orchestrator{
		deps:          deps,
		locker:        locker,
		maxIterations: maxIterations,
		lockTTL:       lockTTL,
	}
}

// ProcessLiquidation handles one liquidation event end to end:
// PENDING -> INVALID when the event is stale, PENDING -> CLOSED when
// the position ends flat. An exhausted iteration bound leaves the event
// pending and the position resumable by a later event.
func (o *Orchestrator) ProcessLiquidation(ctx context.Context, contractName string, eventID, positionID int64) error {
	if contractName == "" {
		return errors.New("contract name cannot be empty")
	}

	logger := log.With().
		Str("component", "liquidation").
		Str("contract", contractName).
		Int64("event_id", eventID).
		Int64("position_id", positionID).
		Logger()

	logger.Info().Msg("processing forced liquidation")

	symbol, err := o.deps.SymbolByContractName(contractName)
	if err != nil {
		return fmt.Errorf("failed to resolve symbol %s: %w", contractName, err)
	}
	if symbol == nil {
		return fmt.Errorf("symbol not found: %s", contractName)
	}

	target, err := o.deps.LockPosition(positionID)
	if err != nil {
		return fmt.Errorf("failed to lock position %d: %w", positionID, err)
	}
	if target == nil || target.Status == types.PositionClosed {
		// Stale event: the position is already gone
		logger.Info().Msg("position absent or inactive, marking event invalid")
		return o.deps.UpdateLiquidationStatus(eventID, types.LiquidationInvalid)
	}

	logger.Debug().Int64("uid", target.UID).Msg("cancelling trigger orders")
	o.deps.CancelTriggerOrders(symbol, target.PositionID, "forced liquidation")

	resolved, err := o.deps.CancelDelegatingOrders(symbol, target.UID, target.PositionID)
	if err != nil {
		return fmt.Errorf("failed to cancel delegating orders: %w", err)
	}
	if resolved {
		logger.Info().Msg("order cancellation fully resolved the liquidation")
		return nil
	}

	cursors := &Cursors{PreferSystem: true}

	guard := 0
	for target.HasRemainingVolume() {
		if guard >= o.maxIterations {
			logger.Warn().
				Str("remaining_volume", target.Volume.String()).
				Msg("liquidation iteration bound reached, leaving position resumable")
			break
		}
		guard++

		counterparty, err := o.pickCounterparty(symbol, target, cursors)
		if err != nil {
			return err
		}
		if counterparty == nil {
			return ErrNoCounterparty
		}

		if err := o.dealUnderLock(ctx, symbol, eventID, target, counterparty, cursors); err != nil {
			return err
		}
	}

	if !target.HasRemainingVolume() {
		logger.Info().Msg("position fully liquidated, closing event")
		return o.deps.UpdateLiquidationStatus(eventID, types.LiquidationClosed)
	}
	return nil
}

// dealUnderLock executes one deal while holding the counterparty's
// lease lock. A failed acquisition is neither an error nor success: the
// iteration is skipped and the bounded loop continues.
func (o *Orchestrator) dealUnderLock(ctx context.Context, symbol *types.SymbolConfig, eventID int64, target, counterparty *types.Position, cursors *Cursors) error {
	key := fmt.Sprintf("%s%d", dealPositionLockPrefix, counterparty.PositionID)
	token := uuid.New().String()

	locked, err := o.locker.Lock(ctx, key, token, o.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire position lock %s: %w", key, err)
	}
	if !locked {
		log.Warn().
			Str("component", "liquidation").
			Str("lock_key", key).
			Msg("counterparty position locked elsewhere, skipping iteration")
		return nil
	}
	defer func() {
		if err := o.locker.Unlock(ctx, key, token); err != nil {
			log.Error().Err(err).Str("lock_key", key).Msg("failed to release position lock")
		}
	}()

	return o.deps.ExecuteDeal(ctx, symbol, eventID, target, counterparty, cursors)
}

// pickCounterparty selects the next ADL counterparty. In prefer-system
// mode a missing system position falls back to the human pool at the
// system cursor's offset, not the user cursor's. In prefer-user mode a
// missing user position flips the run to prefer-system and retries the
// system lookup at the unchanged system offset.
func (o *Orchestrator) pickCounterparty(symbol *types.SymbolConfig, target *types.Position, cursors *Cursors) (*types.Position, error) {
	oppositeSide := types.OppositeSide(target.Side)

	if cursors.PreferSystem {
		sys, err := o.deps.SelectSystemCounterparty(symbol.ContractID, oppositeSide, cursors.SystemOffset)
		if err != nil {
			return nil, fmt.Errorf("failed to select system counterparty: %w", err)
		}
		if sys != nil {
			return sys, nil
		}
		// Fallback intentionally reuses the system cursor's offset
		fallback, err := o.deps.SelectCounterparty(symbol.ContractID, oppositeSide, cursors.SystemOffset)
		if err != nil {
			return nil, fmt.Errorf("failed to select counterparty: %w", err)
		}
		return fallback, nil
	}

	user, err := o.deps.SelectCounterparty(symbol.ContractID, oppositeSide, cursors.UserOffset)
	if err != nil {
		return nil, fmt.Errorf("failed to select counterparty: %w", err)
	}
	if user != nil {
		return user, nil
	}
	cursors.PreferSystem = true
	sys, err := o.deps.SelectSystemCounterparty(symbol.ContractID, oppositeSide, cursors.SystemOffset)
	if err != nil {
		return nil, fmt.Errorf("failed to select system counterparty: %w", err)
	}
	return sys, nil
}
