package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RateSource supplies the current funding rate for a contract. Funding
// rate derivation lives outside the core.
type RateSource interface {
	FundingRate(contractName string) decimal.Decimal
}

// Processor runs periodic funding settlement across all contracts.
// When an index price cache is configured, position value is marked to
// the cached index price; otherwise each position's entry price is
// used.
type Processor struct {
	db          *Database
	rates       RateSource
	indexPrices *redis.Client
	interval    time.Duration
}

// NewProcessor creates a funding processor settling at the given
// interval. indexPrices may be nil.
func NewProcessor(gormDB *gorm.DB, rates RateSource, indexPrices *redis.Client, interval time.Duration) *Processor {
	return &Processor{
		db:          NewDatabase(gormDB),
		rates:       rates,
		indexPrices: indexPrices,
		interval:    interval,
	}
}

// Start begins the funding settlement loop and blocks until the context
// is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "funding_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting funding processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down funding processor")
			return
		case <-ticker.C:
			if err := p.settleAll(ctx); err != nil {
				logger.Error().Err(err).Msg("funding settlement round failed")
			}
		}
	}
}

// settleAll computes and persists funding fees for every contract's
// active positions.
func (p *Processor) settleAll(ctx context.Context) error {
	logger := log.With().Str("component", "funding_processor").Logger()

	symbols, err := p.db.GetSymbols()
	if err != nil {
		return err
	}

	for i := range symbols {
		symbol := &symbols[i]
		rate := p.rates.FundingRate(symbol.ContractName)

		positions, err := p.db.GetActivePositions(symbol.ContractID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("contract", symbol.ContractName).
				Msg("failed to load positions for funding")
			continue
		}
		if len(positions) == 0 {
			continue
		}

		markPrice := decimal.Zero
		if p.indexPrices != nil {
			if price, ok := LoadIndexPrice(ctx, p.indexPrices, strings.ToUpper(symbol.ContractName)); ok {
				markPrice = price
			}
		}

		ComputeFundingFees(symbol, rate, markPrice, positions)
		if err := p.db.SaveFundingAmounts(positions); err != nil {
			logger.Error().
				Err(err).
				Str("contract", symbol.ContractName).
				Msg("failed to persist funding amounts")
			continue
		}

		logger.Info().
			Str("contract", symbol.ContractName).
			Str("rate", rate.String()).
			Int("positions", len(positions)).
			Msg("funding settlement completed")
	}
	return nil
}
