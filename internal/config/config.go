// Package config loads the engine configuration from a YAML file plus
// a .env file for environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/marginx/contract-core/internal/liquidation"
	"github.com/marginx/contract-core/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Config is the full engine configuration. Decimal values are carried
// as strings in YAML and parsed on access.
type Config struct {
	DatabasePath    string `yaml:"database_path"`
	RedisAddr       string `yaml:"redis_addr"`
	FundingInterval string `yaml:"funding_interval"`
	ParsedInterval  time.Duration

	Liquidation LiquidationConfig `yaml:"liquidation"`
	Symbols     []Symbol          `yaml:"symbols"`
}

type LiquidationConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
}

// Symbol is one contract's configuration, including its margin-factor
// table.
type Symbol struct {
	ContractID      int64       `yaml:"contract_id"`
	ContractName    string      `yaml:"contract_name"`
	Multiplier      string      `yaml:"multiplier"`
	PricePrecision  int32       `yaml:"price_precision"`
	VolumePrecision int32       `yaml:"volume_precision"`
	MinTradeVolume  string      `yaml:"min_trade_volume"`
	Factors         FactorTable `yaml:"factors"`
}

type FactorTable struct {
	Brackets          []LeverageBracket `yaml:"brackets"`
	DefaultFactor     string            `yaml:"default_factor"`
	LeverageOneFactor string            `yaml:"leverage_one_factor"`
}

type LeverageBracket struct {
	MinLeverage   string      `yaml:"min_leverage"`
	MaxLeverage   string      `yaml:"max_leverage"`
	Tiers         []ValueTier `yaml:"tiers"`
	DefaultFactor string      `yaml:"default_factor"`
}

type ValueTier struct {
	Threshold string `yaml:"threshold"`
	Factor    string `yaml:"factor"`
}

// Load reads the YAML config at filename, after loading a .env file
// from the same directory when one exists.
func Load(filename string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(filename), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", envPath).Msg("failed to load .env file")
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	if cfg.FundingInterval == "" {
		cfg.FundingInterval = "8h"
	}
	cfg.ParsedInterval, err = time.ParseDuration(cfg.FundingInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding interval: %w", err)
	}

	return &cfg, nil
}

// ToSymbolConfig converts a configured symbol into its domain form.
func (s *Symbol) ToSymbolConfig() (*types.SymbolConfig, error) {
	multiplier, err := decimal.NewFromString(s.Multiplier)
	if err != nil {
		return nil, fmt.Errorf("symbol %s: invalid multiplier: %w", s.ContractName, err)
	}
	minVol, err := decimal.NewFromString(s.MinTradeVolume)
	if err != nil {
		return nil, fmt.Errorf("symbol %s: invalid min trade volume: %w", s.ContractName, err)
	}
	return &types.SymbolConfig{
		ContractID:      s.ContractID,
		ContractName:    s.ContractName,
		Multiplier:      multiplier,
		PricePrecision:  s.PricePrecision,
		VolumePrecision: s.VolumePrecision,
		MinTradeVolume:  minVol,
	}, nil
}

// ToFactorTable converts a configured factor table into its domain
// form.
func (t *FactorTable) ToFactorTable() (*liquidation.FactorTable, error) {
	table := &liquidation.FactorTable{}

	var err error
	if table.DefaultFactor, err = parseDecimal("default_factor", t.DefaultFactor); err != nil {
		return nil, err
	}
	if table.LeverageOneFactor, err = parseDecimal("leverage_one_factor", t.LeverageOneFactor); err != nil {
		return nil, err
	}

	for _, b := range t.Brackets {
		bracket := liquidation.LeverageBracket{}
		if bracket.MinLeverage, err = parseDecimal("min_leverage", b.MinLeverage); err != nil {
			return nil, err
		}
		if bracket.MaxLeverage, err = parseDecimal("max_leverage", b.MaxLeverage); err != nil {
			return nil, err
		}
		if bracket.DefaultFactor, err = parseDecimal("default_factor", b.DefaultFactor); err != nil {
			return nil, err
		}
		for _, tier := range b.Tiers {
			vt := liquidation.ValueTier{}
			if vt.Threshold, err = parseDecimal("threshold", tier.Threshold); err != nil {
				return nil, err
			}
			if vt.Factor, err = parseDecimal("factor", tier.Factor); err != nil {
				return nil, err
			}
			bracket.Tiers = append(bracket.Tiers, vt)
		}
		table.Brackets = append(table.Brackets, bracket)
	}
	return table, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return v, nil
}
