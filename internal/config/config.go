// Package config loads the platform configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading platform.
type Config struct {
	Storage Storage      `yaml:"storage"`
	Broker  BrokerConfig `yaml:"broker"`
	Logging Logging      `yaml:"logging"`
	Costs   CostConfig   `yaml:"costs"`
	Risk    RiskConfig   `yaml:"risk"`
	Market  MarketConfig `yaml:"market"`
	Trading Trading      `yaml:"trading"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// BrokerConfig selects and configures the execution venue adapter.
type BrokerConfig struct {
	// Name selects the adapter: "mock" or "alpaca".
	Name   string       `yaml:"name"`
	Alpaca Alpaca       `yaml:"alpaca"`
	Mock   MockSettings `yaml:"mock"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// MockSettings tunes the mock broker used for paper trading and tests.
type MockSettings struct {
	InitialCash   float64 `yaml:"initial_cash"`
	FillDelayMs   int     `yaml:"fill_delay_ms"`
	Slippage      float64 `yaml:"slippage"`
	RejectionRate float64 `yaml:"rejection_rate"`
	Seed          int64   `yaml:"seed"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// CostConfig holds the transaction cost rates. Defaults match the A-share fee
// structure but every rate is configurable to support other markets.
type CostConfig struct {
	CommissionRate  float64 `yaml:"commission_rate"`
	MinCommission   float64 `yaml:"min_commission"`
	StampTaxRate    float64 `yaml:"stamp_tax_rate"`
	TransferFeeRate float64 `yaml:"transfer_fee_rate"`
}

// RiskConfig holds pre-trade risk limits.
type RiskConfig struct {
	MaxPositionPct   float64 `yaml:"max_position_pct"`
	MaxTotalExposure float64 `yaml:"max_total_exposure"`
	MaxOrderNotional float64 `yaml:"max_order_notional"`
	MinOrderNotional float64 `yaml:"min_order_notional"`
}

// MarketConfig holds exchange rules used by the simulator and validators.
type MarketConfig struct {
	LotSize int64 `yaml:"lot_size"`

	// Daily price-limit percentages by listing board.
	PriceLimitMainPct   float64 `yaml:"price_limit_main_pct"`
	PriceLimitGrowthPct float64 `yaml:"price_limit_growth_pct"`
	PriceLimitSTPct     float64 `yaml:"price_limit_st_pct"`

	// SameBarFill makes market orders fill at the signal bar's close instead
	// of the next bar's open. Off by default: next-bar open avoids look-ahead.
	SameBarFill bool `yaml:"same_bar_fill"`

	// ClampPriceLimit clamps limit prices to the daily band instead of
	// rejecting orders priced outside it.
	ClampPriceLimit bool `yaml:"clamp_price_limit"`

	// Slippage model: impact proportional to order notional / bar volume,
	// capped at MaxImpact.
	BaseImpact float64 `yaml:"base_impact"`
	MaxImpact  float64 `yaml:"max_impact"`

	// Fills are capped at this fraction of bar volume.
	MaxParticipationRate float64 `yaml:"max_participation_rate"`

	// Holidays in YYYY-MM-DD, in addition to weekends.
	Holidays []string `yaml:"holidays"`
}

// Trading defines engine-level execution parameters.
type Trading struct {
	InitialCapital      float64 `yaml:"initial_capital"`
	EnableTrading       bool    `yaml:"enable_trading"`
	MaxOrdersPerSec     float64 `yaml:"max_orders_per_sec"`
	HeartbeatIntervalS  int     `yaml:"heartbeat_interval_s"`
	ReconcileIntervalS  int     `yaml:"reconcile_interval_s"`
	MaxStrategyFailures int     `yaml:"max_strategy_failures"`
	MonitorMaxRetries   int     `yaml:"monitor_max_retries"`
	MonitorPollMs       int     `yaml:"monitor_poll_ms"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults for unset values, and then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config populated with defaults only, for tests and
// programmatic construction.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Broker.Name == "" {
		cfg.Broker.Name = "mock"
	}
	if cfg.Broker.Mock.InitialCash == 0 {
		cfg.Broker.Mock.InitialCash = 1_000_000
	}

	if cfg.Costs.CommissionRate == 0 {
		cfg.Costs.CommissionRate = 0.0003
	}
	if cfg.Costs.MinCommission == 0 {
		cfg.Costs.MinCommission = 5.0
	}
	if cfg.Costs.StampTaxRate == 0 {
		cfg.Costs.StampTaxRate = 0.001
	}
	if cfg.Costs.TransferFeeRate == 0 {
		cfg.Costs.TransferFeeRate = 0.00002
	}

	if cfg.Risk.MaxPositionPct == 0 {
		cfg.Risk.MaxPositionPct = 0.10
	}
	if cfg.Risk.MaxTotalExposure == 0 {
		cfg.Risk.MaxTotalExposure = 0.95
	}
	if cfg.Risk.MaxOrderNotional == 0 {
		cfg.Risk.MaxOrderNotional = 1_000_000
	}
	if cfg.Risk.MinOrderNotional == 0 {
		cfg.Risk.MinOrderNotional = 1_000
	}

	if cfg.Market.LotSize == 0 {
		cfg.Market.LotSize = 100
	}
	if cfg.Market.PriceLimitMainPct == 0 {
		cfg.Market.PriceLimitMainPct = 0.10
	}
	if cfg.Market.PriceLimitGrowthPct == 0 {
		cfg.Market.PriceLimitGrowthPct = 0.20
	}
	if cfg.Market.PriceLimitSTPct == 0 {
		cfg.Market.PriceLimitSTPct = 0.05
	}
	if cfg.Market.BaseImpact == 0 {
		cfg.Market.BaseImpact = 0.1
	}
	if cfg.Market.MaxImpact == 0 {
		cfg.Market.MaxImpact = 0.02
	}
	if cfg.Market.MaxParticipationRate == 0 {
		cfg.Market.MaxParticipationRate = 0.10
	}

	if cfg.Trading.InitialCapital == 0 {
		cfg.Trading.InitialCapital = 1_000_000
	}
	if cfg.Trading.MaxOrdersPerSec == 0 {
		cfg.Trading.MaxOrdersPerSec = 10
	}
	if cfg.Trading.HeartbeatIntervalS == 0 {
		cfg.Trading.HeartbeatIntervalS = 30
	}
	if cfg.Trading.ReconcileIntervalS == 0 {
		cfg.Trading.ReconcileIntervalS = 60
	}
	if cfg.Trading.MaxStrategyFailures == 0 {
		cfg.Trading.MaxStrategyFailures = 3
	}
	if cfg.Trading.MonitorMaxRetries == 0 {
		cfg.Trading.MonitorMaxRetries = 5
	}
	if cfg.Trading.MonitorPollMs == 0 {
		cfg.Trading.MonitorPollMs = 1000
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BROKER"); v != "" {
		cfg.Broker.Name = v
	}
	if v := os.Getenv("ENABLE_TRADING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.EnableTrading = b
		}
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Broker.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Broker.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Broker.Alpaca.BaseURL = v
	}
}
