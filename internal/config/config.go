// Package config defines all configuration for the prediction-pool engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// every field overridable via PREDICT_* environment variables. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DataDir      string             `mapstructure:"data_dir" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Market       MarketConfig       `mapstructure:"market"`
	FeeCollector FeeCollectorConfig `mapstructure:"fee_collector"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Oracle       OracleConfig       `mapstructure:"oracle"`
	Engine       EngineConfig       `mapstructure:"engine"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// MarketConfig holds the creation-time defaults applied to every new market.
//
//   - MinBetAmount / MaxBetAmount: per-bet bounds in collateral base units.
//   - MinSettlementTime / MaxSettlementTime: allowed distance from creation to settle, in seconds.
//   - MaxPriceConfidence: widest oracle confidence interval accepted at resolution.
//   - MinLiquidity: pot size at which a PendingLiquidity market opens (0 = open at creation).
//   - OracleStalenessThreshold: max age of an oracle reading, in seconds.
//   - FeeBps: protocol fee taken from every bet.
type MarketConfig struct {
	MinBetAmount             uint64 `mapstructure:"min_bet_amount" validate:"gt=0"`
	MaxBetAmount             uint64 `mapstructure:"max_bet_amount" validate:"gt=0"`
	MinSettlementTime        int64  `mapstructure:"min_settlement_time" validate:"gte=0"`
	MaxSettlementTime        int64  `mapstructure:"max_settlement_time" validate:"gt=0"`
	MaxPriceConfidence       uint64 `mapstructure:"max_price_confidence"`
	MinLiquidity             uint64 `mapstructure:"min_liquidity"`
	OracleStalenessThreshold int64  `mapstructure:"oracle_staleness_threshold" validate:"gte=0"`
	FeeBps                   uint16 `mapstructure:"fee_bps" validate:"lte=10000"`
}

// FeeCollectorConfig names who may sweep fee vaults and where the treasury
// share goes. The three distribution shares must sum to 10000.
type FeeCollectorConfig struct {
	Authority    string `mapstructure:"authority" validate:"required,eth_addr"`
	Treasury     string `mapstructure:"treasury" validate:"required,eth_addr"`
	TreasuryBps  uint16 `mapstructure:"treasury_bps" validate:"lte=10000"`
	LiquidityBps uint16 `mapstructure:"liquidity_bps" validate:"lte=10000"`
	CreatorBps   uint16 `mapstructure:"creator_bps" validate:"lte=10000"`
}

// RiskConfig sets the limits that pause a market (kill switch).
//
//   - KillSwitchMoveBps: if the YES spot price moves this many bps within the window, the market is paused.
//   - KillSwitchWindow: time window for measuring rapid pool movement.
//   - CooldownAfterKill: how long a killed market stays paused before it may be reopened.
//   - MaxGlobalExposure: cap on maker exposure across ALL markets combined (0 = no cap).
type RiskConfig struct {
	KillSwitchMoveBps uint64        `mapstructure:"kill_switch_move_bps" validate:"lte=10000"`
	KillSwitchWindow  time.Duration `mapstructure:"kill_switch_window" validate:"gte=0"`
	CooldownAfterKill time.Duration `mapstructure:"cooldown_after_kill" validate:"gte=0"`
	MaxGlobalExposure uint64        `mapstructure:"max_global_exposure"`
}

// OracleConfig controls oracle-path resolution.
type OracleConfig struct {
	ValidateOnResolve bool `mapstructure:"validate_on_resolve"`
}

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	EventBuffer int `mapstructure:"event_buffer" validate:"gte=0"`
}

// AuthorityAddress parses FeeCollector.Authority. Call after Validate.
func (c FeeCollectorConfig) AuthorityAddress() common.Address {
	return common.HexToAddress(c.Authority)
}

// TreasuryAddress parses FeeCollector.Treasury. Call after Validate.
func (c FeeCollectorConfig) TreasuryAddress() common.Address {
	return common.HexToAddress(c.Treasury)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("market.min_bet_amount", 100_000)
	v.SetDefault("market.max_bet_amount", 1_000_000_000_000)
	v.SetDefault("market.min_settlement_time", 10)
	v.SetDefault("market.max_settlement_time", 365*24*60*60)
	v.SetDefault("market.max_price_confidence", 500)
	v.SetDefault("market.min_liquidity", 0)
	v.SetDefault("market.oracle_staleness_threshold", 60)
	v.SetDefault("market.fee_bps", 100)

	v.SetDefault("fee_collector.authority", "")
	v.SetDefault("fee_collector.treasury", "")
	v.SetDefault("fee_collector.treasury_bps", 5000)
	v.SetDefault("fee_collector.liquidity_bps", 3000)
	v.SetDefault("fee_collector.creator_bps", 2000)

	v.SetDefault("risk.kill_switch_move_bps", 2500)
	v.SetDefault("risk.kill_switch_window", "60s")
	v.SetDefault("risk.cooldown_after_kill", "5m")
	v.SetDefault("risk.max_global_exposure", 0)

	v.SetDefault("oracle.validate_on_resolve", true)
	v.SetDefault("engine.event_buffer", 64)
}

// Load reads config from a YAML file with env var overrides. A missing file
// is not an error: defaults and PREDICT_* variables still apply.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PREDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Market.MinBetAmount > c.Market.MaxBetAmount {
		return fmt.Errorf("market.min_bet_amount must be <= market.max_bet_amount")
	}
	if c.Market.MinSettlementTime >= c.Market.MaxSettlementTime {
		return fmt.Errorf("market.min_settlement_time must be < market.max_settlement_time")
	}
	sum := uint32(c.FeeCollector.TreasuryBps) + uint32(c.FeeCollector.LiquidityBps) + uint32(c.FeeCollector.CreatorBps)
	if sum != 10_000 {
		return fmt.Errorf("fee_collector shares must sum to 10000 bps, got %d", sum)
	}
	if c.Risk.KillSwitchMoveBps > 0 && c.Risk.KillSwitchWindow <= 0 {
		return fmt.Errorf("risk.kill_switch_window must be > 0 when risk.kill_switch_move_bps is set")
	}
	return nil
}
