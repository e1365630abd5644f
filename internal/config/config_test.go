package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	authorityHex = "0x00000000000000000000000000000000000000f1"
	treasuryHex  = "0x00000000000000000000000000000000000000f2"
)

func validConfig() *Config {
	return &Config{
		DataDir: "data",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Market: MarketConfig{
			MinBetAmount:             100_000,
			MaxBetAmount:             1_000_000_000_000,
			MinSettlementTime:        10,
			MaxSettlementTime:        365 * 24 * 60 * 60,
			MaxPriceConfidence:       500,
			OracleStalenessThreshold: 60,
			FeeBps:                   100,
		},
		FeeCollector: FeeCollectorConfig{
			Authority:    authorityHex,
			Treasury:     treasuryHex,
			TreasuryBps:  5000,
			LiquidityBps: 3000,
			CreatorBps:   2000,
		},
		Risk: RiskConfig{
			KillSwitchMoveBps: 2500,
			KillSwitchWindow:  time.Minute,
			CooldownAfterKill: 5 * time.Minute,
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero min bet", func(c *Config) { c.Market.MinBetAmount = 0 }},
		{"min above max", func(c *Config) { c.Market.MinBetAmount = c.Market.MaxBetAmount + 1 }},
		{"fee above 100%", func(c *Config) { c.Market.FeeBps = 10_001 }},
		{"settlement window inverted", func(c *Config) { c.Market.MinSettlementTime = c.Market.MaxSettlementTime }},
		{"authority not hex", func(c *Config) { c.FeeCollector.Authority = "alice" }},
		{"missing treasury", func(c *Config) { c.FeeCollector.Treasury = "" }},
		{"shares do not sum", func(c *Config) { c.FeeCollector.CreatorBps = 1000 }},
		{"window missing", func(c *Config) { c.Risk.KillSwitchWindow = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := strings.Join([]string{
		"data_dir: /tmp/predict",
		"market:",
		"  fee_bps: 250",
		"fee_collector:",
		"  authority: " + authorityHex,
		"  treasury: " + treasuryHex,
		"risk:",
		"  kill_switch_window: 30s",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PREDICT_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/predict" || cfg.Market.FeeBps != 250 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override not applied: level = %q", cfg.Logging.Level)
	}
	if cfg.Market.MinBetAmount != 100_000 || cfg.FeeCollector.TreasuryBps != 5000 {
		t.Errorf("defaults not applied: %+v", cfg.Market)
	}
	if cfg.Risk.KillSwitchWindow != 30*time.Second || cfg.Risk.CooldownAfterKill != 5*time.Minute {
		t.Errorf("durations = %v / %v", cfg.Risk.KillSwitchWindow, cfg.Risk.CooldownAfterKill)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if cfg.FeeCollector.AuthorityAddress() != common.HexToAddress(authorityHex) {
		t.Errorf("authority = %s", cfg.FeeCollector.AuthorityAddress().Hex())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.FeeBps != 100 || cfg.Logging.Format != "text" || !cfg.Oracle.ValidateOnResolve {
		t.Errorf("defaults = %+v", cfg)
	}
}
