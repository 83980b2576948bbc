package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.Markets.Bitstamp.Enabled || !cfg.Markets.Kraken.Enabled {
		t.Error("bitstamp and kraken should be enabled by default")
	}
	if cfg.Markets.Coinbase.Enabled {
		t.Error("coinbase should be disabled by default")
	}
	if !cfg.MinTradeVolume().Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("min trade volume = %s, want 0.01", cfg.MinTradeVolume())
	}
	if cfg.CycleDelay() != 10*time.Second {
		t.Errorf("cycle delay = %s, want 10s", cfg.CycleDelay())
	}
	if cfg.OrderPollInterval() != 2*time.Second {
		t.Errorf("order poll interval = %s, want 2s", cfg.OrderPollInterval())
	}
	if !cfg.Trading.CancelSiblingOnFailure {
		t.Error("cancel_sibling_on_failure should default to true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
trading:
  min_trade_volume: "0.002"
  cycle_delay_seconds: 30
markets:
  kraken:
    enabled: false
server:
  enabled: true
  port: 9090
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.MinTradeVolume().Equal(decimal.RequireFromString("0.002")) {
		t.Errorf("min trade volume = %s, want 0.002", cfg.MinTradeVolume())
	}
	if cfg.CycleDelay() != 30*time.Second {
		t.Errorf("cycle delay = %s, want 30s", cfg.CycleDelay())
	}
	if cfg.Markets.Kraken.Enabled {
		t.Error("kraken should be disabled")
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	// Values not present in the file keep their defaults.
	if cfg.Trading.OrderPollSeconds != 2 {
		t.Errorf("order_poll_seconds = %d, want 2", cfg.Trading.OrderPollSeconds)
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("BITSTAMP_CLIENT_ID", "cid-1")
	t.Setenv("KRAKEN_SECRET", "kraken-sec")

	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Markets.Bitstamp.ClientID != "cid-1" {
		t.Errorf("bitstamp client id = %q", cfg.Markets.Bitstamp.ClientID)
	}
	if cfg.Markets.Kraken.Secret != "kraken-sec" {
		t.Errorf("kraken secret = %q", cfg.Markets.Kraken.Secret)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unparseable min volume", func(c *Config) { c.Trading.MinTradeVolume = "lots" }},
		{"negative min volume", func(c *Config) { c.Trading.MinTradeVolume = "-0.01" }},
		{"zero cycle delay", func(c *Config) { c.Trading.CycleDelaySeconds = 0 }},
		{"zero poll interval", func(c *Config) { c.Trading.OrderPollSeconds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Trading: TradingConfig{
					MinTradeVolume:    "0.01",
					CycleDelaySeconds: 10,
					OrderPollSeconds:  2,
				},
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline config should be valid: %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}
