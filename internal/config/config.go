package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dankeder/xbtarbiter/pkg/secrets"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Markets MarketsConfig `mapstructure:"markets"`
	Trading TradingConfig `mapstructure:"trading"`
	Forex   ForexConfig   `mapstructure:"forex"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type MarketsConfig struct {
	Bitstamp BitstampConfig `mapstructure:"bitstamp"`
	Kraken   KrakenConfig   `mapstructure:"kraken"`
	Coinbase CoinbaseConfig `mapstructure:"coinbase"`
}

type BitstampConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	ClientID string `mapstructure:"client_id"`
	Key      string `mapstructure:"key"`
	Secret   string `mapstructure:"secret"`
}

type KrakenConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
	Secret  string `mapstructure:"secret"`
}

type CoinbaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	APIKeyName    string `mapstructure:"api_key_name"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
}

type TradingConfig struct {
	// MinTradeVolume is the smallest volume (XBT) the exchanges accept per
	// order; computed opportunities below it are skipped.
	MinTradeVolume         string `mapstructure:"min_trade_volume"`
	CycleDelaySeconds      int    `mapstructure:"cycle_delay_seconds"`
	OrderPollSeconds       int    `mapstructure:"order_poll_seconds"`
	CancelSiblingOnFailure bool   `mapstructure:"cancel_sibling_on_failure"`
	TradeLogFile           string `mapstructure:"trade_log_file"`
}

type ForexConfig struct {
	EURUSDEndpoint string `mapstructure:"eurusd_endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	// A .env next to the binary is a convenience for development setups.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.xbtarbiter")
		v.AddConfigPath("/etc/xbtarbiter")
	}

	v.SetEnvPrefix("XBT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate catches invalid operator-supplied values at startup, before any
// trading cycle runs.
func (c *Config) Validate() error {
	minVolume, err := decimal.NewFromString(c.Trading.MinTradeVolume)
	if err != nil {
		return fmt.Errorf("invalid trading.min_trade_volume %q: %w", c.Trading.MinTradeVolume, err)
	}
	if minVolume.IsNegative() {
		return fmt.Errorf("trading.min_trade_volume must not be negative")
	}
	if c.Trading.CycleDelaySeconds <= 0 {
		return fmt.Errorf("trading.cycle_delay_seconds must be positive")
	}
	if c.Trading.OrderPollSeconds <= 0 {
		return fmt.Errorf("trading.order_poll_seconds must be positive")
	}
	return nil
}

// MinTradeVolume returns the parsed minimum trade volume. Call Validate
// first.
func (c *Config) MinTradeVolume() decimal.Decimal {
	v, _ := decimal.NewFromString(c.Trading.MinTradeVolume)
	return v
}

func (c *Config) CycleDelay() time.Duration {
	return time.Duration(c.Trading.CycleDelaySeconds) * time.Second
}

func (c *Config) OrderPollInterval() time.Duration {
	return time.Duration(c.Trading.OrderPollSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("markets.bitstamp.enabled", true)
	v.SetDefault("markets.kraken.enabled", true)
	v.SetDefault("markets.coinbase.enabled", false)

	v.SetDefault("trading.min_trade_volume", "0.01")
	v.SetDefault("trading.cycle_delay_seconds", 10)
	v.SetDefault("trading.order_poll_seconds", 2)
	v.SetDefault("trading.cancel_sibling_on_failure", true)
	v.SetDefault("trading.trade_log_file", "~/.xbtarbiter/orders.log")

	v.SetDefault("forex.eurusd_endpoint", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.bitstamp_client_id", secretNames.BitstampClientID)
	v.SetDefault("gcp.secret_names.bitstamp_key", secretNames.BitstampKey)
	v.SetDefault("gcp.secret_names.bitstamp_secret", secretNames.BitstampSecret)
	v.SetDefault("gcp.secret_names.kraken_key", secretNames.KrakenKey)
	v.SetDefault("gcp.secret_names.kraken_secret", secretNames.KrakenSecret)
	v.SetDefault("gcp.secret_names.coinbase_api_key_name", secretNames.CoinbaseAPIKeyName)
	v.SetDefault("gcp.secret_names.coinbase_private_key", secretNames.CoinbasePrivateKey)
}

func overrideFromEnv(config *Config) {
	if clientID := os.Getenv("BITSTAMP_CLIENT_ID"); clientID != "" {
		config.Markets.Bitstamp.ClientID = clientID
	}
	if key := os.Getenv("BITSTAMP_KEY"); key != "" {
		config.Markets.Bitstamp.Key = key
	}
	if secret := os.Getenv("BITSTAMP_SECRET"); secret != "" {
		config.Markets.Bitstamp.Secret = secret
	}

	if key := os.Getenv("KRAKEN_KEY"); key != "" {
		config.Markets.Kraken.Key = key
	}
	if secret := os.Getenv("KRAKEN_SECRET"); secret != "" {
		config.Markets.Kraken.Secret = secret
	}

	if keyName := os.Getenv("COINBASE_API_KEY_NAME"); keyName != "" {
		config.Markets.Coinbase.APIKeyName = keyName
	}
	if privateKey := os.Getenv("COINBASE_PRIVATE_KEY"); privateKey != "" {
		config.Markets.Coinbase.PrivateKeyPEM = privateKey
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	names := config.GCP.SecretNames

	if config.Markets.Bitstamp.ClientID == "" {
		config.Markets.Bitstamp.ClientID = secretManager.GetSecretWithDefault(ctx, names.BitstampClientID, "")
	}
	if config.Markets.Bitstamp.Key == "" {
		config.Markets.Bitstamp.Key = secretManager.GetSecretWithDefault(ctx, names.BitstampKey, "")
	}
	if config.Markets.Bitstamp.Secret == "" {
		config.Markets.Bitstamp.Secret = secretManager.GetSecretWithDefault(ctx, names.BitstampSecret, "")
	}

	if config.Markets.Kraken.Key == "" {
		config.Markets.Kraken.Key = secretManager.GetSecretWithDefault(ctx, names.KrakenKey, "")
	}
	if config.Markets.Kraken.Secret == "" {
		config.Markets.Kraken.Secret = secretManager.GetSecretWithDefault(ctx, names.KrakenSecret, "")
	}

	if config.Markets.Coinbase.APIKeyName == "" {
		config.Markets.Coinbase.APIKeyName = secretManager.GetSecretWithDefault(ctx, names.CoinbaseAPIKeyName, "")
	}
	if config.Markets.Coinbase.PrivateKeyPEM == "" {
		config.Markets.Coinbase.PrivateKeyPEM = secretManager.GetSecretWithDefault(ctx, names.CoinbasePrivateKey, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
