package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
)

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Logger
}

func NewGCPSecretManager(ctx context.Context, projectID string, logger *logrus.Logger) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretName)

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	}

	result, err := g.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}

	return string(result.Payload.Data), nil
}

func (g *GCPSecretManager) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	value, err := g.GetSecret(ctx, secretName)
	if err != nil {
		g.logger.WithError(err).WithField("secret", secretName).Debug("Failed to get secret, using default")
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// SecretNames maps exchange credentials to their Secret Manager entries.
type SecretNames struct {
	BitstampClientID string `mapstructure:"bitstamp_client_id"`
	BitstampKey      string `mapstructure:"bitstamp_key"`
	BitstampSecret   string `mapstructure:"bitstamp_secret"`

	KrakenKey    string `mapstructure:"kraken_key"`
	KrakenSecret string `mapstructure:"kraken_secret"`

	CoinbaseAPIKeyName string `mapstructure:"coinbase_api_key_name"`
	CoinbasePrivateKey string `mapstructure:"coinbase_private_key"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		BitstampClientID:   "xbtarbiter-bitstamp-client-id",
		BitstampKey:        "xbtarbiter-bitstamp-key",
		BitstampSecret:     "xbtarbiter-bitstamp-secret",
		KrakenKey:          "xbtarbiter-kraken-key",
		KrakenSecret:       "xbtarbiter-kraken-secret",
		CoinbaseAPIKeyName: "xbtarbiter-coinbase-api-key-name",
		CoinbasePrivateKey: "xbtarbiter-coinbase-private-key",
	}
}
