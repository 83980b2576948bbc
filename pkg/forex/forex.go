// Package forex provides the external reference-rate used to normalize
// EUR-quoted markets to USD.
package forex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultEndpoint = "https://api.frankfurter.app/latest?from=EUR&to=USD"

// Provider fetches the current EUR/USD conversion rate. A failed fetch aborts
// startup of any adapter that needs the rate.
type Provider struct {
	endpoint   string
	httpClient *http.Client
}

func NewProvider(endpoint string) *Provider {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Provider{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// EURUSD returns the current EUR/USD exchange rate.
func (p *Provider) EURUSD(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building rate request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching EUR/USD rate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading rate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetching EUR/USD rate: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("decoding rate response: %w", err)
	}

	rate, ok := payload.Rates["USD"]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("no usable USD rate in response")
	}
	return rate, nil
}
