// Package coinbase implements the Coinbase Advanced Trade market adapter.
//
// API documentation: https://docs.cdp.coinbase.com/advanced-trade/
package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/models"
)

const (
	defaultBaseURL = "https://api.coinbase.com"
	productID      = "BTC-USD"
)

type Config struct {
	// APIKeyName is the CDP key name, organizations/{org_id}/apiKeys/{key_id}.
	APIKeyName string
	// PrivateKeyPEM is the matching EC private key.
	PrivateKeyPEM string
	// BaseURL overrides the production API endpoint, used in tests.
	BaseURL string
}

type Client struct {
	name       string
	baseURL    string
	auth       *authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger

	account    accountState
	book       bookState
	openOrders []models.OpenOrder
}

type accountState struct {
	balanceBTC decimal.Decimal
	balanceUSD decimal.Decimal
	availBTC   decimal.Decimal
	availUSD   decimal.Decimal
	takerFee   decimal.Decimal
}

type bookState struct {
	bid models.Quote
	ask models.Quote
}

type balanceAmount struct {
	Value decimal.Decimal `json:"value"`
}

type bookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// New connects to Coinbase and returns a balance-populated adapter.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Client, error) {
	auth, err := newAuthenticator(cfg.APIKeyName, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, market.NewAdapterError("coinbase.com", "connect", err)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		name:       "coinbase.com",
		baseURL:    baseURL,
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		logger:     logger,
	}
	if err := c.RefreshAccount(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) RefreshAccount(ctx context.Context) error {
	var accounts struct {
		Accounts []struct {
			Currency         string        `json:"currency"`
			AvailableBalance balanceAmount `json:"available_balance"`
			Hold             balanceAmount `json:"hold"`
		} `json:"accounts"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v3/brokerage/accounts", nil, &accounts); err != nil {
		return err
	}

	var fees struct {
		FeeTier struct {
			TakerFeeRate decimal.Decimal `json:"taker_fee_rate"`
		} `json:"fee_tier"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v3/brokerage/transaction_summary", nil, &fees); err != nil {
		return err
	}

	state := accountState{
		// The API reports the fee as a fraction, the engine works in percent.
		takerFee: fees.FeeTier.TakerFeeRate.Mul(decimal.NewFromInt(100)),
	}
	for _, acct := range accounts.Accounts {
		avail := acct.AvailableBalance.Value
		total := avail.Add(acct.Hold.Value)
		switch acct.Currency {
		case "BTC":
			state.availBTC = avail
			state.balanceBTC = total
		case "USD":
			state.availUSD = avail
			state.balanceUSD = total
		}
	}
	c.account = state
	return nil
}

func (c *Client) RefreshOrderBook(ctx context.Context) error {
	var resp struct {
		PriceBook struct {
			Bids []bookLevel `json:"bids"`
			Asks []bookLevel `json:"asks"`
		} `json:"pricebook"`
	}
	path := "/api/v3/brokerage/product_book?" + url.Values{
		"product_id": {productID},
		"limit":      {"1"},
	}.Encode()
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	var book bookState
	if len(resp.PriceBook.Bids) > 0 {
		book.bid = models.Quote{Price: resp.PriceBook.Bids[0].Price, Volume: resp.PriceBook.Bids[0].Size}
	}
	if len(resp.PriceBook.Asks) > 0 {
		book.ask = models.Quote{Price: resp.PriceBook.Asks[0].Price, Volume: resp.PriceBook.Asks[0].Size}
	}
	c.book = book
	return nil
}

func (c *Client) RefreshOrders(ctx context.Context) error {
	var resp struct {
		Orders []struct {
			OrderID            string `json:"order_id"`
			Side               string `json:"side"`
			OrderConfiguration struct {
				LimitLimitGTC struct {
					BaseSize   decimal.Decimal `json:"base_size"`
					LimitPrice decimal.Decimal `json:"limit_price"`
				} `json:"limit_limit_gtc"`
			} `json:"order_configuration"`
		} `json:"orders"`
	}
	path := "/api/v3/brokerage/orders/historical/batch?" + url.Values{
		"product_id":   {productID},
		"order_status": {"OPEN"},
	}.Encode()
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	orders := make([]models.OpenOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		otype := models.OrderTypeBid
		if o.Side == "SELL" {
			otype = models.OrderTypeAsk
		}
		orders = append(orders, models.OpenOrder{
			ID:     o.OrderID,
			Type:   otype,
			Volume: o.OrderConfiguration.LimitLimitGTC.BaseSize,
			Price:  o.OrderConfiguration.LimitLimitGTC.LimitPrice,
		})
	}
	c.openOrders = orders
	return nil
}

func (c *Client) CreateBidOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	return c.createOrder(ctx, "BUY", models.OrderTypeBid, volume, price)
}

func (c *Client) CreateAskOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	return c.createOrder(ctx, "SELL", models.OrderTypeAsk, volume, price)
}

func (c *Client) createOrder(ctx context.Context, side string, otype models.OrderType, volume, price decimal.Decimal) (*models.Order, error) {
	payload := map[string]interface{}{
		"client_order_id": fmt.Sprintf("xbtarbiter-%d", time.Now().UnixNano()),
		"product_id":      productID,
		"side":            side,
		"order_configuration": map[string]interface{}{
			"limit_limit_gtc": map[string]string{
				"base_size":   volume.StringFixed(8),
				"limit_price": price.StringFixed(2),
			},
		},
	}
	var resp struct {
		Success         bool `json:"success"`
		SuccessResponse struct {
			OrderID string `json:"order_id"`
		} `json:"success_response"`
		ErrorResponse struct {
			Message string `json:"message"`
		} `json:"error_response"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/v3/brokerage/orders", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, market.NewAdapterError(c.name, "create_order",
			fmt.Errorf("order rejected: %s", resp.ErrorResponse.Message))
	}
	return &models.Order{
		ID:     resp.SuccessResponse.OrderID,
		Type:   otype,
		Status: models.OrderStatusOpen,
	}, nil
}

func (c *Client) OrderStatus(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	var resp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	path := "/api/v3/brokerage/orders/historical/" + order.ID
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}

	switch resp.Order.Status {
	case "OPEN", "PENDING", "QUEUED":
		return models.OrderStatusOpen, nil
	case "FILLED":
		return models.OrderStatusClosed, nil
	case "CANCELLED":
		return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderCancelled)
	case "EXPIRED":
		return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderExpired)
	case "", "UNKNOWN_ORDER_STATUS":
		return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderNotFound)
	default:
		return "", market.NewAdapterError(c.name, "order_status",
			fmt.Errorf("unexpected order status %q", resp.Order.Status))
	}
}

func (c *Client) CancelOrder(ctx context.Context, order *models.Order) error {
	payload := map[string]interface{}{
		"order_ids": []string{order.ID},
	}
	var resp struct {
		Results []struct {
			Success bool `json:"success"`
		} `json:"results"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", payload, &resp); err != nil {
		return err
	}
	if len(resp.Results) == 0 || !resp.Results[0].Success {
		return market.NewAdapterError(c.name, "cancel_order",
			fmt.Errorf("cancel of order %s failed", order.ID))
	}
	return nil
}

func (c *Client) TradeFee() decimal.Decimal   { return c.account.takerFee }
func (c *Client) BalanceXBT() decimal.Decimal { return c.account.balanceBTC }
func (c *Client) BalanceUSD() decimal.Decimal { return c.account.balanceUSD }
func (c *Client) AvailXBT() decimal.Decimal   { return c.account.availBTC }
func (c *Client) AvailUSD() decimal.Decimal   { return c.account.availUSD }
func (c *Client) HighestBid() models.Quote    { return c.book.bid }
func (c *Client) LowestAsk() models.Quote     { return c.book.ask }

func (c *Client) OpenOrders() []models.OpenOrder {
	return c.openOrders
}

func (c *Client) request(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return market.NewAdapterError(c.name, path, err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return market.NewAdapterError(c.name, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.auth.addAuthHeaders(req, method, req.URL.Path); err != nil {
		return market.NewAdapterError(c.name, path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return market.NewAdapterError(c.name, path,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return market.NewAdapterError(c.name, path, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
