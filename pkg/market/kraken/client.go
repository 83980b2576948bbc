// Package kraken implements the Kraken market adapter.
//
// Kraken quotes XBT/EUR, while the engine works in USD. A EUR/USD conversion
// rate supplied at connect time is applied consistently: quotes and balances
// are converted to USD, order placement prices back to EUR.
//
// API documentation: https://www.kraken.com/help/api
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/models"
)

const (
	defaultBaseURL = "https://api.kraken.com"
	apiVersion     = "0"
	assetPair      = "XXBTZEUR"
)

type Config struct {
	Key    string
	Secret string
	// EURUSDRate is the conversion rate applied to all EUR amounts.
	EURUSDRate decimal.Decimal
	// BaseURL overrides the production API endpoint, used in tests.
	BaseURL string
}

type Client struct {
	name       string
	baseURL    string
	key        string
	secret     string
	rate       decimal.Decimal
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger

	balances     map[string]decimal.Decimal
	tradeFee     decimal.Decimal
	orderBook    depth
	openOrders   map[string]orderInfo
	closedOrders map[string]orderInfo
}

type depth struct {
	Bids [][]json.Number `json:"bids"`
	Asks [][]json.Number `json:"asks"`
}

type orderInfo struct {
	Status string          `json:"status"`
	Volume decimal.Decimal `json:"vol"`
	Descr  struct {
		Type  string          `json:"type"`
		Price decimal.Decimal `json:"price"`
	} `json:"descr"`
}

// New connects to Kraken and returns a balance-populated adapter. The
// conversion rate must be positive.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Client, error) {
	if !cfg.EURUSDRate.IsPositive() {
		return nil, market.NewAdapterError("kraken.com [EUR]", "connect",
			fmt.Errorf("invalid EUR/USD rate %s", cfg.EURUSDRate))
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		name:       "kraken.com [EUR]",
		baseURL:    baseURL,
		key:        cfg.Key,
		secret:     cfg.Secret,
		rate:       cfg.EURUSDRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		logger:     logger,
	}
	if err := c.RefreshAccount(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) RefreshAccount(ctx context.Context) error {
	var balances map[string]decimal.Decimal
	if err := c.post(ctx, "private/Balance", nil, &balances); err != nil {
		return err
	}

	var tradeVolume struct {
		Fees map[string]struct {
			Fee decimal.Decimal `json:"fee"`
		} `json:"fees"`
	}
	if err := c.post(ctx, "private/TradeVolume", url.Values{"pair": {assetPair}}, &tradeVolume); err != nil {
		return err
	}

	c.balances = balances
	if pairFees, ok := tradeVolume.Fees[assetPair]; ok {
		c.tradeFee = pairFees.Fee
	}
	return nil
}

func (c *Client) RefreshOrderBook(ctx context.Context) error {
	var result map[string]depth
	if err := c.get(ctx, "public/Depth", url.Values{"pair": {assetPair}, "count": {"1"}}, &result); err != nil {
		return err
	}
	c.orderBook = result[assetPair]
	return nil
}

func (c *Client) RefreshOrders(ctx context.Context) error {
	var open struct {
		Open map[string]orderInfo `json:"open"`
	}
	if err := c.post(ctx, "private/OpenOrders", nil, &open); err != nil {
		return err
	}

	var closed struct {
		Closed map[string]orderInfo `json:"closed"`
	}
	if err := c.post(ctx, "private/ClosedOrders", nil, &closed); err != nil {
		return err
	}

	c.openOrders = open.Open
	c.closedOrders = closed.Closed
	return nil
}

func (c *Client) CreateBidOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	return c.createOrder(ctx, "buy", models.OrderTypeBid, volume, price)
}

func (c *Client) CreateAskOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	return c.createOrder(ctx, "sell", models.OrderTypeAsk, volume, price)
}

func (c *Client) createOrder(ctx context.Context, side string, otype models.OrderType, volume, price decimal.Decimal) (*models.Order, error) {
	priceEUR := price.Div(c.rate)
	data := url.Values{
		"pair":      {assetPair},
		"type":      {side},
		"ordertype": {"limit"},
		"price":     {priceEUR.StringFixed(5)},
		"volume":    {volume.StringFixed(8)},
	}
	var resp struct {
		TxID []string `json:"txid"`
	}
	if err := c.post(ctx, "private/AddOrder", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.TxID) == 0 {
		return nil, market.NewAdapterError(c.name, "private/AddOrder", fmt.Errorf("no transaction id in response"))
	}
	return &models.Order{
		ID:     resp.TxID[0],
		Type:   otype,
		Status: models.OrderStatusOpen,
	}, nil
}

func (c *Client) OrderStatus(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	if err := c.RefreshOrders(ctx); err != nil {
		return "", err
	}

	if info, ok := c.openOrders[order.ID]; ok {
		switch info.Status {
		case "open", "pending":
			return models.OrderStatusOpen, nil
		case "canceled", "cancelled":
			return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderCancelled)
		case "expired":
			return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderExpired)
		default:
			return "", market.NewAdapterError(c.name, "order_status",
				fmt.Errorf("unexpected order status %q", info.Status))
		}
	}

	if info, ok := c.closedOrders[order.ID]; ok {
		switch info.Status {
		case "closed":
			return models.OrderStatusClosed, nil
		case "canceled", "cancelled":
			return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderCancelled)
		case "expired":
			return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderExpired)
		default:
			return "", market.NewAdapterError(c.name, "order_status",
				fmt.Errorf("unexpected order status %q", info.Status))
		}
	}

	return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderNotFound)
}

func (c *Client) CancelOrder(ctx context.Context, order *models.Order) error {
	var resp struct {
		Count int `json:"count"`
	}
	return c.post(ctx, "private/CancelOrder", url.Values{"txid": {order.ID}}, &resp)
}

func (c *Client) TradeFee() decimal.Decimal { return c.tradeFee }

func (c *Client) BalanceXBT() decimal.Decimal {
	return c.balances["XXBT"]
}

func (c *Client) BalanceUSD() decimal.Decimal {
	return c.balances["ZEUR"].Mul(c.rate)
}

// Kraken does not report funds reserved by open orders separately, so the
// full balance is treated as available.
func (c *Client) AvailXBT() decimal.Decimal { return c.BalanceXBT() }
func (c *Client) AvailUSD() decimal.Decimal { return c.BalanceUSD() }

func (c *Client) HighestBid() models.Quote {
	return c.topOfBook(c.orderBook.Bids)
}

func (c *Client) LowestAsk() models.Quote {
	return c.topOfBook(c.orderBook.Asks)
}

func (c *Client) topOfBook(levels [][]json.Number) models.Quote {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return models.Quote{}
	}
	priceEUR, err := decimal.NewFromString(levels[0][0].String())
	if err != nil {
		return models.Quote{}
	}
	volume, err := decimal.NewFromString(levels[0][1].String())
	if err != nil {
		return models.Quote{}
	}
	return models.Quote{Price: priceEUR.Mul(c.rate), Volume: volume}
}

func (c *Client) OpenOrders() []models.OpenOrder {
	orders := make([]models.OpenOrder, 0, len(c.openOrders))
	for id, info := range c.openOrders {
		otype := models.OrderTypeBid
		if info.Descr.Type == "sell" {
			otype = models.OrderTypeAsk
		}
		orders = append(orders, models.OpenOrder{
			ID:     id,
			Type:   otype,
			Volume: info.Volume,
			Price:  info.Descr.Price.Mul(c.rate),
		})
	}
	return orders
}

// sign creates the API-Sign header: HMAC-SHA512 of the URI path concatenated
// with SHA256(nonce + POST data), keyed with the base64-decoded secret.
func (c *Client) sign(path, nonce, encodedData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.secret)
	if err != nil {
		return "", fmt.Errorf("decoding API secret: %w", err)
	}
	sha := sha256.Sum256([]byte(nonce + encodedData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte("/" + apiVersion + "/" + path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, apiVersion, path)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, data url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	nonce := fmt.Sprintf("%d", time.Now().UnixMilli())

	payload := url.Values{}
	for k, v := range data {
		payload[k] = v
	}
	payload.Set("nonce", nonce)
	encoded := payload.Encode()

	signature, err := c.sign(path, nonce, encoded)
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, apiVersion, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.key)
	req.Header.Set("API-Sign", signature)
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.NewAdapterError(c.name, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.NewAdapterError(c.name, op, err)
	}

	var envelope struct {
		Error  []string        `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return market.NewAdapterError(c.name, op, fmt.Errorf("decoding response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || len(envelope.Error) > 0 {
		return market.NewAdapterError(c.name, op, fmt.Errorf("%s", strings.Join(envelope.Error, "\n")))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return market.NewAdapterError(c.name, op, fmt.Errorf("decoding result: %w", err))
		}
	}
	return nil
}
