// Package bitstamp implements the Bitstamp market adapter.
//
// API documentation: https://www.bitstamp.net/api/
package bitstamp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

const defaultBaseURL = "https://www.bitstamp.net/api"

type Config struct {
	ClientID string
	Key      string
	Secret   string
	// BaseURL overrides the production API endpoint, used in tests.
	BaseURL string
}

// Client is the Bitstamp adapter. The market trades XBT/USD directly, so no
// currency conversion is needed.
type Client struct {
	name       string
	baseURL    string
	clientID   string
	key        string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger

	account    accountInfo
	orderBook  orderBook
	openOrders []openOrder
	closedIDs  map[string]bool
}

type accountInfo struct {
	BTCBalance   decimal.Decimal `json:"btc_balance"`
	USDBalance   decimal.Decimal `json:"usd_balance"`
	BTCAvailable decimal.Decimal `json:"btc_available"`
	USDAvailable decimal.Decimal `json:"usd_available"`
	Fee          decimal.Decimal `json:"fee"`
}

type orderBook struct {
	Bids [][]decimal.Decimal `json:"bids"`
	Asks [][]decimal.Decimal `json:"asks"`
}

type openOrder struct {
	ID     json.Number     `json:"id"`
	Type   int             `json:"type"` // 0 buy, 1 sell
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

type userTransaction struct {
	OrderID json.Number `json:"order_id"`
}

type placeOrderResponse struct {
	ID json.Number `json:"id"`
}

// New connects to Bitstamp and returns a balance-populated adapter.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		name:       "bitstamp.net",
		baseURL:    baseURL,
		clientID:   cfg.ClientID,
		key:        cfg.Key,
		secret:     cfg.Secret,
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
	var info accountInfo
	if err := c.post(ctx, "balance/", nil, &info); err != nil {
		return err
	}
	c.account = info
	return nil
}

func (c *Client) RefreshOrderBook(ctx context.Context) error {
	var book orderBook
	if err := c.get(ctx, "order_book/", &book); err != nil {
		return err
	}
	c.orderBook = book
	return nil
}

func (c *Client) RefreshOrders(ctx context.Context) error {
	var open []openOrder
	if err := c.post(ctx, "open_orders/", nil, &open); err != nil {
		return err
	}

	// Only the last 100 closed orders are returned, newest first. Good enough
	// for tracking orders placed within the current cycle.
	var closed []userTransaction
	if err := c.post(ctx, "user_transactions/", nil, &closed); err != nil {
		return err
	}

	c.openOrders = open
	c.closedIDs = make(map[string]bool, len(closed))
	for _, tx := range closed {
		c.closedIDs[tx.OrderID.String()] = true
	}
	return nil
}

func (c *Client) CreateBidOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	return c.createOrder(ctx, "buy/", models.OrderTypeBid, volume, price)
}

func (c *Client) CreateAskOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	return c.createOrder(ctx, "sell/", models.OrderTypeAsk, volume, price)
}

func (c *Client) createOrder(ctx context.Context, path string, otype models.OrderType, volume, price decimal.Decimal) (*models.Order, error) {
	data := url.Values{
		"amount": {volume.StringFixed(8)},
		"price":  {price.StringFixed(5)},
	}
	var resp placeOrderResponse
	if err := c.post(ctx, path, data, &resp); err != nil {
		return nil, err
	}
	return &models.Order{
		ID:     resp.ID.String(),
		Type:   otype,
		Status: models.OrderStatusOpen,
	}, nil
}

func (c *Client) OrderStatus(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	if err := c.RefreshOrders(ctx); err != nil {
		return "", err
	}
	for _, open := range c.openOrders {
		if open.ID.String() == order.ID {
			return models.OrderStatusOpen, nil
		}
	}
	if c.closedIDs[order.ID] {
		return models.OrderStatusClosed, nil
	}
	// Neither open nor in recent closed history: it does not exist or was
	// cancelled out of band.
	return "", fmt.Errorf("%s: order %s: %w", c.name, order.ID, market.ErrOrderNotFound)
}

func (c *Client) CancelOrder(ctx context.Context, order *models.Order) error {
	data := url.Values{"id": {order.ID}}
	var ok bool
	if err := c.post(ctx, "cancel_order/", data, &ok); err != nil {
		return err
	}
	if !ok {
		return market.NewAdapterError(c.name, "cancel_order", fmt.Errorf("cancel of order %s failed", order.ID))
	}
	return nil
}

func (c *Client) TradeFee() decimal.Decimal   { return c.account.Fee }
func (c *Client) BalanceXBT() decimal.Decimal { return c.account.BTCBalance }
func (c *Client) BalanceUSD() decimal.Decimal { return c.account.USDBalance }
func (c *Client) AvailXBT() decimal.Decimal   { return c.account.BTCAvailable }
func (c *Client) AvailUSD() decimal.Decimal   { return c.account.USDAvailable }

func (c *Client) HighestBid() models.Quote {
	return topOfBook(c.orderBook.Bids)
}

func (c *Client) LowestAsk() models.Quote {
	return topOfBook(c.orderBook.Asks)
}

func topOfBook(levels [][]decimal.Decimal) models.Quote {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return models.Quote{}
	}
	return models.Quote{Price: levels[0][0], Volume: levels[0][1]}
}

func (c *Client) OpenOrders() []models.OpenOrder {
	orders := make([]models.OpenOrder, 0, len(c.openOrders))
	for _, o := range c.openOrders {
		otype := models.OrderTypeBid
		if o.Type == 1 {
			otype = models.OrderTypeAsk
		}
		orders = append(orders, models.OpenOrder{
			ID:     o.ID.String(),
			Type:   otype,
			Volume: o.Amount,
			Price:  o.Price,
		})
	}
	return orders
}

func (c *Client) sign(nonce string) string {
	msg := nonce + c.clientID + c.key
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, data url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	nonce := fmt.Sprintf("%d", time.Now().UnixMicro())

	payload := url.Values{}
	for k, v := range data {
		payload[k] = v
	}
	payload.Set("key", c.key)
	payload.Set("signature", c.sign(nonce))
	payload.Set("nonce", nonce)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path,
		strings.NewReader(payload.Encode()))
	if err != nil {
		return market.NewAdapterError(c.name, path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
	if resp.StatusCode != http.StatusOK {
		return market.NewAdapterError(c.name, op, apiError(body, resp.StatusCode))
	}

	// Some endpoints report errors with HTTP 200.
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && len(probe.Error) > 0 && string(probe.Error) != "null" {
		return market.NewAdapterError(c.name, op, fmt.Errorf("%s", probe.Error))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return market.NewAdapterError(c.name, op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func apiError(body []byte, status int) error {
	var errResp struct {
		Error struct {
			All []string `json:"__all__"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Error.All) > 0 {
		return fmt.Errorf("%s", strings.Join(errResp.Error.All, "\n"))
	}
	return fmt.Errorf("unexpected status %d", status)
}
