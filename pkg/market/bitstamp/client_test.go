package bitstamp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/models"
)

func testServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}
}

func newTestClient(t *testing.T, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()
	if _, ok := handlers["/balance/"]; !ok {
		handlers["/balance/"] = respond(`{"btc_balance": "1.50000000", "usd_balance": "250.12345",
			"btc_available": "1.00000000", "usd_available": "200.00000", "fee": "0.25"}`)
	}
	server := testServer(t, handlers)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	client, err := New(context.Background(), Config{
		ClientID: "1234",
		Key:      "test-key",
		Secret:   "test-secret",
		BaseURL:  server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return client
}

func TestConnectPopulatesBalances(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{})

	if got := client.BalanceXBT(); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("balance_xbt = %s, want 1.5", got)
	}
	if got := client.BalanceUSD(); !got.Equal(decimal.RequireFromString("250.12345")) {
		t.Fatalf("balance_usd = %s, want 250.12345", got)
	}
	if got := client.AvailXBT(); !got.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("avail_xbt = %s, want 1", got)
	}
	if got := client.TradeFee(); !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("trade_fee = %s, want 0.25", got)
	}
}

func TestRefreshOrderBook(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/order_book/": respond(`{"bids": [["595.21", "0.75"], ["595.00", "2.0"]],
			"asks": [["596.43", "1.25"], ["597.00", "3.0"]]}`),
	})

	if err := client.RefreshOrderBook(context.Background()); err != nil {
		t.Fatalf("refresh order book: %v", err)
	}
	bid := client.HighestBid()
	if !bid.Price.Equal(decimal.RequireFromString("595.21")) || !bid.Volume.Equal(decimal.RequireFromString("0.75")) {
		t.Fatalf("highest bid = %+v", bid)
	}
	ask := client.LowestAsk()
	if !ask.Price.Equal(decimal.RequireFromString("596.43")) || !ask.Volume.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("lowest ask = %+v", ask)
	}
}

func TestCreateBidOrder(t *testing.T) {
	var gotAmount, gotPrice string
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/buy/": func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			gotAmount = r.PostFormValue("amount")
			gotPrice = r.PostFormValue("price")
			if r.PostFormValue("key") == "" || r.PostFormValue("signature") == "" || r.PostFormValue("nonce") == "" {
				t.Fatal("missing auth fields in request")
			}
			fmt.Fprint(w, `{"id": 42517}`)
		},
	})

	order, err := client.CreateBidOrder(context.Background(),
		decimal.RequireFromString("0.01"), decimal.RequireFromString("595.21"))
	if err != nil {
		t.Fatalf("create bid order: %v", err)
	}
	if order.ID != "42517" || order.Type != models.OrderTypeBid || order.Status != models.OrderStatusOpen {
		t.Fatalf("order = %+v", order)
	}
	if gotAmount != "0.01000000" {
		t.Fatalf("amount = %q, want 0.01000000", gotAmount)
	}
	if gotPrice != "595.21000" {
		t.Fatalf("price = %q, want 595.21000", gotPrice)
	}
}

func TestOrderStatus(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/open_orders/":       respond(`[{"id": 100, "type": 0, "price": "595.21", "amount": "0.01"}]`),
		"/user_transactions/": respond(`[{"order_id": 200}]`),
	})

	status, err := client.OrderStatus(context.Background(), &models.Order{ID: "100", Type: models.OrderTypeBid})
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if status != models.OrderStatusOpen {
		t.Fatalf("status = %s, want open", status)
	}

	status, err = client.OrderStatus(context.Background(), &models.Order{ID: "200", Type: models.OrderTypeBid})
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if status != models.OrderStatusClosed {
		t.Fatalf("status = %s, want closed", status)
	}

	_, err = client.OrderStatus(context.Background(), &models.Order{ID: "300", Type: models.OrderTypeBid})
	if !errors.Is(err, market.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestRemoteErrorIsAdapterError(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/order_book/": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"error": {"__all__": ["backend unavailable"]}}`)
		},
	})

	err := client.RefreshOrderBook(context.Background())
	if !market.IsAdapterError(err) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
}

func TestOpenOrdersListing(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/open_orders/": respond(`[{"id": 100, "type": 0, "price": "595.21", "amount": "0.01"},
			{"id": 101, "type": 1, "price": "600.00", "amount": "0.02"}]`),
		"/user_transactions/": respond(`[]`),
	})

	if err := client.RefreshOrders(context.Background()); err != nil {
		t.Fatalf("refresh orders: %v", err)
	}
	orders := client.OpenOrders()
	if len(orders) != 2 {
		t.Fatalf("got %d open orders, want 2", len(orders))
	}
	if orders[0].Type != models.OrderTypeBid || orders[1].Type != models.OrderTypeAsk {
		t.Fatalf("order types = %s, %s", orders[0].Type, orders[1].Type)
	}
}
