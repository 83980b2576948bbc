package arbiter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(discard{})
	return logger
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// statusResult is one scripted answer of a fake market's OrderStatus call.
type statusResult struct {
	status models.OrderStatus
	err    error
}

type placedOrder struct {
	order  *models.Order
	volume decimal.Decimal
	price  decimal.Decimal
}

// fakeMarket is an in-memory Adapter used by the engine tests.
type fakeMarket struct {
	name    string
	account models.AccountSnapshot
	bid     models.Quote
	ask     models.Quote

	bookRefreshes int
	nextOrderID   int

	placed        []placedOrder
	failCreateBid error
	failCreateAsk error

	// statuses scripts OrderStatus answers per order ID; the last entry
	// repeats once the script is exhausted.
	statuses  map[string][]statusResult
	cancelled []string
}

func newFakeMarket(name string) *fakeMarket {
	return &fakeMarket{
		name: name,
		account: models.AccountSnapshot{
			BalanceXBT: d("1000"),
			BalanceUSD: d("1000000"),
			AvailXBT:   d("1000"),
			AvailUSD:   d("1000000"),
		},
		statuses: make(map[string][]statusResult),
	}
}

func (m *fakeMarket) Name() string { return m.name }

func (m *fakeMarket) RefreshAccount(ctx context.Context) error { return nil }

func (m *fakeMarket) RefreshOrderBook(ctx context.Context) error {
	m.bookRefreshes++
	return nil
}

func (m *fakeMarket) RefreshOrders(ctx context.Context) error { return nil }

func (m *fakeMarket) CreateBidOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	if m.failCreateBid != nil {
		return nil, m.failCreateBid
	}
	return m.record(models.OrderTypeBid, volume, price), nil
}

func (m *fakeMarket) CreateAskOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error) {
	if m.failCreateAsk != nil {
		return nil, m.failCreateAsk
	}
	return m.record(models.OrderTypeAsk, volume, price), nil
}

func (m *fakeMarket) record(otype models.OrderType, volume, price decimal.Decimal) *models.Order {
	m.nextOrderID++
	order := &models.Order{
		ID:     fmt.Sprintf("%s-%d", m.name, m.nextOrderID),
		Type:   otype,
		Status: models.OrderStatusOpen,
	}
	m.placed = append(m.placed, placedOrder{order: order, volume: volume, price: price})
	return order
}

func (m *fakeMarket) OrderStatus(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	script := m.statuses[order.ID]
	if len(script) == 0 {
		return models.OrderStatusClosed, nil
	}
	result := script[0]
	if len(script) > 1 {
		m.statuses[order.ID] = script[1:]
	}
	return result.status, result.err
}

func (m *fakeMarket) CancelOrder(ctx context.Context, order *models.Order) error {
	m.cancelled = append(m.cancelled, order.ID)
	return nil
}

func (m *fakeMarket) TradeFee() decimal.Decimal   { return m.account.TradeFeePercent }
func (m *fakeMarket) BalanceXBT() decimal.Decimal { return m.account.BalanceXBT }
func (m *fakeMarket) BalanceUSD() decimal.Decimal { return m.account.BalanceUSD }
func (m *fakeMarket) AvailXBT() decimal.Decimal   { return m.account.AvailXBT }
func (m *fakeMarket) AvailUSD() decimal.Decimal   { return m.account.AvailUSD }
func (m *fakeMarket) HighestBid() models.Quote    { return m.bid }
func (m *fakeMarket) LowestAsk() models.Quote     { return m.ask }

func (m *fakeMarket) OpenOrders() []models.OpenOrder { return nil }

var _ market.Adapter = (*fakeMarket)(nil)

func marketList(markets ...*fakeMarket) []market.Adapter {
	list := make([]market.Adapter, len(markets))
	for i, m := range markets {
		list[i] = m
	}
	return list
}
