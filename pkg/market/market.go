package market

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dankeder/xbtarbiter/pkg/models"
)

// Adapter is the capability contract one connected exchange account exposes to
// the engine. All monetary values are in USD; an adapter for a market quoted
// in another currency applies its conversion rate consistently to quotes,
// balances and order placement prices.
//
// Cached state (balances, quotes, open orders) is mutated only by the explicit
// Refresh* calls, never implicitly, so callers control staleness. Remote
// failures surface as *AdapterError; the engine never inspects transport
// detail.
type Adapter interface {
	Name() string

	RefreshAccount(ctx context.Context) error
	RefreshOrderBook(ctx context.Context) error
	RefreshOrders(ctx context.Context) error

	// CreateBidOrder places a buy order, CreateAskOrder a sell order. Volume
	// is in XBT, price in USD.
	CreateBidOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error)
	CreateAskOrder(ctx context.Context, volume, price decimal.Decimal) (*models.Order, error)

	// OrderStatus reports whether the order is still open or has closed. If
	// the order is neither open nor in recent closed history the error wraps
	// ErrOrderNotFound, ErrOrderCancelled or ErrOrderExpired.
	OrderStatus(ctx context.Context, order *models.Order) (models.OrderStatus, error)
	CancelOrder(ctx context.Context, order *models.Order) error

	TradeFee() decimal.Decimal
	BalanceXBT() decimal.Decimal
	BalanceUSD() decimal.Decimal
	AvailXBT() decimal.Decimal
	AvailUSD() decimal.Decimal
	HighestBid() models.Quote
	LowestAsk() models.Quote
	OpenOrders() []models.OpenOrder
}
