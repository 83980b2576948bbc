package models

import (
	"github.com/shopspring/decimal"
)

// Order is an order accepted by an exchange. Identity is the exchange-assigned
// ID; an Order exists only after a successful placement call and is immutable
// except for its status.
type Order struct {
	ID     string
	Type   OrderType
	Status OrderStatus
}

type OrderType string

const (
	// OrderTypeBid is a "I want to buy" order.
	OrderTypeBid OrderType = "bid"
	// OrderTypeAsk is a "I want to sell" order.
	OrderTypeAsk OrderType = "ask"
)

type OrderStatus string

const (
	OrderStatusOpen   OrderStatus = "open"
	OrderStatusClosed OrderStatus = "closed"
)

// OpenOrder is an entry of a market's open-orders listing.
type OpenOrder struct {
	ID     string
	Type   OrderType
	Volume decimal.Decimal
	Price  decimal.Decimal
}
