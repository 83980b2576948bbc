package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeEvent string

const (
	TradeEventOpen  TradeEvent = "open"
	TradeEventClose TradeEvent = "close"
)

// TradeLogEntry is one append-only audit record, written for every order
// open/close transition so trades can be reconciled externally.
type TradeLogEntry struct {
	Timestamp time.Time
	Market    string
	Event     TradeEvent
	OrderID   string
	OrderType OrderType
	Volume    decimal.Decimal
	Price     decimal.Decimal
}
