package models

import (
	"github.com/shopspring/decimal"
)

// Quote is the best bid or best ask on one market, expressed in the shared
// reference currency (USD).
type Quote struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// IsZero reports whether the quote has not been populated by a refresh yet.
func (q Quote) IsZero() bool {
	return q.Price.IsZero() && q.Volume.IsZero()
}

// AccountSnapshot holds the balances and trade fee of one exchange account.
// Available amounts exclude funds reserved by open orders, so AvailXBT <=
// BalanceXBT and AvailUSD <= BalanceUSD. TradeFeePercent is in [0, 100).
type AccountSnapshot struct {
	BalanceXBT      decimal.Decimal
	BalanceUSD      decimal.Decimal
	AvailXBT        decimal.Decimal
	AvailUSD        decimal.Decimal
	TradeFeePercent decimal.Decimal
}
