package market

import (
	"errors"
	"fmt"
)

// Order-tracking failures. Terminal for the affected order, recoverable for
// the trading loop.
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderCancelled = errors.New("order was cancelled")
	ErrOrderExpired   = errors.New("order expired")
)

// AdapterError is a remote/transport/auth failure of one exchange. The engine
// reports it and moves on to the next cycle.
type AdapterError struct {
	Market string
	Op     string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Market, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps a remote failure with the market and operation it
// happened on.
func NewAdapterError(market, op string, err error) *AdapterError {
	return &AdapterError{Market: market, Op: op, Err: err}
}

// IsAdapterError reports whether err is (or wraps) an adapter failure.
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}
