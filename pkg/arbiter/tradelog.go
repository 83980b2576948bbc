package arbiter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dankeder/xbtarbiter/pkg/models"
)

const tradeLogTimeFormat = "2006-01-02 15:04:05"

// TradeLog is the append-only, line-oriented audit sink. Every order gets one
// "open" line the instant it is accepted by the exchange and one "close" line
// when it is observed closed, which is enough for external reconciliation.
type TradeLog struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewTradeLog(w io.Writer) *TradeLog {
	return &TradeLog{
		w:   w,
		now: time.Now,
	}
}

// OpenTradeLog opens (or creates) the log file at path in append mode. A
// leading "~/" is expanded to the user's home directory.
func OpenTradeLog(path string) (*TradeLog, *os.File, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("expanding trade log path: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating trade log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening trade log: %w", err)
	}
	return NewTradeLog(f), f, nil
}

// LogOpen records that the order has been accepted by the exchange.
func (l *TradeLog) LogOpen(marketName string, order *models.Order, volume, price decimal.Decimal) error {
	return l.append(models.TradeLogEntry{
		Timestamp: l.now(),
		Market:    marketName,
		Event:     models.TradeEventOpen,
		OrderID:   order.ID,
		OrderType: order.Type,
		Volume:    volume,
		Price:     price,
	})
}

// LogClose records that the order has been observed closed.
func (l *TradeLog) LogClose(marketName string, order *models.Order) error {
	return l.append(models.TradeLogEntry{
		Timestamp: l.now(),
		Market:    marketName,
		Event:     models.TradeEventClose,
		OrderID:   order.ID,
		OrderType: order.Type,
	})
}

func (l *TradeLog) append(e models.TradeLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, formatEntry(e)); err != nil {
		return fmt.Errorf("writing trade log: %w", err)
	}
	return nil
}

func formatEntry(e models.TradeLogEntry) string {
	side := "BUY"
	if e.OrderType == models.OrderTypeAsk {
		side = "SELL"
	}
	ts := e.Timestamp.Format(tradeLogTimeFormat)
	switch e.Event {
	case models.TradeEventOpen:
		return fmt.Sprintf("%s  %s open %s order %s: VOLUME %s XBT  PRICE %s USD\n",
			ts, e.Market, side, e.OrderID, e.Volume.StringFixed(8), e.Price.StringFixed(5))
	default:
		return fmt.Sprintf("%s  %s close %s order %s\n", ts, e.Market, side, e.OrderID)
	}
}
