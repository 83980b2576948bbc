package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dankeder/xbtarbiter/pkg/models"
)

const defaultStreamURL = "wss://ws.bitstamp.net"

// BookUpdate carries the top of the live order book.
type BookUpdate struct {
	HighestBid models.Quote
	LowestAsk  models.Quote
	Time       time.Time
}

// BookHandler receives live order book updates.
type BookHandler func(update BookUpdate)

// Stream is a live order-book feed over the Bitstamp websocket API, used by
// the prices --watch command. It is independent of the trading engine, which
// only ever reads explicitly refreshed snapshots.
type Stream struct {
	url       string
	conn      *websocket.Conn
	handler   BookHandler
	logger    *logrus.Logger
	mu        sync.Mutex
	connected bool
}

type wsEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsSubscribe struct {
	Event string `json:"event"`
	Data  struct {
		Channel string `json:"channel"`
	} `json:"data"`
}

func NewStream(url string, handler BookHandler, logger *logrus.Logger) *Stream {
	if url == "" {
		url = defaultStreamURL
	}
	return &Stream{
		url:     url,
		handler: handler,
		logger:  logger,
	}
}

// Connect dials the feed, subscribes to the BTC/USD order book channel and
// starts the read loop. Updates are delivered on the handler until ctx is
// cancelled or the connection drops.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("connecting to websocket: %w", err)
	}

	sub := wsSubscribe{Event: "bts:subscribe"}
	sub.Data.Channel = "order_book_btcusd"
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribing to order book: %w", err)
	}

	s.conn = conn
	s.connected = true

	go s.readLoop(ctx)
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.conn.Close()
}

func (s *Stream) readLoop(ctx context.Context) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var event wsEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Warn("Websocket read failed, feed stopped")
			}
			return
		}
		if event.Event != "data" {
			continue
		}

		var book struct {
			Bids [][]decimal.Decimal `json:"bids"`
			Asks [][]decimal.Decimal `json:"asks"`
		}
		if err := json.Unmarshal(event.Data, &book); err != nil {
			s.logger.WithError(err).Debug("Skipping malformed book update")
			continue
		}
		s.handler(BookUpdate{
			HighestBid: topOfBook(book.Bids),
			LowestAsk:  topOfBook(book.Asks),
			Time:       time.Now(),
		})
	}
}
