package arbiter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dankeder/xbtarbiter/pkg/market"
)

type failingMarket struct {
	*fakeMarket
}

func (m *failingMarket) RefreshOrderBook(ctx context.Context) error {
	m.bookRefreshes++
	return market.NewAdapterError(m.name, "order_book", errors.New("remote unavailable"))
}

func newTestLoop(markets []market.Adapter, cfg LoopConfig, out *bytes.Buffer) *Loop {
	logger := testLogger()
	executor := NewExecutor(ExecutorConfig{
		MinTradeVolume: d("0.01"),
		PollInterval:   time.Millisecond,
	}, NewTradeLog(&bytes.Buffer{}), nil, logger, out)
	scanner := NewScanner(markets, logger)
	if cfg.CycleDelay == 0 {
		cfg.CycleDelay = time.Millisecond
	}
	return NewLoop(scanner, executor, cfg, logger, out, strings.NewReader(""))
}

func TestLoopStopsOnCancellation(t *testing.T) {
	a, b := testPair()
	out := &bytes.Buffer{}
	loop := newTestLoop(marketList(a, b), LoopConfig{
		MinProfit:   d("0"),
		MaxVolume:   d("0.01"),
		AutoConfirm: true,
	}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancellation")
	}
}

func TestLoopSurvivesAdapterError(t *testing.T) {
	a, b := testPair()
	broken := &failingMarket{newFakeMarket("market-x")}
	out := &bytes.Buffer{}
	loop := newTestLoop([]market.Adapter{broken, a, b}, LoopConfig{
		MinProfit:   d("0"),
		MaxVolume:   d("0.01"),
		AutoConfirm: true,
	}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("adapter error must not stop the loop: %v", err)
	}
	if broken.bookRefreshes < 2 {
		t.Fatalf("expected several cycles despite adapter errors, got %d", broken.bookRefreshes)
	}
	if !strings.Contains(out.String(), "remote unavailable") {
		t.Fatal("adapter error should be reported to the operator")
	}
}

func TestLoopRecordsLastScan(t *testing.T) {
	a, b := testPair()
	out := &bytes.Buffer{}
	loop := newTestLoop(marketList(a, b), LoopConfig{
		MinProfit:   d("1000000"), // never trade, just scan
		MaxVolume:   d("0.01"),
		AutoConfirm: true,
	}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	opps, scannedAt := loop.Opportunities()
	if len(opps) == 0 {
		t.Fatal("expected last scan to be recorded")
	}
	if scannedAt.IsZero() {
		t.Fatal("expected scan timestamp to be recorded")
	}
	if !strings.Contains(out.String(), "No opportunities with profit greater than") {
		t.Fatalf("expected min-profit message, got: %q", out.String())
	}
}

func TestLoopReportsWhenNoOpportunities(t *testing.T) {
	a := newFakeMarket("market-a")
	a.bid = quote("190", "1")
	a.ask = quote("191", "1")
	b := newFakeMarket("market-b")
	b.bid = quote("190", "1")
	b.ask = quote("191", "1")

	out := &bytes.Buffer{}
	loop := newTestLoop(marketList(a, b), LoopConfig{
		MinProfit:   d("0"),
		MaxVolume:   d("0.01"),
		AutoConfirm: true,
	}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "No profitable opportunities exist on the markets.") {
		t.Fatalf("expected no-opportunity message, got: %q", out.String())
	}
}
