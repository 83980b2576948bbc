package arbiter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// LoopConfig carries the operator-supplied trading knobs.
type LoopConfig struct {
	// MinProfit is the smallest profit (USD) a trade must clear.
	MinProfit decimal.Decimal
	// MaxVolume is the per-trade volume cap (XBT).
	MaxVolume decimal.Decimal
	// AutoConfirm trades without prompting and waits CycleDelay between
	// cycles; otherwise the loop blocks on operator input between cycles.
	AutoConfirm bool
	// CycleDelay is the inter-cycle wait in auto-confirm mode.
	CycleDelay time.Duration
}

// Loop repeatedly runs scan -> select -> confirm -> execute until the context
// is cancelled. Recoverable adapter failures on any one market are reported
// and the loop proceeds to the next cycle; cancellation is honored between
// cycles and between polling passes, never mid-placement.
type Loop struct {
	scanner  *Scanner
	executor *Executor
	cfg      LoopConfig
	logger   *logrus.Logger
	out      io.Writer
	in       *bufio.Reader

	mu         sync.RWMutex
	lastScan   []Opportunity
	lastScanAt time.Time
}

func NewLoop(scanner *Scanner, executor *Executor, cfg LoopConfig, logger *logrus.Logger, out io.Writer, in io.Reader) *Loop {
	if cfg.CycleDelay <= 0 {
		cfg.CycleDelay = 10 * time.Second
	}
	return &Loop{
		scanner:  scanner,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		out:      out,
		in:       bufio.NewReader(in),
	}
}

// Run drives trading cycles until ctx is cancelled. It returns nil on clean
// cancellation.
func (l *Loop) Run(ctx context.Context) error {
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(l.out, "%s #%d\n--\n", time.Now().Format(tradeLogTimeFormat), n)

		if err := l.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			// Recoverable: report and keep trading.
			l.logger.WithError(err).Error("Trading cycle failed")
			fmt.Fprintf(l.out, "%v\n\n", err)
		}

		if l.cfg.AutoConfirm {
			if err := waitFor(ctx, l.cfg.CycleDelay); err != nil {
				return nil
			}
		} else {
			if err := l.waitEnter(ctx); err != nil {
				return nil
			}
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) error {
	candidates, err := l.scanner.Scan(ctx, l.cfg.MaxVolume)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.lastScan = candidates
	l.lastScanAt = time.Now()
	l.mu.Unlock()

	if len(candidates) == 0 {
		fmt.Fprintf(l.out, "No profitable opportunities exist on the markets.\n\n")
		return nil
	}

	best := SelectBest(candidates, l.cfg.MinProfit)
	if best == nil {
		fmt.Fprintf(l.out, "No opportunities with profit greater than %s USD were found\n\n",
			l.cfg.MinProfit.StringFixed(5))
		return nil
	}

	outcome, err := l.executor.Execute(ctx, best)
	if err != nil {
		return err
	}
	l.logger.WithFields(logrus.Fields{
		"outcome":    outcome,
		"bid_market": best.BidMarket.Name(),
		"ask_market": best.AskMarket.Name(),
		"volume":     best.Volume.StringFixed(8),
		"profit":     best.Profit.StringFixed(5),
	}).Info("Trading cycle finished")
	return nil
}

// waitEnter blocks until the operator presses ENTER or ctx is cancelled.
func (l *Loop) waitEnter(ctx context.Context) error {
	fmt.Fprintf(l.out, "Press ENTER to continue.\n")
	done := make(chan error, 1)
	go func() {
		_, err := l.in.ReadString('\n')
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil && err != io.EOF {
			return err
		}
		return nil
	}
}

// Opportunities returns the candidates of the most recent scan together with
// the time it happened. Used by the status API.
func (l *Loop) Opportunities() ([]Opportunity, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	opps := make([]Opportunity, len(l.lastScan))
	copy(opps, l.lastScan)
	return opps, l.lastScanAt
}

// Scanner returns the loop's scanner. Used by the status API to reach the
// traded markets.
func (l *Loop) Scanner() *Scanner {
	return l.scanner
}
