package arbiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/models"
)

// Outcome summarizes how one execution attempt ended.
type Outcome string

const (
	// OutcomeTraded means both orders were placed and driven to a terminal
	// state.
	OutcomeTraded Outcome = "traded"
	// OutcomeDryRun means the trade was approved but not placed.
	OutcomeDryRun Outcome = "dry-run"
	// OutcomeDeclined means the operator refused the confirmation prompt.
	OutcomeDeclined Outcome = "declined"
	// OutcomeVolumeTooSmall means the tradable volume was positive but below
	// the exchange minimum.
	OutcomeVolumeTooSmall Outcome = "volume-too-small"
	// OutcomeInsufficientFunds means no volume was tradable at all.
	OutcomeInsufficientFunds Outcome = "insufficient-funds"
)

// orderState is the lifecycle of one placed order. placed is the only
// non-terminal state; the error states are terminal for the order but
// recoverable for the trading loop.
type orderState string

const (
	orderStatePlaced    orderState = "placed"
	orderStateClosed    orderState = "closed"
	orderStateCancelled orderState = "cancelled"
	orderStateExpired   orderState = "expired"
	orderStateNotFound  orderState = "not-found"
)

// trackedOrder pairs a placed order with the market that owns it.
type trackedOrder struct {
	market market.Adapter
	order  *models.Order
	label  string
	state  orderState
	err    error
}

func (t *trackedOrder) inFlight() bool {
	return t.state == orderStatePlaced
}

// ConfirmFunc asks the operator whether to proceed with a trade. A nil
// ConfirmFunc means auto-confirm.
type ConfirmFunc func(opp *Opportunity) (bool, error)

// ExecutorConfig carries the operator-supplied execution knobs.
type ExecutorConfig struct {
	// MinTradeVolume is the smallest volume the exchanges will accept per
	// order, in XBT.
	MinTradeVolume decimal.Decimal
	// DryRun stops execution right before order placement.
	DryRun bool
	// PollInterval is the wait between order status polling passes.
	PollInterval time.Duration
	// CancelSiblingOnFailure issues a best-effort cancel of the remaining
	// open order when its pair leg fails terminally, instead of leaving an
	// unhedged position.
	CancelSiblingOnFailure bool
}

// Executor drives a selected opportunity through order placement and
// monitoring until both orders reach a terminal state.
type Executor struct {
	cfg      ExecutorConfig
	tradeLog *TradeLog
	confirm  ConfirmFunc
	logger   *logrus.Logger
	out      io.Writer
}

func NewExecutor(cfg ExecutorConfig, tradeLog *TradeLog, confirm ConfirmFunc, logger *logrus.Logger, out io.Writer) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Executor{
		cfg:      cfg,
		tradeLog: tradeLog,
		confirm:  confirm,
		logger:   logger,
		out:      out,
	}
}

// Execute runs the order lifecycle for opp. Placement failures and order
// tracking failures are returned to the caller; both are recoverable at the
// trading loop level. Once placement has been issued, cancellation is honored
// only between polling passes.
func (e *Executor) Execute(ctx context.Context, opp *Opportunity) (Outcome, error) {
	if opp.Volume.LessThan(e.cfg.MinTradeVolume) {
		if opp.Volume.IsPositive() {
			fmt.Fprintf(e.out, "Skipping, volume too low: %s XBT\n\n", opp.Volume.StringFixed(8))
			e.logger.WithField("volume", opp.Volume.StringFixed(8)).Info("Skipping trade, volume too small")
			return OutcomeVolumeTooSmall, nil
		}
		fmt.Fprintf(e.out, "No trading possible, insufficient funds.\n\n")
		e.logger.Info("Skipping trade, insufficient funds")
		return OutcomeInsufficientFunds, nil
	}

	e.printPlan(opp)

	if e.confirm != nil {
		ok, err := e.confirm(opp)
		if err != nil {
			return OutcomeDeclined, err
		}
		if !ok {
			fmt.Fprintf(e.out, "Skipping.\n\n")
			return OutcomeDeclined, nil
		}
	}

	if e.cfg.DryRun {
		e.logger.WithFields(logrus.Fields{
			"bid_market": opp.BidMarket.Name(),
			"ask_market": opp.AskMarket.Name(),
			"profit":     opp.Profit.StringFixed(5),
		}).Info("Dry run, not placing orders")
		return OutcomeDryRun, nil
	}

	orders, err := e.placeOrders(ctx, opp)
	if err != nil {
		return OutcomeTraded, err
	}
	return OutcomeTraded, e.monitor(ctx, orders)
}

// placeOrders places the buy leg (a bid order on the ask-side market) and the
// sell leg (an ask order on the bid-side market). If the second placement
// fails the first leg is cancelled best-effort so the cycle aborts without
// residual state.
func (e *Executor) placeOrders(ctx context.Context, opp *Opportunity) ([]*trackedOrder, error) {
	buyOrder, err := opp.AskMarket.CreateBidOrder(ctx, opp.Volume, opp.Ask.Price)
	if err != nil {
		return nil, fmt.Errorf("placing buy order: %w", err)
	}
	fmt.Fprintf(e.out, "%-20s  BUY order %s\n", opp.AskMarket.Name(), buyOrder.ID)
	if err := e.tradeLog.LogOpen(opp.AskMarket.Name(), buyOrder, opp.Volume, opp.Ask.Price); err != nil {
		e.logger.WithError(err).Error("Failed to write trade log")
	}

	sellOrder, err := opp.BidMarket.CreateAskOrder(ctx, opp.Volume, opp.Bid.Price)
	if err != nil {
		e.logger.WithError(err).WithField("market", opp.BidMarket.Name()).
			Error("Failed to place sell order, cancelling buy order")
		if cancelErr := opp.AskMarket.CancelOrder(ctx, buyOrder); cancelErr != nil {
			e.logger.WithError(cancelErr).WithFields(logrus.Fields{
				"market":   opp.AskMarket.Name(),
				"order_id": buyOrder.ID,
			}).Error("Failed to cancel buy order, manual intervention required")
		}
		return nil, fmt.Errorf("placing sell order: %w", err)
	}
	fmt.Fprintf(e.out, "%-20s  SELL order %s\n", opp.BidMarket.Name(), sellOrder.ID)
	if err := e.tradeLog.LogOpen(opp.BidMarket.Name(), sellOrder, opp.Volume, opp.Bid.Price); err != nil {
		e.logger.WithError(err).Error("Failed to write trade log")
	}

	return []*trackedOrder{
		{market: opp.AskMarket, order: buyOrder, label: "BUY", state: orderStatePlaced},
		{market: opp.BidMarket, order: sellOrder, label: "SELL", state: orderStatePlaced},
	}, nil
}

// monitor polls the in-flight orders sequentially until none remains open.
// Orders are tracked independently: one failing terminally does not stop
// polling of its sibling, though it may trigger a best-effort sibling cancel.
// Transient adapter failures during a poll keep the order in flight; the
// terminal order-tracking errors are surfaced, never retried.
func (e *Executor) monitor(ctx context.Context, orders []*trackedOrder) error {
	for inFlight(orders) > 0 {
		for _, t := range orders {
			if !t.inFlight() {
				continue
			}
			status, err := t.market.OrderStatus(ctx, t.order)
			if err != nil {
				e.observeFailure(ctx, t, orders, err)
				continue
			}
			fmt.Fprintf(e.out, "%-20s  %s order %s: %s\n", t.market.Name(), t.label, t.order.ID, status)
			if status == models.OrderStatusClosed {
				t.state = orderStateClosed
				t.order.Status = models.OrderStatusClosed
				if logErr := e.tradeLog.LogClose(t.market.Name(), t.order); logErr != nil {
					e.logger.WithError(logErr).Error("Failed to write trade log")
				}
			}
		}
		if inFlight(orders) == 0 {
			break
		}
		if err := waitFor(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}

	var errs []error
	for _, t := range orders {
		if t.err != nil {
			errs = append(errs, fmt.Errorf("%s order %s on %s: %w", t.label, t.order.ID, t.market.Name(), t.err))
		}
	}
	return errors.Join(errs...)
}

// observeFailure classifies a failed status poll. The order-tracking errors
// terminate tracking of this order; anything else is treated as a transient
// remote failure and the order stays in flight.
func (e *Executor) observeFailure(ctx context.Context, t *trackedOrder, orders []*trackedOrder, err error) {
	switch {
	case errors.Is(err, market.ErrOrderCancelled):
		t.state = orderStateCancelled
	case errors.Is(err, market.ErrOrderExpired):
		t.state = orderStateExpired
	case errors.Is(err, market.ErrOrderNotFound):
		t.state = orderStateNotFound
	default:
		e.logger.WithError(err).WithFields(logrus.Fields{
			"market":   t.market.Name(),
			"order_id": t.order.ID,
		}).Warn("Order status poll failed, will retry")
		return
	}

	t.err = err
	fmt.Fprintf(e.out, "%-20s  %s order %s: %v\n", t.market.Name(), t.label, t.order.ID, err)
	e.logger.WithError(err).WithFields(logrus.Fields{
		"market":   t.market.Name(),
		"order_id": t.order.ID,
		"state":    t.state,
	}).Error("Order tracking failed")

	if !e.cfg.CancelSiblingOnFailure {
		return
	}
	for _, sibling := range orders {
		if sibling == t || !sibling.inFlight() {
			continue
		}
		e.logger.WithFields(logrus.Fields{
			"market":   sibling.market.Name(),
			"order_id": sibling.order.ID,
		}).Warn("Cancelling sibling order to avoid unhedged position")
		if cancelErr := sibling.market.CancelOrder(ctx, sibling.order); cancelErr != nil {
			e.logger.WithError(cancelErr).WithFields(logrus.Fields{
				"market":   sibling.market.Name(),
				"order_id": sibling.order.ID,
			}).Error("Failed to cancel sibling order, manual intervention required")
		}
	}
}

func (e *Executor) printPlan(opp *Opportunity) {
	fmt.Fprintf(e.out, "%-20s  ASK %s @ %s USD\n",
		opp.AskMarket.Name(), opp.Ask.Volume.StringFixed(8), opp.Ask.Price.StringFixed(5))
	fmt.Fprintf(e.out, "%-20s  BID %s @ %s USD\n",
		opp.BidMarket.Name(), opp.Bid.Volume.StringFixed(8), opp.Bid.Price.StringFixed(5))
	fmt.Fprintf(e.out, "--\n")
	fmt.Fprintf(e.out, "%-20s  BUY  %s XBT for %s USD  [fee %s USD]\n",
		opp.AskMarket.Name(), opp.Volume.StringFixed(8), opp.BuyTotal.StringFixed(5), opp.BuyFee.StringFixed(5))
	fmt.Fprintf(e.out, "%-20s  SELL %s XBT for %s USD  [fee %s USD]\n",
		opp.BidMarket.Name(), opp.Volume.StringFixed(8), opp.SellTotal.StringFixed(5), opp.SellFee.StringFixed(5))
	fmt.Fprintf(e.out, "%22s  FEES   %s USD\n", "", opp.Fees.StringFixed(5))
	fmt.Fprintf(e.out, "%22s  PROFIT %s USD\n", "", opp.Profit.StringFixed(5))
	fmt.Fprintf(e.out, "--\n")
}

func inFlight(orders []*trackedOrder) int {
	n := 0
	for _, t := range orders {
		if t.inFlight() {
			n++
		}
	}
	return n
}

// waitFor sleeps for d or until ctx is cancelled.
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
