package arbiter

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dankeder/xbtarbiter/pkg/market"
)

// Scanner enumerates profitable opportunities across a fixed, ordered set of
// markets. The declared market order is what makes selection tie-breaks
// deterministic.
type Scanner struct {
	markets []market.Adapter
	logger  *logrus.Logger
}

func NewScanner(markets []market.Adapter, logger *logrus.Logger) *Scanner {
	return &Scanner{
		markets: markets,
		logger:  logger,
	}
}

// Scan refreshes every market's order book once, then evaluates every ordered
// pair (bid, ask) of distinct markets. Direction matters: both orderings of
// each pair are distinct candidates. Only pairs whose market-depth profit is
// positive are returned; affordability and the per-trade cap are applied
// inside each candidate but do not exclude it here.
func (s *Scanner) Scan(ctx context.Context, maxVolume decimal.Decimal) ([]Opportunity, error) {
	for _, m := range s.markets {
		if err := m.RefreshOrderBook(ctx); err != nil {
			return nil, err
		}
	}

	var candidates []Opportunity
	for _, bidMarket := range s.markets {
		for _, askMarket := range s.markets {
			if bidMarket.Name() == askMarket.Name() {
				continue
			}
			opp := Compute(bidMarket, askMarket, maxVolume)
			if !opp.MktProfit.IsPositive() {
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"bid_market": bidMarket.Name(),
				"ask_market": askMarket.Name(),
				"mkt_profit": opp.MktProfit.StringFixed(5),
				"profit":     opp.Profit.StringFixed(5),
				"volume":     opp.Volume.StringFixed(8),
			}).Debug("Found opportunity")
			candidates = append(candidates, opp)
		}
	}
	return candidates, nil
}

// Markets returns the scanner's markets in declared order.
func (s *Scanner) Markets() []market.Adapter {
	return s.markets
}
