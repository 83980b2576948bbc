package arbiter

import (
	"github.com/shopspring/decimal"
)

// SelectBest picks the candidate with the highest profit among those clearing
// minProfit, or nil when none does. Comparison is strictly greater, so a tie
// keeps the candidate encountered first in declared market order.
func SelectBest(candidates []Opportunity, minProfit decimal.Decimal) *Opportunity {
	var best *Opportunity
	for i := range candidates {
		opp := &candidates[i]
		if opp.Profit.LessThan(minProfit) {
			continue
		}
		if best == nil || opp.Profit.GreaterThan(best.Profit) {
			best = opp
		}
	}
	return best
}
