package arbiter

import (
	"testing"
)

func candidate(bidName, askName, profit string) Opportunity {
	return Opportunity{
		BidMarket: newFakeMarket(bidName),
		AskMarket: newFakeMarket(askName),
		Profit:    d(profit),
	}
}

func TestSelectBestReturnsMaxProfit(t *testing.T) {
	candidates := []Opportunity{
		candidate("a", "b", "2.5"),
		candidate("c", "d", "7.1"),
		candidate("e", "f", "4.0"),
	}
	best := SelectBest(candidates, d("0"))
	if best == nil {
		t.Fatal("expected a selection")
	}
	assertEqual(t, "profit", best.Profit, d("7.1"))
}

func TestSelectBestHonorsMinProfit(t *testing.T) {
	candidates := []Opportunity{
		candidate("a", "b", "2.5"),
		candidate("c", "d", "4.0"),
	}
	if best := SelectBest(candidates, d("5")); best != nil {
		t.Fatalf("expected no selection, got profit %s", best.Profit)
	}
}

func TestSelectBestMinProfitIsInclusive(t *testing.T) {
	candidates := []Opportunity{candidate("a", "b", "5")}
	best := SelectBest(candidates, d("5"))
	if best == nil {
		t.Fatal("expected candidate with profit == min_profit to be selected")
	}
}

func TestSelectBestEmpty(t *testing.T) {
	if best := SelectBest(nil, d("0")); best != nil {
		t.Fatal("expected no selection from empty candidates")
	}
}

func TestSelectBestTieKeepsFirst(t *testing.T) {
	candidates := []Opportunity{
		candidate("first-bid", "first-ask", "3.3"),
		candidate("second-bid", "second-ask", "3.3"),
	}
	best := SelectBest(candidates, d("0"))
	if best == nil {
		t.Fatal("expected a selection")
	}
	if best.BidMarket.Name() != "first-bid" {
		t.Fatalf("tie should keep first candidate, got %s", best.BidMarket.Name())
	}
}
