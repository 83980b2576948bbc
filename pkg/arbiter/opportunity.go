package arbiter

import (
	"github.com/shopspring/decimal"

	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/models"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Opportunity is a fully-costed directional market pair: sell into BidMarket's
// highest bid, buy from AskMarket's lowest ask. Immutable once computed.
//
// The Mkt* figures are computed at the raw market-depth volume and decide only
// whether the pair is worth considering. Volume and everything derived from it
// additionally respect affordability and the operator's per-trade cap; Profit
// is the authoritative figure used for selection and execution.
type Opportunity struct {
	BidMarket market.Adapter
	AskMarket market.Adapter
	Bid       models.Quote
	Ask       models.Quote

	MktVolume    decimal.Decimal
	MktBuyTotal  decimal.Decimal
	MktBuyFee    decimal.Decimal
	MktSellTotal decimal.Decimal
	MktSellFee   decimal.Decimal
	MktFees      decimal.Decimal
	MktProfit    decimal.Decimal

	AffordableVolume decimal.Decimal
	MaxVolume        decimal.Decimal

	Volume    decimal.Decimal
	BuyTotal  decimal.Decimal
	BuyFee    decimal.Decimal
	SellTotal decimal.Decimal
	SellFee   decimal.Decimal
	Fees      decimal.Decimal
	Profit    decimal.Decimal
}

// Compute costs out the opportunity of selling on bidMarket and buying on
// askMarket, taking trade fees into account. maxVolume is the operator's
// per-trade cap in XBT and is always respected even when more liquidity and
// funds exist.
func Compute(bidMarket, askMarket market.Adapter, maxVolume decimal.Decimal) Opportunity {
	bid := bidMarket.HighestBid()
	bidFee := bidMarket.TradeFee().Div(hundred)
	ask := askMarket.LowestAsk()
	askFee := askMarket.TradeFee().Div(hundred)

	// Max volume available on the markets, with the profit and fees it would
	// carry if it were all tradable.
	mktVolume := decimal.Min(bid.Volume, ask.Volume)
	mktBuyTotal := ask.Price.Mul(mktVolume)
	mktBuyFee := mktBuyTotal.Mul(askFee)
	mktSellTotal := bid.Price.Mul(mktVolume)
	mktSellFee := mktSellTotal.Mul(bidFee)
	mktFees := mktSellFee.Add(mktBuyFee)
	mktProfit := mktSellTotal.Sub(mktBuyTotal).Sub(mktFees)

	// The volume our funds can afford: buying is limited by available USD on
	// the ask side, selling by available XBT on the bid side, both
	// fee-adjusted.
	canBuyVolume := decimal.Zero
	if unitCost := ask.Price.Mul(one.Add(askFee)); unitCost.IsPositive() {
		canBuyVolume = askMarket.AvailUSD().Div(unitCost)
	}
	canSellVolume := bidMarket.AvailXBT().Div(one.Add(bidFee))
	affordableVolume := decimal.Min(canBuyVolume, canSellVolume)

	// The volume we will eventually trade, and the authoritative totals and
	// profit at that volume.
	volume := decimal.Min(mktVolume, affordableVolume, maxVolume)
	buyTotal := ask.Price.Mul(volume)
	buyFee := buyTotal.Mul(askFee)
	sellTotal := bid.Price.Mul(volume)
	sellFee := sellTotal.Mul(bidFee)
	fees := sellFee.Add(buyFee)
	profit := sellTotal.Sub(buyTotal).Sub(fees)

	return Opportunity{
		BidMarket: bidMarket,
		AskMarket: askMarket,
		Bid:       bid,
		Ask:       ask,

		MktVolume:    mktVolume,
		MktBuyTotal:  mktBuyTotal,
		MktBuyFee:    mktBuyFee,
		MktSellTotal: mktSellTotal,
		MktSellFee:   mktSellFee,
		MktFees:      mktFees,
		MktProfit:    mktProfit,

		AffordableVolume: affordableVolume,
		MaxVolume:        maxVolume,

		Volume:    volume,
		BuyTotal:  buyTotal,
		BuyFee:    buyFee,
		SellTotal: sellTotal,
		SellFee:   sellFee,
		Fees:      fees,
		Profit:    profit,
	}
}
