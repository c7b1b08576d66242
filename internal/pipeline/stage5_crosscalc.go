package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/shopspring/decimal"
)

// CrossCalculator is Stage 5: it combines the two exchanges'
// PerExchange metrics for one symbol into the terminal CrossPlatform
// record. Invalid prices are never dropped — they're reported at zero
// with PriceInvalid set, and counted for observability.
type CrossCalculator struct {
	priceInvalidCount atomic.Int64
}

// NewCrossCalculator builds an empty Stage 5 calculator.
func NewCrossCalculator() *CrossCalculator {
	return &CrossCalculator{}
}

// PriceInvalidCount returns the number of Process calls so far where
// either side's price was missing or non-positive.
func (c *CrossCalculator) PriceInvalidCount() int64 {
	return c.priceInvalidCount.Load()
}

// Process derives price/rate spreads for one symbol from its OKX and
// Binance PerExchange records.
func (c *CrossCalculator) Process(okx, binance model.PerExchange) model.CrossPlatform {
	okxPrice := decimal.Zero
	if okx.LatestPrice != nil {
		okxPrice = *okx.LatestPrice
	}
	binancePrice := decimal.Zero
	if binance.LatestPrice != nil {
		binancePrice = *binance.LatestPrice
	}

	invalid := !okxPrice.IsPositive() || !binancePrice.IsPositive()
	if invalid {
		c.priceInvalidCount.Add(1)
	}

	priceDiff := okxPrice.Sub(binancePrice).Abs()
	priceDiffPercent := decimal.Zero
	if !invalid {
		minPrice := decimal.Min(okxPrice, binancePrice)
		priceDiffPercent = priceDiff.Div(minPrice).Mul(decimal.NewFromInt(100))
	}

	okxRate := decimal.Zero
	if okx.FundingRate != nil {
		okxRate = *okx.FundingRate
	}
	binanceRate := decimal.Zero
	if binance.FundingRate != nil {
		binanceRate = *binance.FundingRate
	}
	rateDiff := okxRate.Sub(binanceRate).Abs()

	symbol := okx.Symbol
	if symbol == "" {
		symbol = binance.Symbol
	}

	return model.CrossPlatform{
		Symbol:           symbol,
		PriceDiff:        priceDiff,
		PriceDiffPercent: priceDiffPercent,
		RateDiff:         rateDiff,
		PriceInvalid:     invalid,
		OKX:              okx,
		Binance:          binance,
		CalculatedAt:     time.Now(),
	}
}
