package pipeline

import (
	"sync"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
)

// CalcCache is Stage 4: it derives period/countdown metrics per
// (symbol, exchange) and keeps a direct-overwrite cache of the last
// computed PerExchange so Binance's rolling settlement window can be
// tracked across updates.
//
// OKX publishes both its current and next settlement timestamp on
// every funding-rate tick, so its period is simply (next-current). The
// live Binance stream only ever reports one upcoming timestamp; the
// "last settlement" side is only known once either the historical
// fetcher enriches the fusion or a rollover is detected here: when a
// new current-settlement timestamp differs from the one already
// cached, the cached value becomes the new last-settlement timestamp.
type CalcCache struct {
	mu      sync.Mutex
	okx     map[string]model.PerExchange
	binance map[string]model.PerExchange
}

// NewCalcCache builds an empty Stage 4 cache.
func NewCalcCache() *CalcCache {
	return &CalcCache{
		okx:     make(map[string]model.PerExchange),
		binance: make(map[string]model.PerExchange),
	}
}

// ProcessOKX derives the OKX-side PerExchange metrics from an Aligned
// record.
func (c *CalcCache) ProcessOKX(a model.Aligned) model.PerExchange {
	pe := model.PerExchange{
		Symbol:               a.Symbol,
		Exchange:             model.ExchangeOKX,
		ContractName:         a.OKXContractName,
		LatestPrice:          a.OKXPrice,
		FundingRate:          a.OKXFundingRate,
		CurrentSettlementTs:  a.OKXCurrentTs,
		NextSettlementTs:     a.OKXNextTs,
		CurrentSettlementStr: a.OKXCurrentStr,
		NextSettlementStr:    a.OKXNextStr,
	}
	if a.OKXCurrentTs != nil && a.OKXNextTs != nil {
		period := (*a.OKXNextTs - *a.OKXCurrentTs) / 1000
		pe.PeriodSeconds = &period
	}
	if a.OKXCurrentTs != nil {
		pe.CountdownSeconds = countdownFrom(*a.OKXCurrentTs)
	}

	c.mu.Lock()
	c.okx[a.Symbol] = pe
	c.mu.Unlock()
	return pe
}

// ProcessBinance derives the Binance-side PerExchange metrics from an
// Aligned record, applying the rolling-settlement rule against the
// previously cached value for this symbol.
func (c *CalcCache) ProcessBinance(a model.Aligned) model.PerExchange {
	c.mu.Lock()
	prev, hasPrev := c.binance[a.Symbol]

	var lastTs *int64
	var lastStr string
	switch {
	case hasPrev && prev.CurrentSettlementTs != nil && a.BinanceCurrentTs != nil && *prev.CurrentSettlementTs != *a.BinanceCurrentTs:
		// The previously current settlement has now passed; it rolls
		// into the last-settlement slot.
		lastTs = prev.CurrentSettlementTs
		lastStr = prev.CurrentSettlementStr
	case a.BinanceLastTs != nil:
		lastTs = a.BinanceLastTs
		lastStr = a.BinanceLastStr
	case hasPrev:
		lastTs = prev.LastSettlementTs
		lastStr = prev.LastSettlementStr
	}

	pe := model.PerExchange{
		Symbol:               a.Symbol,
		Exchange:             model.ExchangeBinance,
		ContractName:         a.BinanceContractName,
		LatestPrice:          a.BinancePrice,
		FundingRate:          a.BinanceFundingRate,
		CurrentSettlementTs:  a.BinanceCurrentTs,
		CurrentSettlementStr: a.BinanceCurrentStr,
		LastSettlementTs:     lastTs,
		LastSettlementStr:    lastStr,
	}
	if lastTs != nil && a.BinanceCurrentTs != nil {
		period := (*a.BinanceCurrentTs - *lastTs) / 1000
		pe.PeriodSeconds = &period
	}
	if a.BinanceCurrentTs != nil {
		pe.CountdownSeconds = countdownFrom(*a.BinanceCurrentTs)
	}

	c.binance[a.Symbol] = pe
	c.mu.Unlock()
	return pe
}

func countdownFrom(settlementTsMs int64) *int64 {
	countdown := (settlementTsMs - time.Now().UnixMilli()) / 1000
	if countdown < 0 {
		countdown = 0
	}
	return &countdown
}
