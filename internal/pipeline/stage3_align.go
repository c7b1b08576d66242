package pipeline

import (
	"sync"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
)

const alignStaleAfter = 10 * time.Second

// utc8 is the fixed +8 zone used for the human-readable settlement
// timestamps; it is never the host's local zone.
var utc8 = time.FixedZone("UTC+8", 8*60*60)

func tsToUTC8Str(ms int64) string {
	return time.UnixMilli(ms).In(utc8).Format("2006-01-02 15:04:05")
}

type alignSlot struct {
	fused model.Fused
	at    time.Time
}

type alignEntry struct {
	okx     *alignSlot
	binance *alignSlot
}

// Aligner is Stage 3: it holds the most recent OKX and Binance Fused
// record per symbol and, once both sides are present, emits an
// Aligned view and clears the symbol's state. Until both sides have
// arrived again, a side that goes stale is independently evicted
// rather than dropping the whole symbol.
type Aligner struct {
	mu    sync.Mutex
	state map[string]*alignEntry
	onAlign func(model.Aligned)
}

// NewAligner builds an Aligner that calls onAlign for every emitted
// cross-exchange view.
func NewAligner(onAlign func(model.Aligned)) *Aligner {
	return &Aligner{
		state:   make(map[string]*alignEntry),
		onAlign: onAlign,
	}
}

// Ingest feeds one Fused record into the per-symbol alignment state.
func (a *Aligner) Ingest(f model.Fused) {
	now := time.Now()

	a.mu.Lock()
	entry, ok := a.state[f.Symbol]
	if !ok {
		entry = &alignEntry{}
		a.state[f.Symbol] = entry
	}
	slot := &alignSlot{fused: f, at: now}
	switch f.Exchange {
	case model.ExchangeOKX:
		entry.okx = slot
	case model.ExchangeBinance:
		entry.binance = slot
	}

	if entry.okx == nil || entry.binance == nil {
		a.mu.Unlock()
		return
	}
	aligned := buildAligned(f.Symbol, entry.okx.fused, entry.binance.fused)
	delete(a.state, f.Symbol)
	a.mu.Unlock()

	if a.onAlign != nil {
		a.onAlign(aligned)
	}
}

func buildAligned(symbol string, okx, binance model.Fused) model.Aligned {
	out := model.Aligned{
		Symbol:              symbol,
		OKXContractName:     okx.ContractName,
		OKXPrice:            okx.LatestPrice,
		OKXFundingRate:      okx.FundingRate,
		OKXCurrentTs:        okx.CurrentSettlementTimeMs,
		OKXNextTs:           okx.NextSettlementTimeMs,
		BinanceContractName: binance.ContractName,
		BinancePrice:        binance.LatestPrice,
		BinanceFundingRate:  binance.FundingRate,
		BinanceLastTs:       binance.LastSettlementTimeMs,
		BinanceCurrentTs:    binance.CurrentSettlementTimeMs,
	}
	if okx.CurrentSettlementTimeMs != nil {
		out.OKXCurrentStr = tsToUTC8Str(*okx.CurrentSettlementTimeMs)
	}
	if okx.NextSettlementTimeMs != nil {
		out.OKXNextStr = tsToUTC8Str(*okx.NextSettlementTimeMs)
	}
	if binance.LastSettlementTimeMs != nil {
		out.BinanceLastStr = tsToUTC8Str(*binance.LastSettlementTimeMs)
	}
	if binance.CurrentSettlementTimeMs != nil {
		out.BinanceCurrentStr = tsToUTC8Str(*binance.CurrentSettlementTimeMs)
	}
	return out
}

// RunEvictionLoop evicts stale per-exchange slots (and empty entries)
// until stop is closed; call it in its own goroutine.
func (a *Aligner) RunEvictionLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.evict()
		}
	}
}

func (a *Aligner) evict() {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for symbol, entry := range a.state {
		if entry.okx != nil && now.Sub(entry.okx.at) > alignStaleAfter {
			entry.okx = nil
		}
		if entry.binance != nil && now.Sub(entry.binance.at) > alignStaleAfter {
			entry.binance = nil
		}
		if entry.okx == nil && entry.binance == nil {
			delete(a.state, symbol)
		}
	}
}
