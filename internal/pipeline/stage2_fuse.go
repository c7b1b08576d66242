package pipeline

import (
	"sync"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/shopspring/decimal"
)

const fuseStaleAfter = 30 * time.Second

type fuseKey struct {
	exchange model.Exchange
	symbol   string
}

type priceSlot struct {
	price        decimal.Decimal
	contractName string
	at           time.Time
}

type rateSlot struct {
	rate       decimal.Decimal
	currentTs  *int64
	nextTs     *int64
	at         time.Time
}

type settlementSlot struct {
	lastTs *int64
	at     time.Time
}

type fuseEntry struct {
	price      *priceSlot
	rate       *rateSlot
	settlement *settlementSlot
}

func (e *fuseEntry) lastActivity() time.Time {
	var latest time.Time
	for _, t := range []*time.Time{
		timeOf(e.price), timeOfRate(e.rate), timeOfSettlement(e.settlement),
	} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

func timeOf(s *priceSlot) *time.Time {
	if s == nil {
		return nil
	}
	return &s.at
}

func timeOfRate(s *rateSlot) *time.Time {
	if s == nil {
		return nil
	}
	return &s.at
}

func timeOfSettlement(s *settlementSlot) *time.Time {
	if s == nil {
		return nil
	}
	return &s.at
}

// Fuser is Stage 2: it merges a price leg and a funding leg that
// arrive independently on the wire into one Fused record per
// (exchange, symbol), evicting state that goes stale before both legs
// show up.
//
// OKX fuses on ticker + funding-rate. Binance fuses on mark-price +
// ticker; a funding_settlement record never triggers fusion by itself,
// it only enriches the next mark-price+ticker fusion with a
// LastSettlementTimeMs, the way the historical fetcher's pushes relate
// to the live stream.
type Fuser struct {
	mu     sync.Mutex
	state  map[fuseKey]*fuseEntry
	onFuse func(model.Fused)
}

// NewFuser builds a Fuser that calls onFuse for every completed merge.
func NewFuser(onFuse func(model.Fused)) *Fuser {
	f := &Fuser{
		state:  make(map[fuseKey]*fuseEntry),
		onFuse: onFuse,
	}
	return f
}

// Ingest feeds one Extracted record into the fuser's state machine.
func (f *Fuser) Ingest(e model.Extracted) {
	key := fuseKey{exchange: e.Exchange, symbol: e.Symbol}
	now := time.Now()

	f.mu.Lock()
	entry, ok := f.state[key]
	if !ok {
		entry = &fuseEntry{}
		f.state[key] = entry
	}

	switch e.DataType {
	case "okx_ticker", "binance_ticker":
		if e.LatestPrice == nil {
			f.mu.Unlock()
			return
		}
		entry.price = &priceSlot{price: *e.LatestPrice, contractName: e.ContractName, at: now}
	case "okx_funding_rate", "binance_mark_price":
		if e.FundingRate == nil {
			f.mu.Unlock()
			return
		}
		entry.rate = &rateSlot{rate: *e.FundingRate, currentTs: e.CurrentSettlementTime, nextTs: e.NextSettlementTime, at: now}
	case "binance_funding_settlement":
		entry.settlement = &settlementSlot{lastTs: e.LastSettlementTime, at: now}
		f.mu.Unlock()
		return
	default:
		f.mu.Unlock()
		return
	}

	if entry.price == nil || entry.rate == nil {
		f.mu.Unlock()
		return
	}

	fused := model.Fused{
		Exchange:            e.Exchange,
		Symbol:              e.Symbol,
		ContractName:        entry.price.contractName,
		LatestPrice:         &entry.price.price,
		FundingRate:         &entry.rate.rate,
		CurrentSettlementTimeMs: entry.rate.currentTs,
		NextSettlementTimeMs: entry.rate.nextTs,
	}
	if entry.settlement != nil {
		fused.LastSettlementTimeMs = entry.settlement.lastTs
	}
	delete(f.state, key)
	f.mu.Unlock()

	if f.onFuse != nil {
		f.onFuse(fused)
	}
}

// RunEvictionLoop evicts entries whose slots have all gone stale. It
// blocks until stop is closed; call it in its own goroutine.
func (f *Fuser) RunEvictionLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.evict()
		}
	}
}

func (f *Fuser) evict() {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.state {
		if now.Sub(entry.lastActivity()) > fuseStaleAfter {
			delete(f.state, key)
		}
	}
}
