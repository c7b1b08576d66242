// Package store holds the in-process, in-memory market data fed by
// the worker pool and read by the fusion pipeline and the HTTP
// introspection surface. There is exactly one DataStore per process,
// owned by cmd/crossfeed and injected into its collaborators — no
// package-level singleton.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
)

// FlowDestination names where a Put'd observation is routed next.
type FlowDestination string

const (
	FlowPipeline FlowDestination = "pipeline"
	FlowNone     FlowDestination = "none"
)

// Sink receives every observation routed to FlowPipeline.
type Sink func(model.Observation)

// DataStore is the shared, mutex-guarded map of the latest observation
// per (exchange, symbol, data type), plus per-exchange connection
// status. Each top-level map has its own lock so readers of market
// data never block on a connection-status update and vice versa.
type DataStore struct {
	marketMu sync.RWMutex
	market   map[model.Exchange]map[string]map[model.DataType]model.Observation

	connMu sync.RWMutex
	conn   map[model.Exchange]bool

	ready     atomic.Bool
	sink      Sink
	sinkMu    sync.RWMutex
}

// New builds an empty DataStore.
func New() *DataStore {
	return &DataStore{
		market: make(map[model.Exchange]map[string]map[model.DataType]model.Observation),
		conn:   make(map[model.Exchange]bool),
	}
}

// SetSink registers the callback invoked for every observation routed
// to FlowPipeline. Only one sink is supported; this product has no
// second ("brain") consumer, per the routing table below.
func (s *DataStore) SetSink(sink Sink) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

// flowDestination is the routing table referenced by spec: every
// market-data observation currently flows to the fusion pipeline.
// Account/order data types never existed in this product (no trading
// surface), so there is no FlowBrain destination wired up.
func flowDestination(dt model.DataType) FlowDestination {
	switch dt {
	case model.DataTypeTicker, model.DataTypeFundingRate, model.DataTypeMarkPrice, model.DataTypeFundingSettlement:
		return FlowPipeline
	default:
		return FlowNone
	}
}

// Put records obs as the latest value for its (exchange, symbol, data
// type) key and, if its flow destination is FlowPipeline, forwards it
// to the registered sink.
func (s *DataStore) Put(obs model.Observation) {
	s.marketMu.Lock()
	byExchange, ok := s.market[obs.Exchange]
	if !ok {
		byExchange = make(map[string]map[model.DataType]model.Observation)
		s.market[obs.Exchange] = byExchange
	}
	bySymbol, ok := byExchange[obs.Symbol]
	if !ok {
		bySymbol = make(map[model.DataType]model.Observation)
		byExchange[obs.Symbol] = bySymbol
	}
	bySymbol[obs.DataType] = obs
	s.marketMu.Unlock()

	if flowDestination(obs.DataType) != FlowPipeline {
		return
	}
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	if sink != nil {
		sink(obs)
	}
}

// Get returns the latest observation for (exchange, symbol, dataType).
func (s *DataStore) Get(exchange model.Exchange, symbol string, dataType model.DataType) (model.Observation, bool) {
	s.marketMu.RLock()
	defer s.marketMu.RUnlock()
	bySymbol, ok := s.market[exchange]
	if !ok {
		return model.Observation{}, false
	}
	byType, ok := bySymbol[symbol]
	if !ok {
		return model.Observation{}, false
	}
	obs, ok := byType[dataType]
	return obs, ok
}

// SetConnectionStatus records whether exchange currently has at least
// one connected data worker.
func (s *DataStore) SetConnectionStatus(exchange model.Exchange, connected bool) {
	s.connMu.Lock()
	s.conn[exchange] = connected
	s.connMu.Unlock()
}

// ConnectionStatus returns the last recorded status for exchange.
func (s *DataStore) ConnectionStatus(exchange model.Exchange) bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn[exchange]
}

// MarkReady flips the readiness flag that the HTTP /health endpoint
// reports; no request is gated on it.
func (s *DataStore) MarkReady() { s.ready.Store(true) }

// Ready reports whether MarkReady has been called.
func (s *DataStore) Ready() bool { return s.ready.Load() }

// Snapshot is a read-only point-in-time copy used by the HTTP debug
// surface; it is intentionally shallow (observations are value types).
type Snapshot struct {
	Market map[model.Exchange]map[string]map[model.DataType]model.Observation
	Taken  time.Time
}

// DebugSnapshot copies the full market map under lock for diagnostic
// JSON responses. Not for hot-path use.
func (s *DataStore) DebugSnapshot() Snapshot {
	s.marketMu.RLock()
	defer s.marketMu.RUnlock()
	out := make(map[model.Exchange]map[string]map[model.DataType]model.Observation, len(s.market))
	for ex, bySymbol := range s.market {
		symCopy := make(map[string]map[model.DataType]model.Observation, len(bySymbol))
		for sym, byType := range bySymbol {
			typeCopy := make(map[model.DataType]model.Observation, len(byType))
			for dt, obs := range byType {
				typeCopy[dt] = obs
			}
			symCopy[sym] = typeCopy
		}
		out[ex] = symCopy
	}
	return Snapshot{Market: out, Taken: time.Now()}
}
