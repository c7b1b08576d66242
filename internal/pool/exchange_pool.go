// Package pool implements the per-exchange worker sharding
// (ExchangePool) and the cross-exchange failover supervisor
// (MonitorCenter) that sits on top of internal/worker.
package pool

import (
	"log/slog"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/romanzzaa/crossfeed/internal/worker"
)

// WorkerPair is one shard's data/backup pair.
type WorkerPair struct {
	Shard   int
	Data    *worker.Worker
	Backup  *worker.Worker
	Symbols []string
}

// ExchangePool owns the sharded data/backup worker pairs for one
// exchange: it splits the exchange's symbol set evenly across shards
// (remainder symbols go to the first shards) and starts a data worker
// and an idle backup worker for each.
type ExchangePool struct {
	exchange model.Exchange
	wsURL    string
	heartbeat string

	pairs []*WorkerPair
	sink  worker.Sink
	logger *slog.Logger
}

// NewExchangePool builds the pool but does not start any workers.
func NewExchangePool(exchange model.Exchange, wsURL, heartbeatSymbol string, shards int, symbols []string, sink worker.Sink) *ExchangePool {
	p := &ExchangePool{
		exchange:  exchange,
		wsURL:     wsURL,
		heartbeat: heartbeatSymbol,
		sink:      sink,
		logger:    slog.Default().With("component", "exchange_pool", "exchange", exchange),
	}

	shardSymbols := distributeSymbols(symbols, shards)
	p.pairs = make([]*WorkerPair, 0, shards)
	for i := 0; i < shards; i++ {
		dataW := worker.New(exchange, wsURL, heartbeatSymbol, model.RoleData, sink)
		backupW := worker.New(exchange, wsURL, heartbeatSymbol, model.RoleBackup, sink)
		p.pairs = append(p.pairs, &WorkerPair{
			Shard:   i,
			Data:    dataW,
			Backup:  backupW,
			Symbols: shardSymbols[i],
		})
	}
	return p
}

// distributeSymbols splits symbols into n roughly even groups, giving
// the remainder to the first groups.
func distributeSymbols(symbols []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	out := make([][]string, n)
	base := len(symbols) / n
	remainder := len(symbols) % n
	idx := 0
	for i := 0; i < n; i++ {
		count := base
		if i < remainder {
			count++
		}
		out[i] = append([]string{}, symbols[idx:idx+count]...)
		idx += count
	}
	return out
}

// Start dials every data worker with its shard's symbols and every
// backup worker on just the heartbeat symbol.
func (p *ExchangePool) Start() {
	for _, pair := range p.pairs {
		pair.Data.Start(pair.Symbols)
		pair.Backup.Start(nil)
	}
}

// Stop tears down every worker in the pool.
func (p *ExchangePool) Stop() {
	for _, pair := range p.pairs {
		pair.Data.Stop()
		pair.Backup.Stop()
	}
}

// Pairs returns the pool's worker pairs, used by MonitorCenter.
func (p *ExchangePool) Pairs() []*WorkerPair { return p.pairs }

// Exchange returns the exchange this pool serves.
func (p *ExchangePool) Exchange() model.Exchange { return p.exchange }

// NewReplacementBackup builds and starts a fresh idle backup worker for
// this pool, used after a takeover consumes the existing one.
func (p *ExchangePool) NewReplacementBackup() *worker.Worker {
	w := worker.New(p.exchange, p.wsURL, p.heartbeat, model.RoleBackup, p.sink)
	w.Start(nil)
	return w
}
