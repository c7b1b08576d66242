// Package admin provides the top-level façade that owns every
// exchange pool plus the shared MonitorCenter, and coordinates
// graceful startup/shutdown across them.
package admin

import (
	"log/slog"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/romanzzaa/crossfeed/internal/pool"
)

const shutdownBudget = 5 * time.Second

// GlobalPoolManager is the single object cmd/crossfeed constructs to
// bring the whole worker pool online and take it down cleanly.
type GlobalPoolManager struct {
	pools   []*pool.ExchangePool
	monitor *pool.MonitorCenter
	logger  *slog.Logger

	stop chan struct{}
}

// New builds a GlobalPoolManager over pools, wiring a shared
// MonitorCenter across all of them. onStatus, if non-nil, receives
// each pool's aggregate connectivity on every monitor check.
func New(pools []*pool.ExchangePool, monitorInterval, slotCooldown time.Duration, onStatus func(model.Exchange, bool)) *GlobalPoolManager {
	return &GlobalPoolManager{
		pools:   pools,
		monitor: pool.NewMonitorCenter(pools, monitorInterval, slotCooldown, onStatus),
		logger:  slog.Default().With("component", "global_pool_manager"),
		stop:    make(chan struct{}),
	}
}

// Start dials every pool's workers and launches the monitor loop.
func (g *GlobalPoolManager) Start() {
	for _, p := range g.pools {
		p.Start()
	}
	go g.monitor.Run(g.stop)
	g.logger.Info("pool manager started", "pool_count", len(g.pools))
}

// Stop signals the monitor loop to exit and tears down every pool's
// workers within a fixed budget.
func (g *GlobalPoolManager) Stop() {
	close(g.stop)

	done := make(chan struct{})
	go func() {
		for _, p := range g.pools {
			p.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownBudget):
		g.logger.Warn("shutdown budget exceeded, proceeding anyway")
	}
}

// Status is a point-in-time view of every shard pair across every
// pool, used by the HTTP introspection surface.
type Status struct {
	Exchange string       `json:"exchange"`
	Shards   []ShardStatus `json:"shards"`
}

// ShardStatus summarizes one shard pair's data/backup worker state.
type ShardStatus struct {
	Shard  int         `json:"shard"`
	Data   interface{} `json:"data"`
	Backup interface{} `json:"backup"`
}

// StatusReport returns a per-pool, per-shard status snapshot.
func (g *GlobalPoolManager) StatusReport() []Status {
	out := make([]Status, 0, len(g.pools))
	for _, p := range g.pools {
		shards := make([]ShardStatus, 0, len(p.Pairs()))
		for _, pair := range p.Pairs() {
			shards = append(shards, ShardStatus{
				Shard:  pair.Shard,
				Data:   pair.Data.GetStatus(),
				Backup: pair.Backup.GetStatus(),
			})
		}
		out = append(out, Status{Exchange: string(p.Exchange()), Shards: shards})
	}
	return out
}
