package pool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/romanzzaa/crossfeed/internal/worker"
)

const staleThreshold = 45 * time.Second

// MonitorCenter watches every ExchangePool's worker pairs and drives
// failover: a dead data worker is replaced by its backup (and a fresh
// backup is built to take its place); a dead backup is simply
// replaced. A failed data worker is stopped and never revived — the
// promoted backup takes over its shard identity going forward.
type MonitorCenter struct {
	pools           []*ExchangePool
	checkInterval   time.Duration
	slotCooldown    time.Duration
	onStatus        func(model.Exchange, bool)

	mu             sync.Mutex // serializes failover handling across all pools
	cooldownUntil  map[string]time.Time

	logger *slog.Logger
}

// NewMonitorCenter builds a MonitorCenter over pools. onStatus, if
// non-nil, is called once per pool on every check with whether at
// least one of its shards currently has a connected data worker, so
// the shared DataStore's per-exchange connection flag stays current.
func NewMonitorCenter(pools []*ExchangePool, checkInterval, slotCooldown time.Duration, onStatus func(model.Exchange, bool)) *MonitorCenter {
	return &MonitorCenter{
		pools:         pools,
		checkInterval: checkInterval,
		slotCooldown:  slotCooldown,
		onStatus:      onStatus,
		cooldownUntil: make(map[string]time.Time),
		logger:        slog.Default().With("component", "monitor_center"),
	}
}

// Run loops until stop is closed, checking every pair's health once
// per checkInterval.
func (m *MonitorCenter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *MonitorCenter) checkAll() {
	for _, p := range m.pools {
		anyConnected := false
		for _, pair := range p.Pairs() {
			key := shardKey(p, pair)
			if pair.Data.IsConnected() {
				anyConnected = true
			}
			if m.inCooldown(key) {
				continue
			}
			if isUnhealthy(pair.Data) {
				m.handleDataWorkerFailure(p, pair, key)
				continue
			}
			if isUnhealthy(pair.Backup) {
				m.handleBackupWorkerFailure(p, pair, key)
			}
		}
		if m.onStatus != nil {
			m.onStatus(p.Exchange(), anyConnected)
		}
	}
}

func isUnhealthy(w *worker.Worker) bool {
	if !w.IsConnected() {
		return true
	}
	return w.GetStatus().LastMessageAge > staleThreshold
}

func shardKey(p *ExchangePool, pair *WorkerPair) string {
	return fmt.Sprintf("%s-%d", p.Exchange(), pair.Shard)
}

func (m *MonitorCenter) inCooldown(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.cooldownUntil[key]
	return ok && time.Now().Before(until)
}

// handleDataWorkerFailure promotes pair.Backup into the data role,
// stops the failed data worker for good, and builds a fresh backup.
func (m *MonitorCenter) handleDataWorkerFailure(p *ExchangePool, pair *WorkerPair, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !pair.Backup.IsReadyForTakeover() {
		m.logger.Warn("data worker down but backup not ready, replacing backup", "exchange", p.Exchange(), "shard", pair.Shard)
		pair.Backup = p.NewReplacementBackup()
		m.cooldownUntil[key] = time.Now().Add(m.slotCooldown)
		return
	}

	if err := pair.Backup.Takeover(pair.Symbols); err != nil {
		m.logger.Error("takeover failed, replacing backup", "exchange", p.Exchange(), "shard", pair.Shard, "err", err)
		pair.Backup = p.NewReplacementBackup()
		m.cooldownUntil[key] = time.Now().Add(m.slotCooldown)
		return
	}

	failed := pair.Data
	pair.Data = pair.Backup
	pair.Backup = p.NewReplacementBackup()
	failed.Stop()

	m.logger.Warn("failover complete: backup promoted to data worker", "exchange", p.Exchange(), "shard", pair.Shard, "new_data_worker", pair.Data.ID())
	m.cooldownUntil[key] = time.Now().Add(m.slotCooldown)
}

// handleBackupWorkerFailure replaces a dead backup; the data worker is
// untouched.
func (m *MonitorCenter) handleBackupWorkerFailure(p *ExchangePool, pair *WorkerPair, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	failed := pair.Backup
	pair.Backup = p.NewReplacementBackup()
	failed.Stop()

	m.logger.Warn("backup worker replaced", "exchange", p.Exchange(), "shard", pair.Shard, "new_backup_worker", pair.Backup.ID())
	m.cooldownUntil[key] = time.Now().Add(m.slotCooldown)
}
