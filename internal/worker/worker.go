// Package worker implements the DataWorker/BackupWorker pair that sits
// around one ws.Connection for one exchange shard: normal workers push
// market data into a sink, backup workers idle on a heartbeat
// subscription until a takeover promotes them.
package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/romanzzaa/crossfeed/internal/ws"
)

// Sink receives normalized observations read off the wire.
type Sink func(model.Observation)

// Status is the public snapshot returned by GetStatus, used by both
// the monitor and the HTTP introspection surface.
type Status struct {
	ID              string        `json:"id"`
	Exchange        model.Exchange `json:"exchange"`
	Role            model.WorkerRole `json:"role"`
	Connected       bool          `json:"connected"`
	Subscribed      bool          `json:"subscribed"`
	SymbolCount     int           `json:"symbol_count"`
	LastMessageAge  time.Duration `json:"last_message_age"`
}

const subscribeBatchSize = 50

// Worker wraps one ws.Connection with exchange-specific subscribe and
// parse logic, and tracks whether it is presently acting as the data
// leg or the backup leg of a shard pair.
type Worker struct {
	id       string
	exchange model.Exchange
	conn     *ws.Connection
	logger   *slog.Logger
	sink     Sink

	mu         sync.RWMutex
	role       model.WorkerRole
	subscribed map[string]struct{}
	heartbeat  string
}

// New builds a Worker for exchange against wsURL; nothing is dialed
// until Start. heartbeatSymbol is
// the single symbol a BackupWorker subscribes to while idle
// ("BTCUSDT" for Binance, "BTC-USDT-SWAP" for OKX).
func New(exchange model.Exchange, wsURL, heartbeatSymbol string, role model.WorkerRole, sink Sink) *Worker {
	w := &Worker{
		id:         uuid.NewString(),
		exchange:   exchange,
		role:       role,
		subscribed: make(map[string]struct{}),
		heartbeat:  heartbeatSymbol,
		sink:       sink,
	}
	w.logger = slog.Default().With("component", "worker", "exchange", exchange, "id", w.id)
	w.conn = ws.New(wsURL, w.handleMessage)
	return w
}

// ID returns the worker's ephemeral identity. IDs are not stable
// across a takeover: a promoted backup keeps its own ID, it does not
// inherit the failed data worker's.
func (w *Worker) ID() string { return w.id }

// Start dials the connection. A BackupWorker should be started with
// just the heartbeat symbol; a DataWorker is started with its full
// shard.
func (w *Worker) Start(symbols []string) {
	w.conn.Start()
	if len(symbols) > 0 {
		w.Subscribe(symbols)
	} else if w.heartbeat != "" {
		w.Subscribe([]string{w.heartbeat})
	}
}

// Stop tears down the connection for good.
func (w *Worker) Stop() {
	w.conn.Stop()
}

// Subscribe adds symbols to the live subscription set, batching wire
// messages by subscribeBatchSize with a pause between batches the way
// both exchanges' rate limits expect.
func (w *Worker) Subscribe(symbols []string) {
	if len(symbols) == 0 {
		return
	}
	w.mu.Lock()
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := w.subscribed[s]; !ok {
			w.subscribed[s] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	w.mu.Unlock()
	if len(fresh) == 0 {
		return
	}

	var messages [][]byte
	switch w.exchange {
	case model.ExchangeBinance:
		messages = buildBinanceSubscribeMessages(fresh)
	case model.ExchangeOKX:
		messages = buildOKXSubscribeMessages(fresh)
	}

	for i, msg := range messages {
		if err := w.conn.Send(msg); err != nil {
			w.logger.Error("subscribe send failed", "err", err)
		}
		if i < len(messages)-1 {
			time.Sleep(time.Second)
		}
	}
}

// UnsubscribeAll clears the local subscription set. Exchanges here
// don't require an explicit unsubscribe frame to free server-side
// state on disconnect; the set is cleared so a subsequent Subscribe
// re-sends everything after a reconnect.
func (w *Worker) UnsubscribeAll() {
	w.mu.Lock()
	w.subscribed = make(map[string]struct{})
	w.mu.Unlock()
}

// Takeover promotes a BackupWorker into the data-processing role: it
// clears its local subscription set and subscribes to the full shard.
// No unsubscribe frame is sent, so the heartbeat stream stays
// subscribed on the exchange side and, once the role is RoleData, its
// observations reach the sink like any other. Callers must only invoke
// this on a worker with RoleBackup.
func (w *Worker) Takeover(symbols []string) error {
	w.mu.Lock()
	if w.role != model.RoleBackup {
		w.mu.Unlock()
		return fmt.Errorf("takeover called on non-backup worker %s", w.id)
	}
	w.mu.Unlock()

	w.UnsubscribeAll()
	w.Subscribe(symbols)

	w.mu.Lock()
	w.role = model.RoleData
	w.mu.Unlock()
	return nil
}

// IsReadyForTakeover reports whether this backup worker currently has
// a live connection, the precondition the monitor checks before
// promoting it.
func (w *Worker) IsReadyForTakeover() bool {
	return w.conn.Connected()
}

// IsConnected reports whether the underlying socket is currently up.
func (w *Worker) IsConnected() bool { return w.conn.Connected() }

// IsSubscribed reports whether the local subscription set holds any
// symbol; a backup holding only the heartbeat symbol counts as
// subscribed.
func (w *Worker) IsSubscribed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subscribed) > 0
}

// GetStatus returns a point-in-time snapshot for monitoring/HTTP use.
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	role := w.role
	n := len(w.subscribed)
	w.mu.RUnlock()
	return Status{
		ID:             w.id,
		Exchange:       w.exchange,
		Role:           role,
		Connected:      w.conn.Connected(),
		Subscribed:     n > 0,
		SymbolCount:    n,
		LastMessageAge: w.conn.LastMessageAge(),
	}
}

func (w *Worker) handleMessage(raw []byte) {
	var obs *model.Observation
	switch w.exchange {
	case model.ExchangeBinance:
		obs = parseBinanceMessage(raw)
	case model.ExchangeOKX:
		obs = parseOKXMessage(raw)
	}
	if obs == nil {
		return
	}
	obs.IngressTime = time.Now()
	obs.IngressTimeUnix = obs.IngressTime.UnixMilli()

	w.mu.RLock()
	role := w.role
	w.mu.RUnlock()
	if role == model.RoleBackup {
		w.logger.Debug("dropping observation on backup worker", "symbol", obs.Symbol)
		return
	}

	if w.sink != nil {
		w.sink(*obs)
	}
}

// isControlFrame reports whether a raw message is a subscribe/pong ack
// rather than market data, so callers can skip json.Unmarshal into a
// data struct for it.
func isControlFrame(raw []byte) bool {
	var probe struct {
		Result any    `json:"result"`
		ID     any    `json:"id"`
		Event  string `json:"event"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Event == "subscribe" || probe.Event == "error" || (probe.ID != nil && probe.Result == nil)
}
