// Package ws wraps a single exchange WebSocket endpoint with the
// dial/ping/read-loop/reconnect shape used across this codebase,
// generalized so both Binance and OKX streams share one implementation.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 20 * time.Second
	dialTimeout    = 30 * time.Second
)

// Handler receives raw frames read off the connection. It must not
// block for long: the read loop stalls until it returns.
type Handler func(message []byte)

// Connection manages the lifecycle of one WebSocket connection to one
// URL: dialing, a heartbeat ping, a read loop, and reconnect-on-drop
// with a fixed backoff.
type Connection struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	onMessage Handler

	lastMessageAt atomic.Int64 // unix nanos

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Connection for url. handler is invoked from the read
// goroutine for every inbound frame.
func New(url string, handler Handler) *Connection {
	return &Connection{
		url:       url,
		logger:    slog.Default().With("component", "ws_connection", "url", url),
		onMessage: handler,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the dial/read/reconnect loop in a background goroutine
// and returns immediately.
func (c *Connection) Start() {
	go c.maintainConnection()
}

// Stop tears down the connection and stops reconnecting. It is safe to
// call more than once.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	<-c.doneCh
}

// Send writes a text frame if the connection is currently up. It is a
// no-op (not an error) when disconnected, since callers typically
// re-send subscriptions after a reconnect anyway.
func (c *Connection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Connected reports whether a live socket is currently held.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// LastMessageAge returns the time since the last frame was read, or a
// very large duration if nothing has been read yet.
func (c *Connection) LastMessageAge() time.Duration {
	last := c.lastMessageAt.Load()
	if last == 0 {
		return time.Hour * 24 * 365
	}
	return time.Since(time.Unix(0, last))
}

func (c *Connection) maintainConnection() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := c.connectAndListen(); err != nil {
			c.logger.Error("connection lost", "err", err)
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Connection) connectAndListen() error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.heartbeat(ctx, conn)

	c.logger.Info("connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.lastMessageAt.Store(time.Now().UnixNano())
		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

func (c *Connection) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				c.logger.Error("ping failed", "err", err)
			}
		}
	}
}
