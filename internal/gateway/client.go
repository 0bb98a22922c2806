package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// maxViolations bounds protocol abuse (unknown events, bad frames)
	// before the connection is dropped.
	maxViolations = 5
)

// Client is one websocket connection. Outbound messages flow through a
// bounded queue; a consumer too slow to drain it is disconnected rather
// than allowed to stall the hub.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	dropped    atomic.Int64
	violations int
	closeOnce  sync.Once
	done       chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, queueSize int, logger *slog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, queueSize),
		logger: logger.With("client_id", id),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's identifier.
func (c *Client) ID() string {
	return c.id
}

// Dropped returns how many messages were discarded because the client's
// send queue was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// enqueue queues a message for delivery. A full queue means the client
// cannot keep up with its subscriptions; it is disconnected.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.dropped.Add(1)
		c.logger.Warn("send queue overflow, dropping connection")
		c.close()
	}
}

// close tears down the connection once; the read pump observes the
// closed socket and unregisters the client.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// sendEvent encodes and queues a protocol event.
func (c *Client) sendEvent(event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		c.logger.Error("encode event", "event", event, "error", err)
		return
	}
	c.enqueue(msg)
}

// greet sends the connection acknowledgement.
func (c *Client) greet() {
	c.sendEvent(EventConnected, map[string]string{
		"message":   "connected to market data stream",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readPump consumes inbound frames until the connection drops, then
// tears the client down.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

// handle dispatches one inbound envelope. Violations are tolerated a
// few times, then the connection is dropped.
func (c *Client) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.violate("invalid message format")
		return
	}

	switch env.Event {
	case EventSubscribe:
		symbol, err := subscribeTarget(env.Data)
		if err != nil {
			c.violate(err.Error())
			return
		}
		c.hub.Join(c, symbol)
		c.sendEvent(EventSubscribed, map[string]string{"symbol": symbol})
		c.logger.Info("subscribed", "symbol", symbol)

	case EventUnsubscribe:
		symbol, err := subscribeTarget(env.Data)
		if err != nil {
			c.violate(err.Error())
			return
		}
		c.hub.Leave(c, symbol)
		c.sendEvent(EventUnsubscribed, map[string]string{"symbol": symbol})
		c.logger.Info("unsubscribed", "symbol", symbol)

	default:
		c.violate("unknown event: " + env.Event)
	}
}

// violate reports a protocol error to the client and drops the
// connection after repeated offenses. Only called from readPump, so the
// counter needs no lock.
func (c *Client) violate(msg string) {
	c.violations++
	c.sendEvent(EventError, map[string]string{"message": msg})
	if c.violations >= maxViolations {
		c.logger.Warn("repeated protocol violations, dropping connection", "violations", c.violations)
		c.close()
	}
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("write failed", "error", err)
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
