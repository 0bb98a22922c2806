// Package bridge connects the realtime streams to the websocket hub:
// it consumes the fan-out streams through a durable consumer group and
// broadcasts each entry to the subscribers of its symbol room.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stockpulse/market-data/internal/model"
	"github.com/stockpulse/market-data/internal/streamlog"
)

// Websocket event names, keyed off the payload's type discriminator.
const (
	EventTradeUpdate = "trade_update"
	EventBarUpdate   = "bar_update"
)

// Broadcaster is the hub surface the bridge delivers to.
type Broadcaster interface {
	// Broadcast sends an event to every connected client.
	Broadcast(event string, data json.RawMessage)

	// BroadcastToSymbol sends an event to the clients subscribed to a
	// symbol's room.
	BroadcastToSymbol(symbol, event string, data json.RawMessage)
}

// Config controls delivery.
type Config struct {
	// BroadcastGlobal additionally mirrors every update to all clients,
	// regardless of room membership.
	BroadcastGlobal bool
}

// Bridge routes stream entries to the hub.
type Bridge struct {
	cfg    Config
	hub    Broadcaster
	logger *slog.Logger
}

// New creates a bridge; use Handler with a stream consumer.
func New(cfg Config, hub Broadcaster, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{cfg: cfg, hub: hub, logger: logger}
}

// Handler returns the stream consumer handler. A nil return acks the
// entry; delivery to a websocket is inherently fire-and-forget, so the
// only non-acked outcome is a payload we could not even classify.
func (b *Bridge) Handler() streamlog.Handler {
	return func(_ context.Context, entry streamlog.Entry) error {
		event, err := eventFor(entry)
		if err != nil {
			// Acked by the caller via the malformed-entry path would be
			// nicer, but the entry parsed; it just carries an unknown
			// payload. Drop it rather than poison the pending list.
			b.logger.Warn("dropping unroutable stream entry",
				"stream", entry.Stream,
				"id", entry.ID,
				"error", err,
			)
			return nil
		}

		b.hub.BroadcastToSymbol(entry.Symbol, event, json.RawMessage(entry.Data))
		if b.cfg.BroadcastGlobal {
			b.hub.Broadcast(event, json.RawMessage(entry.Data))
		}
		return nil
	}
}

// eventFor maps an entry to its websocket event name. The payload's
// "type" field is authoritative; the stream name is the fallback for
// entries published before the discriminator existed.
func eventFor(entry streamlog.Entry) (string, error) {
	var disc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(entry.Data, &disc); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}

	switch disc.Type {
	case model.TypeTrade:
		return EventTradeUpdate, nil
	case model.TypeBar:
		return EventBarUpdate, nil
	case "":
		switch entry.Stream {
		case streamlog.StreamTrades:
			return EventTradeUpdate, nil
		case streamlog.StreamBars:
			return EventBarUpdate, nil
		}
	}
	return "", fmt.Errorf("unknown payload type %q on %s", disc.Type, entry.Stream)
}
