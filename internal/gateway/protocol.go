package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/stockpulse/market-data/internal/model"
)

// Client-facing websocket events. Updates originating from the pipeline
// (trade_update, bar_update) are named by the bridge; these cover the
// subscription handshake.
const (
	EventConnected    = "connected"
	EventSubscribe    = "subscribe"
	EventUnsubscribe  = "unsubscribe"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
)

// Envelope is the framing for every websocket message in both
// directions: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEvent builds a wire-ready envelope.
func encodeEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// subscribeTarget extracts the symbol from a subscribe/unsubscribe
// payload. Clients send either a bare string or an object with a
// "symbol" field.
func subscribeTarget(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("missing symbol")
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if sym := model.NormalizeTicker(s); sym != "" {
			return sym, nil
		}
		return "", fmt.Errorf("empty symbol")
	}

	var obj struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("unrecognized subscribe payload")
	}
	if sym := model.NormalizeTicker(obj.Symbol); sym != "" {
		return sym, nil
	}
	return "", fmt.Errorf("empty symbol")
}
