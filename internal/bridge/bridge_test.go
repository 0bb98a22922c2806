package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stockpulse/market-data/internal/streamlog"
)

type broadcastCall struct {
	symbol string // empty for global
	event  string
	data   string
}

type fakeHub struct {
	calls []broadcastCall
}

func (h *fakeHub) Broadcast(event string, data json.RawMessage) {
	h.calls = append(h.calls, broadcastCall{event: event, data: string(data)})
}

func (h *fakeHub) BroadcastToSymbol(symbol, event string, data json.RawMessage) {
	h.calls = append(h.calls, broadcastCall{symbol: symbol, event: event, data: string(data)})
}

func TestHandler_RoutesTradeToSymbolRoom(t *testing.T) {
	hub := &fakeHub{}
	h := New(Config{}, hub, nil).Handler()

	payload := `{"symbol":"AAPL","price":150.25,"size":100,"timestamp":1700000000000,"type":"trade"}`
	err := h(context.Background(), streamlog.Entry{
		ID:     "1-0",
		Stream: streamlog.StreamTrades,
		Symbol: "AAPL",
		Data:   []byte(payload),
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(hub.calls) != 1 {
		t.Fatalf("got %d broadcasts, want 1", len(hub.calls))
	}
	call := hub.calls[0]
	if call.symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", call.symbol)
	}
	if call.event != EventTradeUpdate {
		t.Errorf("event = %q, want %q", call.event, EventTradeUpdate)
	}
	if call.data != payload {
		t.Errorf("data = %s, want payload passed through unmodified", call.data)
	}
}

func TestHandler_RoutesBarByType(t *testing.T) {
	hub := &fakeHub{}
	h := New(Config{}, hub, nil).Handler()

	err := h(context.Background(), streamlog.Entry{
		ID:     "1-0",
		Stream: streamlog.StreamBars,
		Symbol: "MSFT",
		Data:   []byte(`{"symbol":"MSFT","open":400,"close":401,"type":"bar"}`),
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(hub.calls) != 1 || hub.calls[0].event != EventBarUpdate {
		t.Fatalf("calls = %+v, want one %s broadcast", hub.calls, EventBarUpdate)
	}
}

func TestHandler_FallsBackToStreamName(t *testing.T) {
	hub := &fakeHub{}
	h := New(Config{}, hub, nil).Handler()

	err := h(context.Background(), streamlog.Entry{
		ID:     "1-0",
		Stream: streamlog.StreamBars,
		Symbol: "MSFT",
		Data:   []byte(`{"symbol":"MSFT","open":400}`),
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(hub.calls) != 1 || hub.calls[0].event != EventBarUpdate {
		t.Fatalf("calls = %+v, want one %s broadcast from stream-name fallback", hub.calls, EventBarUpdate)
	}
}

func TestHandler_GlobalBroadcast(t *testing.T) {
	hub := &fakeHub{}
	h := New(Config{BroadcastGlobal: true}, hub, nil).Handler()

	err := h(context.Background(), streamlog.Entry{
		ID:     "1-0",
		Stream: streamlog.StreamTrades,
		Symbol: "AAPL",
		Data:   []byte(`{"symbol":"AAPL","type":"trade"}`),
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(hub.calls) != 2 {
		t.Fatalf("got %d broadcasts, want room + global", len(hub.calls))
	}
	if hub.calls[0].symbol != "AAPL" || hub.calls[1].symbol != "" {
		t.Errorf("calls = %+v, want room delivery then global", hub.calls)
	}
}

func TestHandler_UnroutablePayloadAcked(t *testing.T) {
	hub := &fakeHub{}
	h := New(Config{}, hub, nil).Handler()

	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `not json`},
		{"unknown type", `{"type":"quote"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h(context.Background(), streamlog.Entry{
				ID:     "1-0",
				Stream: "market:realtime:other",
				Symbol: "AAPL",
				Data:   []byte(tt.data),
			})
			if err != nil {
				t.Errorf("handler error = %v, want nil (ack and drop)", err)
			}
		})
	}
	if len(hub.calls) != 0 {
		t.Errorf("got %d broadcasts, want 0", len(hub.calls))
	}
}
