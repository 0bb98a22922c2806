package streamlog

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func pendingBatch() []redis.XStream {
	return []redis.XStream{{
		Stream: StreamTrades,
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]interface{}{"symbol": "AAPL", "data": `{"type":"trade"}`}},
			{ID: "1-1", Values: map[string]interface{}{"symbol": "MSFT", "data": `{"type":"trade"}`}},
		},
	}}
}

func TestDispatch_CountsAcks(t *testing.T) {
	handled := 0
	c := NewGroupConsumer(
		DefaultGroupConsumerConfig([]string{StreamTrades}, "c1"),
		nil,
		func(context.Context, Entry) error { handled++; return nil },
		nil,
	)
	c.ctx = context.Background()

	acked := 0
	c.xack = func(stream, id string) error { acked++; return nil }

	if got := c.dispatch(pendingBatch()); got != 2 {
		t.Errorf("dispatch() = %d, want 2", got)
	}
	if handled != 2 || acked != 2 {
		t.Errorf("handled = %d, acked = %d, want 2 each", handled, acked)
	}
}

// A handler that keeps failing must report zero progress so the pending
// drain falls through to tailing instead of spinning on the same
// entries forever.
func TestDispatch_FailingHandlerMakesNoProgress(t *testing.T) {
	c := NewGroupConsumer(
		DefaultGroupConsumerConfig([]string{StreamTrades}, "c1"),
		nil,
		func(context.Context, Entry) error { return errors.New("hub unavailable") },
		nil,
	)
	c.ctx = context.Background()

	c.xack = func(stream, id string) error {
		t.Errorf("unexpected ack of %s/%s", stream, id)
		return nil
	}

	if got := c.dispatch(pendingBatch()); got != 0 {
		t.Errorf("dispatch() = %d, want 0", got)
	}
}

// Malformed entries are acked even when the handler would fail, so a
// poisoned entry cannot wedge the pending list.
func TestDispatch_MalformedEntryStillAcked(t *testing.T) {
	c := NewGroupConsumer(
		DefaultGroupConsumerConfig([]string{StreamTrades}, "c1"),
		nil,
		func(context.Context, Entry) error { return errors.New("hub unavailable") },
		nil,
	)
	c.ctx = context.Background()

	acked := 0
	c.xack = func(stream, id string) error { acked++; return nil }

	streams := []redis.XStream{{
		Stream:   StreamTrades,
		Messages: []redis.XMessage{{ID: "1-0", Values: map[string]interface{}{"data": "{}"}}},
	}}
	if got := c.dispatch(streams); got != 1 {
		t.Errorf("dispatch() = %d, want 1", got)
	}
	if acked != 1 {
		t.Errorf("acked = %d, want 1", acked)
	}
}
