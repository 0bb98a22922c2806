package bus

import (
	"encoding/json"
	"testing"

	"github.com/stockpulse/market-data/internal/model"
)

func TestEncodeRecord_TradeKeyedByTicker(t *testing.T) {
	trade := model.Trade{
		Symbol:    "AAPL",
		Price:     150.25,
		Size:      100,
		Timestamp: 1736937000000,
		Type:      model.TypeTrade,
	}

	rec, err := encodeRecord(TopicTrades, trade.Symbol, trade)
	if err != nil {
		t.Fatalf("encodeRecord() error = %v", err)
	}

	if rec.Topic != "stock_trades_realtime" {
		t.Errorf("Topic = %q", rec.Topic)
	}
	if string(rec.Key) != "AAPL" {
		t.Errorf("Key = %q, want AAPL", rec.Key)
	}

	var got model.Trade
	if err := json.Unmarshal(rec.Value, &got); err != nil {
		t.Fatalf("Unmarshal value: %v", err)
	}
	if got != trade {
		t.Errorf("round trip = %+v, want %+v", got, trade)
	}
}

func TestEncodeRecord_NormalizesKey(t *testing.T) {
	rec, err := encodeRecord(TopicBars, "msft", model.Bar{Symbol: "MSFT"})
	if err != nil {
		t.Fatalf("encodeRecord() error = %v", err)
	}
	if string(rec.Key) != "MSFT" {
		t.Errorf("Key = %q, want MSFT", rec.Key)
	}
	if rec.Topic != "stock_bars_staging" {
		t.Errorf("Topic = %q", rec.Topic)
	}
}

func TestEncodeRecord_TypeDiscriminatorOnWire(t *testing.T) {
	rec, err := encodeRecord(TopicBars, "MSFT", model.Bar{
		Symbol: "MSFT", Open: 10, High: 12, Low: 9, Close: 11,
		Timestamp: 1736937000000, Type: model.TypeBar,
	})
	if err != nil {
		t.Fatalf("encodeRecord() error = %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(rec.Value, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "bar" {
		t.Errorf(`value["type"] = %v, want "bar"`, m["type"])
	}
}
