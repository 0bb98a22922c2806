package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockpulse/market-data/internal/model"
)

// parseFrames splits a raw upstream message into individual frames. The
// upstream batches frames into JSON arrays; single objects also occur.
func parseFrames(data []byte) ([]json.RawMessage, error) {
	var frames []json.RawMessage
	if err := json.Unmarshal(data, &frames); err == nil {
		return frames, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	return []json.RawMessage{single}, nil
}

// frameKind extracts the "T" discriminator without a full parse.
func frameKind(raw json.RawMessage) (string, error) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.T, nil
}

// normalizeTrade converts a wire trade frame into the internal record:
// ISO-8601 timestamp to epoch milliseconds, ticker to upper case.
func normalizeTrade(raw json.RawMessage) (model.Trade, error) {
	var wire tradeFrame
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.Trade{}, err
	}

	ms, err := parseEventTime(wire.Timestamp)
	if err != nil {
		return model.Trade{}, fmt.Errorf("trade %s: %w", wire.Symbol, err)
	}

	return model.Trade{
		Symbol:    model.NormalizeTicker(wire.Symbol),
		Price:     wire.Price,
		Size:      wire.Size,
		Timestamp: ms,
		Type:      model.TypeTrade,
	}, nil
}

// normalizeBar converts a wire bar frame into the internal record.
func normalizeBar(raw json.RawMessage) (model.Bar, error) {
	var wire barFrame
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.Bar{}, err
	}

	ms, err := parseEventTime(wire.Timestamp)
	if err != nil {
		return model.Bar{}, fmt.Errorf("bar %s: %w", wire.Symbol, err)
	}

	return model.Bar{
		Symbol:     model.NormalizeTicker(wire.Symbol),
		Timeframe:  model.DefaultTimeframe,
		Open:       wire.Open,
		High:       wire.High,
		Low:        wire.Low,
		Close:      wire.Close,
		Volume:     wire.Volume,
		Timestamp:  ms,
		TradeCount: wire.TradeCount,
		VWAP:       wire.VWAP,
		Type:       model.TypeBar,
	}, nil
}

// parseEventTime converts an upstream ISO-8601 timestamp to epoch
// milliseconds.
func parseEventTime(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}
