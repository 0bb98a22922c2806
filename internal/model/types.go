package model

import (
	"errors"
	"fmt"
	"strings"
)

// Payload type discriminators. Every message carried on the bus and the
// fan-out streams includes one of these in its "type" field.
const (
	TypeTrade = "trade"
	TypeBar   = "bar"
)

// DefaultTimeframe is the bar timeframe emitted by the upstream feed.
const DefaultTimeframe = "1m"

// Validation errors.
var (
	ErrMissingSymbol = errors.New("missing symbol")
	ErrBadPrice      = errors.New("price must be positive")
	ErrBadSize       = errors.New("size must be non-negative")
	ErrBadTimestamp  = errors.New("timestamp must be positive")
)

// Trade is a single normalized trade observation.
//
// Volume is the per-symbol running sum of Size in observed order. It is
// zero until the Stream Processor assigns it during persistence; upstream
// of the processor the field is omitted from JSON.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
	Volume    float64 `json:"volume,omitempty"`
	Type      string  `json:"type"`
}

// Validate checks the trade against the persistence invariants.
func (t *Trade) Validate() error {
	if t.Symbol == "" {
		return ErrMissingSymbol
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade %s: %w (got %v)", t.Symbol, ErrBadPrice, t.Price)
	}
	if t.Size < 0 {
		return fmt.Errorf("trade %s: %w (got %v)", t.Symbol, ErrBadSize, t.Size)
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("trade %s: %w (got %d)", t.Symbol, ErrBadTimestamp, t.Timestamp)
	}
	return nil
}

// Bar is a normalized OHLC observation at a fixed timeframe.
type Bar struct {
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe,omitempty"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	Timestamp  int64   `json:"timestamp"` // bar close time, epoch milliseconds
	TradeCount int64   `json:"trade_count"`
	VWAP       float64 `json:"vwap"`
	Type       string  `json:"type"`
}

// Validate enforces the OHLC ordering invariant:
// low <= min(open, close) <= max(open, close) <= high.
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return ErrMissingSymbol
	}
	if b.Timestamp <= 0 {
		return fmt.Errorf("bar %s: %w (got %d)", b.Symbol, ErrBadTimestamp, b.Timestamp)
	}
	lo, hi := b.Open, b.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if b.Low > lo {
		return fmt.Errorf("bar %s: low %v above open/close %v", b.Symbol, b.Low, lo)
	}
	if b.High < hi {
		return fmt.Errorf("bar %s: high %v below open/close %v", b.Symbol, b.High, hi)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %v", b.Symbol, b.Volume)
	}
	if b.TradeCount < 0 {
		return fmt.Errorf("bar %s: negative trade count %d", b.Symbol, b.TradeCount)
	}
	return nil
}

// TimeframeOrDefault returns the bar timeframe, defaulting to "1m".
func (b *Bar) TimeframeOrDefault() string {
	if b.Timeframe == "" {
		return DefaultTimeframe
	}
	return b.Timeframe
}

// NormalizeTicker converts a ticker to its canonical upper-case form.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
