package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAuthFailed      = errors.New("upstream authentication failed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Upstream WebSocket URL
	IdleTimeout  time.Duration // Max time without traffic before the connection is considered stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		IdleTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}

// Wire frames. Every upstream message is a JSON array of these.

// frameEnvelope is used for fast discriminator extraction.
type frameEnvelope struct {
	T string `json:"T"`
}

// authRequest is the in-band authentication command.
type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeRequest subscribes to trades and bars for a symbol set.
type subscribeRequest struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
	Bars   []string `json:"bars"`
}

// controlFrame covers "success", "error", and "subscription" frames.
type controlFrame struct {
	T      string   `json:"T"`
	Msg    string   `json:"msg"`
	Code   int      `json:"code"`
	Trades []string `json:"trades"`
	Bars   []string `json:"bars"`
}

// tradeFrame is the wire form of a trade ("T":"t").
type tradeFrame struct {
	T         string  `json:"T"`
	Symbol    string  `json:"S"`
	Price     float64 `json:"p"`
	Size      float64 `json:"s"`
	Timestamp string  `json:"t"` // ISO-8601
}

// barFrame is the wire form of a bar ("T":"b").
type barFrame struct {
	T          string  `json:"T"`
	Symbol     string  `json:"S"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
	Timestamp  string  `json:"t"` // ISO-8601, bar close time
	TradeCount int64   `json:"n"`
	VWAP       float64 `json:"vw"`
}
