package processor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/stockpulse/market-data/internal/model"
)

// WriterConfig holds batching and retry settings shared by both writers.
type WriterConfig struct {
	BatchSize      int           // flush when the buffer reaches this size
	FlushInterval  time.Duration // flush when the oldest buffered message is this old
	RetryBaseDelay time.Duration // first retry wait after a failed flush
	RetryMaxDelay  time.Duration // retry wait cap
	DegradedAfter  int           // consecutive failures before health degrades
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:      100,
		FlushInterval:  1 * time.Second,
		RetryBaseDelay: 1 * time.Second,
		RetryMaxDelay:  15 * time.Second,
		DegradedAfter:  5,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Dropped   int64 // malformed or invalid messages
	Errors    int64
}

// RecordSource is the bus consumer surface the writers depend on.
type RecordSource interface {
	Poll(ctx context.Context) ([]*kgo.Record, error)
	Commit(ctx context.Context, recs []*kgo.Record) error
}

// StreamAppender is the fan-out log surface the writers depend on.
type StreamAppender interface {
	Append(ctx context.Context, stream, symbol string, payload []byte) error
}

// TradeRow is a trade prepared for insertion.
type TradeRow struct {
	SymbolID  int64
	Ticker    string
	TS        time.Time
	Price     decimal.Decimal
	Size      decimal.Decimal
	Volume    decimal.Decimal // per-symbol running sum assigned at flush
	Late      bool            // ts below the symbol's last persisted row; not republished
	Duplicate bool            // idempotency key already persisted; size not re-added

	record model.Trade // republication payload
}

// BarRow is a bar prepared for insertion.
type BarRow struct {
	SymbolID   int64
	Ticker     string
	Timeframe  string
	TS         time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int64
	VWAP       decimal.Decimal

	record model.Bar
}

// LastTrade is the most recently persisted trade row for a symbol, used
// to re-seed the running volume after a restart.
type LastTrade struct {
	Volume decimal.Decimal
	TS     time.Time
	Found  bool
}

// Store is the persistence surface the writers depend on.
type Store interface {
	// ResolveSymbol returns the symbol_id for a ticker, inserting the
	// symbol on first observation.
	ResolveSymbol(ctx context.Context, ticker string) (int64, error)

	// LastTradeFor returns the max-timestamp trade row for a symbol.
	LastTradeFor(ctx context.Context, symbolID int64) (LastTrade, error)

	// TradesExist reports, per row, whether its idempotency key is
	// already persisted. A redelivered duplicate's size is part of the
	// stored running volume already and must not be added again.
	TradesExist(ctx context.Context, rows []TradeRow) ([]bool, error)

	// InsertTrades bulk-inserts with the idempotency conflict ignored.
	// Returns the number of rows suppressed as duplicates.
	InsertTrades(ctx context.Context, rows []TradeRow) (conflicts int, err error)

	// InsertBars bulk-inserts with the idempotency conflict ignored.
	InsertBars(ctx context.Context, rows []BarRow) (conflicts int, err error)
}
