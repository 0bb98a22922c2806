package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/stockpulse/market-data/internal/bus"
	"github.com/stockpulse/market-data/internal/model"
	"github.com/stockpulse/market-data/internal/streamlog"
)

// TradeWriter consumes the trades topic, persists batches to Postgres,
// and republishes committed trades to the realtime trade stream.
//
// Each symbol carries a running volume: the sum of trade sizes in
// observed order. The writer re-seeds it from the last persisted row on
// first observation, so the sum survives restarts.
type TradeWriter struct {
	cfg     WriterConfig
	source  RecordSource
	store   Store
	streams StreamAppender
	health  *Health
	logger  *slog.Logger

	// Per-symbol state, updated only after a successful flush.
	volumes map[int64]decimal.Decimal
	lastTS  map[int64]time.Time

	mu      sync.Mutex
	metrics WriterMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTradeWriter creates a trade writer; Start begins consumption.
func NewTradeWriter(cfg WriterConfig, source RecordSource, store Store, streams StreamAppender, health *Health, logger *slog.Logger) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeWriter{
		cfg:     cfg,
		source:  source,
		store:   store,
		streams: streams,
		health:  health,
		logger:  logger.With("writer", "trades"),
		volumes: make(map[int64]decimal.Decimal),
		lastTS:  make(map[int64]time.Time),
	}
}

// Start begins the consume loop.
func (w *TradeWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("trade writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop flushes nothing extra: buffered trades whose offsets were never
// committed are redelivered on restart, and the unique constraint makes
// the replay harmless.
func (w *TradeWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("trade writer stopped")
	case <-ctx.Done():
		w.logger.Warn("trade writer stop timed out")
	}
	return nil
}

// Metrics returns a snapshot of writer counters.
func (w *TradeWriter) Metrics() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *TradeWriter) run() {
	defer w.wg.Done()

	var (
		buffer   []model.Trade
		records  []*kgo.Record
		deadline time.Time
	)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		recs, err := w.source.Poll(w.ctx)
		if err != nil {
			return
		}

		for _, rec := range recs {
			records = append(records, rec)

			var trade model.Trade
			if err := json.Unmarshal(rec.Value, &trade); err != nil {
				w.drop("malformed trade message", err, rec)
				continue
			}
			trade.Symbol = model.NormalizeTicker(trade.Symbol)
			if err := trade.Validate(); err != nil {
				w.drop("invalid trade", err, rec)
				continue
			}
			buffer = append(buffer, trade)
			if len(buffer) == 1 {
				deadline = time.Now().Add(w.cfg.FlushInterval)
			}
		}

		switch {
		case len(buffer) >= w.cfg.BatchSize:
		case len(buffer) > 0 && !time.Now().Before(deadline):
		case len(buffer) == 0 && len(records) > 0:
			// Only dropped messages since the last flush; ack them so
			// the group does not re-deliver garbage forever.
			w.commit(records)
			records = nil
			continue
		default:
			continue
		}

		w.flush(buffer, records)
		buffer = nil
		records = nil
	}
}

func (w *TradeWriter) drop(msg string, err error, rec *kgo.Record) {
	w.logger.Warn(msg,
		"error", err,
		"partition", rec.Partition,
		"offset", rec.Offset,
	)
	w.mu.Lock()
	w.metrics.Dropped++
	w.mu.Unlock()
}

// flush persists the buffer and republishes it, retrying with
// exponential backoff until both succeed or the writer is stopped. A
// database error or a stream append error both fail the attempt;
// offsets are committed only after every row is durable and every
// non-late row is on the stream, so a crash or outage mid-flush replays
// the batch instead of losing it.
func (w *TradeWriter) flush(trades []model.Trade, records []*kgo.Record) {
	delay := w.cfg.RetryBaseDelay

	var (
		rows     []TradeRow
		inserted bool
		pub      int
	)

	for {
		var err error
		if !inserted {
			var next map[int64]symbolState
			var conflicts int
			rows, next, err = w.buildRows(w.ctx, trades)
			if err == nil {
				conflicts, err = w.store.InsertTrades(w.ctx, rows)
				if err == nil {
					inserted = true
					for id, st := range next {
						w.volumes[id] = st.volume
						w.lastTS[id] = st.lastTS
					}
					w.mu.Lock()
					w.metrics.Inserts += int64(len(rows) - conflicts)
					w.metrics.Conflicts += int64(conflicts)
					w.mu.Unlock()
				}
			}
		}

		if inserted {
			// Retries resume from the first unpublished row; rows
			// already appended are not re-sent.
			pub, err = w.republish(rows, pub)
			if err == nil {
				w.health.Reset()
				w.mu.Lock()
				w.metrics.Flushes++
				w.mu.Unlock()
				w.logger.Info("trade batch flushed",
					"rows", len(rows),
					"published", pub,
				)
				w.commit(records)
				return
			}
		}

		failures := w.health.Fail()
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		w.logger.Error("trade flush failed",
			"error", err,
			"rows", len(trades),
			"consecutive_failures", failures,
			"retry_in", delay,
		)

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > w.cfg.RetryMaxDelay {
			delay = w.cfg.RetryMaxDelay
		}
	}
}

// symbolState is the per-symbol running state staged during a flush and
// merged into the writer's maps only when the insert succeeds.
type symbolState struct {
	volume decimal.Decimal
	lastTS time.Time
}

// buildRows resolves symbols, drops in-batch duplicates of the
// idempotency key, and assigns running volumes. A row whose key is
// already persisted (a redelivery) keeps the current running volume:
// its size was added when the original receipt landed, and the stored
// prefix sums would drift if it were counted twice. It mutates nothing
// on the writer; the staged state is merged only after a successful
// insert.
func (w *TradeWriter) buildRows(ctx context.Context, trades []model.Trade) ([]TradeRow, map[int64]symbolState, error) {
	rows := make([]TradeRow, 0, len(trades))
	seen := make(map[string]struct{}, len(trades))

	for _, t := range trades {
		id, err := w.store.ResolveSymbol(ctx, t.Symbol)
		if err != nil {
			return nil, nil, err
		}

		price := decimal.NewFromFloat(t.Price)
		size := decimal.NewFromFloat(t.Size)

		key := fmt.Sprintf("%d|%d|%s|%s", id, t.Timestamp, price, size)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rows = append(rows, TradeRow{
			SymbolID: id,
			Ticker:   t.Symbol,
			TS:       time.UnixMilli(t.Timestamp).UTC(),
			Price:    price,
			Size:     size,
			record:   t,
		})
	}

	persisted, err := w.store.TradesExist(ctx, rows)
	if err != nil {
		return nil, nil, err
	}

	next := make(map[int64]symbolState)
	for i := range rows {
		row := &rows[i]

		st, ok := next[row.SymbolID]
		if !ok {
			if st, err = w.seedState(ctx, row.SymbolID); err != nil {
				return nil, nil, err
			}
		}

		if persisted[i] {
			row.Duplicate = true
		} else {
			st.volume = st.volume.Add(row.Size)
		}
		row.Late = row.TS.Before(st.lastTS)
		if !row.Late {
			st.lastTS = row.TS
		}
		next[row.SymbolID] = st

		row.Volume = st.volume
		row.record.Volume, _ = st.volume.Float64()
	}

	return rows, next, nil
}

// seedState loads a symbol's running volume from its most recent
// persisted row, falling back to zero for a first-seen symbol.
func (w *TradeWriter) seedState(ctx context.Context, symbolID int64) (symbolState, error) {
	if vol, ok := w.volumes[symbolID]; ok {
		return symbolState{volume: vol, lastTS: w.lastTS[symbolID]}, nil
	}

	last, err := w.store.LastTradeFor(ctx, symbolID)
	if err != nil {
		return symbolState{}, err
	}
	if !last.Found {
		return symbolState{volume: decimal.Zero}, nil
	}
	return symbolState{volume: last.Volume, lastTS: last.TS}, nil
}

// republish appends every non-late row from index from onward,
// returning the resume index. Duplicate receipts are still appended: a
// replayed message means downstream may have missed it too. A failed
// append stops here so the flush retries the remainder.
func (w *TradeWriter) republish(rows []TradeRow, from int) (int, error) {
	for i := from; i < len(rows); i++ {
		row := rows[i]
		if row.Late {
			continue
		}
		payload, err := json.Marshal(row.record)
		if err != nil {
			w.logger.Error("encode trade for republication", "error", err, "symbol", row.Ticker)
			continue
		}
		if err := w.streams.Append(w.ctx, streamlog.StreamTrades, row.Ticker, payload); err != nil {
			return i, fmt.Errorf("append %s to %s: %w", row.Ticker, streamlog.StreamTrades, err)
		}
	}
	return len(rows), nil
}

func (w *TradeWriter) commit(records []*kgo.Record) {
	if err := w.source.Commit(w.ctx, records); err != nil {
		// Uncommitted offsets mean redelivery, which the unique
		// constraint absorbs.
		w.logger.Error("offset commit failed", "error", err, "group", bus.GroupTradesPersist)
	}
}
