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

// BarWriter consumes the bars topic, persists batches to Postgres, and
// republishes committed bars to the realtime bar stream. Bars carry no
// running state, so it is the simpler sibling of TradeWriter.
type BarWriter struct {
	cfg     WriterConfig
	source  RecordSource
	store   Store
	streams StreamAppender
	health  *Health
	logger  *slog.Logger

	mu      sync.Mutex
	metrics WriterMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBarWriter creates a bar writer; Start begins consumption.
func NewBarWriter(cfg WriterConfig, source RecordSource, store Store, streams StreamAppender, health *Health, logger *slog.Logger) *BarWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BarWriter{
		cfg:     cfg,
		source:  source,
		store:   store,
		streams: streams,
		health:  health,
		logger:  logger.With("writer", "bars"),
	}
}

// Start begins the consume loop.
func (w *BarWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("bar writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the consume loop. Uncommitted offsets replay on
// restart and are absorbed by the unique constraint.
func (w *BarWriter) Stop(ctx context.Context) error {
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
		w.logger.Info("bar writer stopped")
	case <-ctx.Done():
		w.logger.Warn("bar writer stop timed out")
	}
	return nil
}

// Metrics returns a snapshot of writer counters.
func (w *BarWriter) Metrics() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *BarWriter) run() {
	defer w.wg.Done()

	var (
		buffer   []model.Bar
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

			var bar model.Bar
			if err := json.Unmarshal(rec.Value, &bar); err != nil {
				w.drop("malformed bar message", err, rec)
				continue
			}
			bar.Symbol = model.NormalizeTicker(bar.Symbol)
			bar.Timeframe = bar.TimeframeOrDefault()
			if err := bar.Validate(); err != nil {
				w.drop("invalid bar", err, rec)
				continue
			}
			buffer = append(buffer, bar)
			if len(buffer) == 1 {
				deadline = time.Now().Add(w.cfg.FlushInterval)
			}
		}

		switch {
		case len(buffer) >= w.cfg.BatchSize:
		case len(buffer) > 0 && !time.Now().Before(deadline):
		case len(buffer) == 0 && len(records) > 0:
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

func (w *BarWriter) drop(msg string, err error, rec *kgo.Record) {
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
// exponential backoff until both succeed or the writer is stopped.
// Offsets are committed only after every row is durable and on the
// stream; an outage on either side replays the batch.
func (w *BarWriter) flush(bars []model.Bar, records []*kgo.Record) {
	delay := w.cfg.RetryBaseDelay

	var (
		rows     []BarRow
		inserted bool
		pub      int
	)

	for {
		var err error
		if !inserted {
			var conflicts int
			rows, err = w.buildRows(w.ctx, bars)
			if err == nil {
				conflicts, err = w.store.InsertBars(w.ctx, rows)
				if err == nil {
					inserted = true
					w.mu.Lock()
					w.metrics.Inserts += int64(len(rows) - conflicts)
					w.metrics.Conflicts += int64(conflicts)
					w.mu.Unlock()
				}
			}
		}

		if inserted {
			pub, err = w.republish(rows, pub)
			if err == nil {
				w.health.Reset()
				w.mu.Lock()
				w.metrics.Flushes++
				w.mu.Unlock()
				w.logger.Info("bar batch flushed",
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
		w.logger.Error("bar flush failed",
			"error", err,
			"rows", len(bars),
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

// buildRows resolves symbols and drops in-batch duplicates of the
// idempotency key (symbol, ts, timeframe).
func (w *BarWriter) buildRows(ctx context.Context, bars []model.Bar) ([]BarRow, error) {
	rows := make([]BarRow, 0, len(bars))
	seen := make(map[string]struct{}, len(bars))

	for _, b := range bars {
		id, err := w.store.ResolveSymbol(ctx, b.Symbol)
		if err != nil {
			return nil, err
		}

		key := fmt.Sprintf("%d|%d|%s", id, b.Timestamp, b.Timeframe)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rows = append(rows, BarRow{
			SymbolID:   id,
			Ticker:     b.Symbol,
			Timeframe:  b.Timeframe,
			TS:         time.UnixMilli(b.Timestamp).UTC(),
			Open:       decimal.NewFromFloat(b.Open),
			High:       decimal.NewFromFloat(b.High),
			Low:        decimal.NewFromFloat(b.Low),
			Close:      decimal.NewFromFloat(b.Close),
			Volume:     decimal.NewFromFloat(b.Volume),
			TradeCount: b.TradeCount,
			VWAP:       decimal.NewFromFloat(b.VWAP),
			record:     b,
		})
	}

	return rows, nil
}

// republish appends every row from index from onward, returning the
// resume index. Duplicate receipts that conflicted in the database are
// still appended. A failed append stops here so the flush retries the
// remainder.
func (w *BarWriter) republish(rows []BarRow, from int) (int, error) {
	for i := from; i < len(rows); i++ {
		row := rows[i]
		payload, err := json.Marshal(row.record)
		if err != nil {
			w.logger.Error("encode bar for republication", "error", err, "symbol", row.Ticker)
			continue
		}
		if err := w.streams.Append(w.ctx, streamlog.StreamBars, row.Ticker, payload); err != nil {
			return i, fmt.Errorf("append %s to %s: %w", row.Ticker, streamlog.StreamBars, err)
		}
	}
	return len(rows), nil
}

func (w *BarWriter) commit(records []*kgo.Record) {
	if err := w.source.Commit(w.ctx, records); err != nil {
		w.logger.Error("offset commit failed", "error", err, "group", bus.GroupBarsPersist)
	}
}
