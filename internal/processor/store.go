package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on a pgx connection pool. Symbol lookups are
// cached in memory; the cache is updated only after a successful insert.
type PGStore struct {
	db *pgxpool.Pool

	mu      sync.RWMutex
	symbols map[string]int64 // ticker → symbol_id
}

// NewPGStore creates a store over an existing pool.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{
		db:      db,
		symbols: make(map[string]int64),
	}
}

// ResolveSymbol returns the symbol_id for a ticker using a get-or-insert
// protocol: select, insert-on-conflict-do-nothing, select again. The
// second select covers the race where another processor inserted first.
func (s *PGStore) ResolveSymbol(ctx context.Context, ticker string) (int64, error) {
	s.mu.RLock()
	id, ok := s.symbols[ticker]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	err := s.db.QueryRow(ctx,
		`SELECT symbol_id FROM symbols WHERE ticker = $1`, ticker,
	).Scan(&id)
	if err == nil {
		s.cache(ticker, id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("select symbol %s: %w", ticker, err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO symbols (ticker) VALUES ($1)
		 ON CONFLICT (ticker) DO NOTHING
		 RETURNING symbol_id`, ticker,
	).Scan(&id)
	if err == nil {
		s.cache(ticker, id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert symbol %s: %w", ticker, err)
	}

	// Lost the insert race; the row exists now.
	err = s.db.QueryRow(ctx,
		`SELECT symbol_id FROM symbols WHERE ticker = $1`, ticker,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reselect symbol %s: %w", ticker, err)
	}
	s.cache(ticker, id)
	return id, nil
}

func (s *PGStore) cache(ticker string, id int64) {
	s.mu.Lock()
	s.symbols[ticker] = id
	s.mu.Unlock()
}

// LastTradeFor returns the max-timestamp trade row for a symbol.
func (s *PGStore) LastTradeFor(ctx context.Context, symbolID int64) (LastTrade, error) {
	var last LastTrade
	err := s.db.QueryRow(ctx,
		`SELECT volume, ts FROM trades
		 WHERE symbol_id = $1
		 ORDER BY ts DESC, trade_id DESC
		 LIMIT 1`, symbolID,
	).Scan(&last.Volume, &last.TS)
	if errors.Is(err, pgx.ErrNoRows) {
		return LastTrade{}, nil
	}
	if err != nil {
		return LastTrade{}, fmt.Errorf("last trade for symbol %d: %w", symbolID, err)
	}
	last.Found = true
	return last, nil
}

// TradesExist checks each row's idempotency key against the trades
// table in one batched round trip.
func (s *PGStore) TradesExist(ctx context.Context, rows []TradeRow) ([]bool, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			SELECT EXISTS (
				SELECT 1 FROM trades
				WHERE symbol_id = $1 AND ts = $2 AND price = $3 AND size = $4
			)
		`, r.SymbolID, r.TS, r.Price, r.Size)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	out := make([]bool, len(rows))
	for i := range rows {
		if err := results.QueryRow().Scan(&out[i]); err != nil {
			return nil, fmt.Errorf("trade existence check: %w", err)
		}
	}
	return out, nil
}

// InsertTrades bulk-inserts trades with the idempotency key conflict
// ignored. Duplicate receipts therefore never produce duplicate rows.
func (s *PGStore) InsertTrades(ctx context.Context, rows []TradeRow) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trades (symbol_id, ts, price, size, volume)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (symbol_id, ts, price, size) DO NOTHING
		`, r.SymbolID, r.TS, r.Price, r.Size, r.Volume)
	}

	return s.sendBatch(ctx, batch, len(rows))
}

// InsertBars bulk-inserts bars with the idempotency key conflict ignored.
func (s *PGStore) InsertBars(ctx context.Context, rows []BarRow) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO bars (symbol_id, timeframe, ts, open, high, low, close, volume, trade_count, vwap)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (symbol_id, ts, timeframe) DO NOTHING
		`, r.SymbolID, r.Timeframe, r.TS, r.Open, r.High, r.Low, r.Close, r.Volume, r.TradeCount, r.VWAP)
	}

	return s.sendBatch(ctx, batch, len(rows))
}

func (s *PGStore) sendBatch(ctx context.Context, batch *pgx.Batch, n int) (int, error) {
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for i := 0; i < n; i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
