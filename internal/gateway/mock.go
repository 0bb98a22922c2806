package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/stockpulse/market-data/internal/bridge"
	"github.com/stockpulse/market-data/internal/model"
)

// mockState is one symbol's synthetic tape.
type mockState struct {
	price  float64
	open   float64
	high   float64
	low    float64
	volume float64
	trades int64
	minute time.Time
}

// MockEmitter synthesizes trades and bars directly into the hub when
// the gateway runs without the pipeline behind it. Prices follow a
// bounded random walk; a bar is emitted when a symbol's minute rolls
// over.
type MockEmitter struct {
	hub      bridge.Broadcaster
	symbols  []string
	interval time.Duration
	logger   *slog.Logger

	rng   *rand.Rand
	state map[string]*mockState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var mockBasePrices = map[string]float64{
	"AAPL":  178.50,
	"MSFT":  412.30,
	"GOOGL": 141.80,
	"AMZN":  178.90,
	"TSLA":  248.40,
	"NVDA":  131.25,
}

// NewMockEmitter creates an emitter for the given symbols.
func NewMockEmitter(hub bridge.Broadcaster, symbols []string, interval time.Duration, logger *slog.Logger) *MockEmitter {
	if logger == nil {
		logger = slog.Default()
	}

	state := make(map[string]*mockState, len(symbols))
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := model.NormalizeTicker(s)
		if sym == "" {
			continue
		}
		price, ok := mockBasePrices[sym]
		if !ok {
			price = 100.0
		}
		state[sym] = &mockState{price: price, open: price, high: price, low: price}
		normalized = append(normalized, sym)
	}

	return &MockEmitter{
		hub:      hub,
		symbols:  normalized,
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    state,
	}
}

// Start begins emitting.
func (m *MockEmitter) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("mock emitter started",
		"symbols", m.symbols,
		"interval", m.interval,
	)
	return nil
}

// Stop halts emission.
func (m *MockEmitter) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("mock emitter stopped")
	case <-ctx.Done():
		m.logger.Warn("mock emitter stop timed out")
	}
	return nil
}

func (m *MockEmitter) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			for _, sym := range m.symbols {
				m.tick(sym, now)
			}
		}
	}
}

// tick advances one symbol: emit a trade, accumulate the current bar,
// and flush the bar when the minute changes.
func (m *MockEmitter) tick(symbol string, now time.Time) {
	st := m.state[symbol]

	// Walk up to ±0.25% per tick.
	st.price *= 1 + (m.rng.Float64()-0.5)*0.005
	size := float64(m.rng.Intn(900) + 100)

	minute := now.Truncate(time.Minute)
	if st.minute.IsZero() {
		m.resetBar(st, minute)
	} else if minute.After(st.minute) {
		m.emitBar(symbol, st)
		m.resetBar(st, minute)
	}

	if st.price > st.high {
		st.high = st.price
	}
	if st.price < st.low {
		st.low = st.price
	}
	st.volume += size
	st.trades++

	trade := model.Trade{
		Symbol:    symbol,
		Price:     round2(st.price),
		Size:      size,
		Timestamp: now.UnixMilli(),
		Type:      model.TypeTrade,
	}
	m.broadcast(symbol, bridge.EventTradeUpdate, trade)
}

func (m *MockEmitter) resetBar(st *mockState, minute time.Time) {
	st.minute = minute
	st.open = st.price
	st.high = st.price
	st.low = st.price
	st.volume = 0
	st.trades = 0
}

func (m *MockEmitter) emitBar(symbol string, st *mockState) {
	bar := model.Bar{
		Symbol:     symbol,
		Timeframe:  model.DefaultTimeframe,
		Open:       round2(st.open),
		High:       round2(st.high),
		Low:        round2(st.low),
		Close:      round2(st.price),
		Volume:     st.volume,
		Timestamp:  st.minute.Add(time.Minute).UnixMilli(),
		TradeCount: st.trades,
		VWAP:       round2((st.open + st.high + st.low + st.price) / 4),
		Type:       model.TypeBar,
	}
	m.broadcast(symbol, bridge.EventBarUpdate, bar)
}

func (m *MockEmitter) broadcast(symbol, event string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("encode mock payload", "symbol", symbol, "error", err)
		return
	}
	m.hub.BroadcastToSymbol(symbol, event, payload)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
