package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stockpulse/market-data/internal/config"
	"github.com/stockpulse/market-data/internal/model"
)

type captureSink struct {
	trades []model.Trade
	bars   []model.Bar
}

func (s *captureSink) HandleTrade(t model.Trade) { s.trades = append(s.trades, t) }
func (s *captureSink) HandleBar(b model.Bar)     { s.bars = append(s.bars, b) }

func testManager(sink Sink) *Manager {
	cfg := config.UpstreamConfig{
		URL:                "wss://feed.test/v2",
		Key:                "k",
		Secret:             "s",
		Symbols:            []string{"AAPL", "MSFT"},
		ReconnectBaseDelay: time.Millisecond,
		ReconnectMaxDelay:  10 * time.Millisecond,
	}
	return NewManager(cfg, sink, slog.Default())
}

func TestHandleMessage_TradeNormalization(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	m.handleMessage([]byte(`[{"T":"t","S":"aapl","p":150.25,"s":100,"t":"2025-01-15T10:30:00Z"}]`))

	if len(sink.trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(sink.trades))
	}
	tr := sink.trades[0]
	if tr.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL (upper-cased)", tr.Symbol)
	}
	if tr.Price != 150.25 || tr.Size != 100 {
		t.Errorf("Price/Size = %v/%v", tr.Price, tr.Size)
	}
	want := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC).UnixMilli()
	if tr.Timestamp != want {
		t.Errorf("Timestamp = %d, want %d", tr.Timestamp, want)
	}
	if tr.Type != model.TypeTrade {
		t.Errorf("Type = %q, want trade", tr.Type)
	}
	if tr.Volume != 0 {
		t.Errorf("Volume = %v, want 0 before persistence", tr.Volume)
	}
}

func TestHandleMessage_BarNormalization(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	m.handleMessage([]byte(`[{"T":"b","S":"msft","o":10,"h":12,"l":9,"c":11,"v":1000,"t":"2025-01-15T10:31:00Z","n":42,"vw":10.6}]`))

	if len(sink.bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(sink.bars))
	}
	b := sink.bars[0]
	if b.Symbol != "MSFT" {
		t.Errorf("Symbol = %q, want MSFT", b.Symbol)
	}
	if b.Open != 10 || b.High != 12 || b.Low != 9 || b.Close != 11 {
		t.Errorf("OHLC = %v/%v/%v/%v", b.Open, b.High, b.Low, b.Close)
	}
	if b.TradeCount != 42 || b.VWAP != 10.6 {
		t.Errorf("TradeCount/VWAP = %d/%v", b.TradeCount, b.VWAP)
	}
	if b.Timeframe != "1m" {
		t.Errorf("Timeframe = %q, want 1m", b.Timeframe)
	}
	if b.Type != model.TypeBar {
		t.Errorf("Type = %q, want bar", b.Type)
	}
}

func TestHandleMessage_ControlAndUnknownFramesDropped(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	m.handleMessage([]byte(`[{"T":"success","msg":"connected"}]`))
	m.handleMessage([]byte(`[{"T":"subscription","trades":["AAPL"],"bars":["AAPL"]}]`))
	m.handleMessage([]byte(`[{"T":"q","S":"AAPL","bp":150.2,"ap":150.3}]`))
	m.handleMessage([]byte(`not json at all`))

	if len(sink.trades) != 0 || len(sink.bars) != 0 {
		t.Errorf("control/unknown frames produced records: %d trades, %d bars",
			len(sink.trades), len(sink.bars))
	}
}

func TestHandleMessage_MixedBatch(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	m.handleMessage([]byte(`[
		{"T":"t","S":"AAPL","p":150.25,"s":100,"t":"2025-01-15T10:30:00Z"},
		{"T":"b","S":"MSFT","o":10,"h":12,"l":9,"c":11,"v":1000,"t":"2025-01-15T10:31:00Z"},
		{"T":"t","S":"AAPL","p":150.30,"s":50,"t":"2025-01-15T10:30:01Z"}
	]`))

	if len(sink.trades) != 2 {
		t.Errorf("got %d trades, want 2", len(sink.trades))
	}
	if len(sink.bars) != 1 {
		t.Errorf("got %d bars, want 1", len(sink.bars))
	}
	// Receive order preserved within the batch
	if len(sink.trades) == 2 && sink.trades[1].Size != 50 {
		t.Errorf("trade order not preserved: %v", sink.trades)
	}
}

func TestHandleMessage_BadTimestampDropped(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	m.handleMessage([]byte(`[{"T":"t","S":"AAPL","p":150.25,"s":100,"t":"yesterday"}]`))

	if len(sink.trades) != 0 {
		t.Errorf("trade with bad timestamp should be dropped, got %v", sink.trades)
	}
}

func TestClassifyAuthFrames(t *testing.T) {
	authed, err := classifyAuthFrames([]byte(`[{"T":"success","msg":"authenticated"}]`))
	if err != nil || !authed {
		t.Errorf("authenticated frame: authed=%v err=%v", authed, err)
	}

	authed, err = classifyAuthFrames([]byte(`[{"T":"success","msg":"connected"}]`))
	if err != nil || authed {
		t.Errorf("connected frame should not authenticate: authed=%v err=%v", authed, err)
	}

	_, err = classifyAuthFrames([]byte(`[{"T":"error","code":402,"msg":"auth failed"}]`))
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("error frame during auth: err = %v, want ErrAuthFailed", err)
	}
}

// fakeClient scripts a connection for Run-loop tests.
type fakeClient struct {
	messages chan TimestampedMessage
	errors   chan error
	sent     [][]byte
	closed   bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 16),
		errors:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error     { return nil }
func (f *fakeClient) Close() error                          { f.closed = true; return nil }
func (f *fakeClient) Send(data []byte) error                { f.sent = append(f.sent, data); return nil }
func (f *fakeClient) Messages() <-chan TimestampedMessage   { return f.messages }
func (f *fakeClient) Errors() <-chan error                  { return f.errors }
func (f *fakeClient) IsConnected() bool                     { return !f.closed }

func (f *fakeClient) push(data string) {
	f.messages <- TimestampedMessage{Data: []byte(data), ReceivedAt: time.Now()}
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	m.dial = func(ctx context.Context) (Client, error) {
		fc := newFakeClient()
		fc.push(`[{"T":"error","code":402,"msg":"auth failed"}]`)
		return fc, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := m.Run(ctx)
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Run() error = %v, want ErrAuthFailed", err)
	}
}

func TestRun_ReconnectsAfterConnectionLoss(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)

	var dials atomic.Int32
	m.dial = func(ctx context.Context) (Client, error) {
		n := dials.Add(1)
		fc := newFakeClient()
		fc.push(`[{"T":"success","msg":"authenticated"}]`)
		if n == 1 {
			// First session delivers one trade then drops.
			fc.push(`[{"T":"t","S":"AAPL","p":150.25,"s":100,"t":"2025-01-15T10:30:00Z"}]`)
			go func() {
				time.Sleep(10 * time.Millisecond)
				fc.errors <- errors.New("connection reset")
			}()
		}
		return fc, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for dials.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("manager did not reconnect, dials = %d", dials.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if len(sink.trades) != 1 {
		t.Errorf("got %d trades across sessions, want 1", len(sink.trades))
	}
}

func TestSubscribePayload(t *testing.T) {
	sink := &captureSink{}
	m := testManager(sink)
	fc := newFakeClient()

	if err := m.subscribe(fc); err != nil {
		t.Fatalf("subscribe() error = %v", err)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fc.sent))
	}
	got := string(fc.sent[0])
	want := `{"action":"subscribe","trades":["AAPL","MSFT"],"bars":["AAPL","MSFT"]}`
	if got != want {
		t.Errorf("subscribe payload = %s, want %s", got, want)
	}
}
