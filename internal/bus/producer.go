package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/stockpulse/market-data/internal/model"
)

// Producer publishes normalized records to the bus. Publishes are
// fire-and-forget: durability begins at the bus, and a failed publish is
// logged and dropped rather than blocking the feed.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer creates a bus producer.
func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{client: client, logger: logger}, nil
}

// HandleTrade publishes a trade keyed by ticker. Implements feed.Sink.
func (p *Producer) HandleTrade(trade model.Trade) {
	rec, err := encodeRecord(TopicTrades, trade.Symbol, trade)
	if err != nil {
		p.logger.Error("encode trade", "symbol", trade.Symbol, "error", err)
		return
	}
	p.produce(rec)
}

// HandleBar publishes a bar keyed by ticker. Implements feed.Sink.
func (p *Producer) HandleBar(bar model.Bar) {
	rec, err := encodeRecord(TopicBars, bar.Symbol, bar)
	if err != nil {
		p.logger.Error("encode bar", "symbol", bar.Symbol, "error", err)
		return
	}
	p.produce(rec)
}

func (p *Producer) produce(rec *kgo.Record) {
	p.client.Produce(context.Background(), rec, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("bus publish failed, dropping message",
				"topic", r.Topic,
				"key", string(r.Key),
				"error", err,
			)
		}
	})
}

// Close flushes outstanding produces and releases the client.
func (p *Producer) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close", "error", err)
	}
	p.client.Close()
}

// encodeRecord builds a bus record: JSON value, ticker key.
func encodeRecord(topic, key string, v any) (*kgo.Record, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(model.NormalizeTicker(key)),
		Value: value,
	}, nil
}
