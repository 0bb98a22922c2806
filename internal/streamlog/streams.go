package streamlog

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/stockpulse/market-data/internal/config"
)

// Stream names shared by the processor (producer side) and the gateway
// bridge (consumer side).
const (
	StreamTrades = "market:realtime:trades"
	StreamBars   = "market:realtime:bars"
)

// GatewayGroup is the durable consumer group used by gateway instances.
const GatewayGroup = "gateway_stream_consumers"

// Entry field names.
const (
	fieldSymbol = "symbol"
	fieldData   = "data"
)

// Entry is one fan-out log record.
type Entry struct {
	ID     string // stream entry id
	Stream string
	Symbol string
	Data   []byte // JSON payload including "type"
}

// entryFromValues decodes the named fields of a stream entry. Both fields
// are required; Symbol must be non-empty.
func entryFromValues(id, stream string, values map[string]interface{}) (Entry, error) {
	symbol, _ := values[fieldSymbol].(string)
	data, _ := values[fieldData].(string)

	if strings.TrimSpace(symbol) == "" {
		return Entry{}, fmt.Errorf("entry %s on %s: missing symbol", id, stream)
	}
	if data == "" {
		return Entry{}, fmt.Errorf("entry %s on %s: missing data", id, stream)
	}

	return Entry{
		ID:     id,
		Stream: stream,
		Symbol: symbol,
		Data:   []byte(data),
	}, nil
}

// NewRedisClient builds the Redis client for the per-stream log. A
// configured URL wins over host/port; TLS is implied by the rediss://
// scheme.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}

	return redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DB:   cfg.DB,
	}), nil
}
