package streamlog

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher appends entries to the fan-out streams.
type Publisher struct {
	rdb redis.Cmdable
}

// NewPublisher creates a publisher over an existing Redis client.
func NewPublisher(rdb redis.Cmdable) *Publisher {
	return &Publisher{rdb: rdb}
}

// Append writes one entry to the stream. The payload is the full JSON
// record including its type discriminator.
func (p *Publisher) Append(ctx context.Context, stream, symbol string, payload []byte) error {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			fieldSymbol: symbol,
			fieldData:   string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
