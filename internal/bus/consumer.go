package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Consumer reads one topic through a consumer group with manual offset
// commits.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
	topic  string
	group  string
}

// NewConsumer creates a group consumer for a single topic.
func NewConsumer(brokers []string, group, topic string, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", "group", group, "partitions", assigned)
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", "group", group, "partitions", revoked)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client: client,
		logger: logger,
		topic:  topic,
		group:  group,
	}, nil
}

// Poll fetches the next batch of records. An empty result is a normal
// continuation; partition-level fetch errors are logged and the healthy
// partitions' records are still returned.
func (c *Consumer) Poll(ctx context.Context) ([]*kgo.Record, error) {
	fetches := c.client.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetches.EachError(func(topic string, partition int32, err error) {
		c.logger.Warn("fetch error",
			"topic", topic,
			"partition", partition,
			"error", err,
		)
	})

	return fetches.Records(), nil
}

// Commit records the given offsets. Called only after the batch they
// belong to has been durably flushed.
func (c *Consumer) Commit(ctx context.Context, recs []*kgo.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := c.client.CommitRecords(ctx, recs...); err != nil {
		return fmt.Errorf("commit offsets (%s): %w", c.group, err)
	}
	return nil
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
