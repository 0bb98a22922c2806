package streamlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes one entry. A nil return acks the entry; a non-nil
// return leaves it pending for redelivery.
type Handler func(ctx context.Context, entry Entry) error

// GroupConsumerConfig configures a durable stream consumer.
type GroupConsumerConfig struct {
	Streams      []string
	Group        string
	ConsumerName string
	BlockTimeout time.Duration // XREADGROUP block; empty reads are normal
	BatchCount   int64
}

// DefaultGroupConsumerConfig returns sensible defaults.
func DefaultGroupConsumerConfig(streams []string, consumerName string) GroupConsumerConfig {
	return GroupConsumerConfig{
		Streams:      streams,
		Group:        GatewayGroup,
		ConsumerName: consumerName,
		BlockTimeout: 2 * time.Second,
		BatchCount:   100,
	}
}

// GroupConsumer reads the fan-out streams through a consumer group. On
// startup it drains this consumer's pending entries (delivered but never
// acked, e.g. across a crash) before tailing new messages.
type GroupConsumer struct {
	cfg     GroupConsumerConfig
	rdb     *redis.Client
	handler Handler
	logger  *slog.Logger

	// xack is swapped out in tests.
	xack func(stream, id string) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroupConsumer creates a consumer; Start begins delivery.
func NewGroupConsumer(cfg GroupConsumerConfig, rdb *redis.Client, handler Handler, logger *slog.Logger) *GroupConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &GroupConsumer{
		cfg:     cfg,
		rdb:     rdb,
		handler: handler,
		logger:  logger,
	}
	c.xack = func(stream, id string) error {
		return c.rdb.XAck(c.ctx, stream, c.cfg.Group, id).Err()
	}
	return c
}

// Start ensures the consumer group exists on every stream and begins the
// read loop.
func (c *GroupConsumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	for _, stream := range c.cfg.Streams {
		err := c.rdb.XGroupCreateMkStream(c.ctx, stream, c.cfg.Group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("create group %s on %s: %w", c.cfg.Group, stream, err)
		}
	}

	c.wg.Add(1)
	go c.readLoop()

	c.logger.Info("stream consumer started",
		"streams", c.cfg.Streams,
		"group", c.cfg.Group,
		"consumer", c.cfg.ConsumerName,
	)
	return nil
}

// Stop gracefully shuts down the consumer.
func (c *GroupConsumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("stream consumer stopped")
	case <-ctx.Done():
		c.logger.Warn("stream consumer stop timed out")
	}
	return nil
}

// readLoop drains pending entries, then tails the streams.
func (c *GroupConsumer) readLoop() {
	defer c.wg.Done()

	c.drainPending()

	ids := make([]string, len(c.cfg.Streams))
	for i := range ids {
		ids[i] = ">"
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		streams, err := c.rdb.XReadGroup(c.ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.ConsumerName,
			Streams:  append(append([]string{}, c.cfg.Streams...), ids...),
			Count:    c.cfg.BatchCount,
			Block:    c.cfg.BlockTimeout,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn("stream read failed", "error", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.dispatch(streams)
	}
}

// drainPending re-delivers entries this consumer read but never acked.
func (c *GroupConsumer) drainPending() {
	ids := make([]string, len(c.cfg.Streams))
	for i := range ids {
		ids[i] = "0"
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		streams, err := c.rdb.XReadGroup(c.ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.ConsumerName,
			Streams:  append(append([]string{}, c.cfg.Streams...), ids...),
			Count:    c.cfg.BatchCount,
		}).Result()

		if err != nil {
			if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
				c.logger.Warn("pending drain failed", "error", err)
			}
			return
		}

		total := 0
		for _, s := range streams {
			total += len(s.Messages)
		}
		if total == 0 {
			return
		}

		c.logger.Info("re-delivering pending entries", "count", total)
		if c.dispatch(streams) == 0 {
			// No entry made progress: re-reading the same pending list
			// would spin here forever and starve the tail. The entries
			// stay pending and are retried on the next startup.
			c.logger.Warn("pending entries are not progressing, resuming tail", "count", total)
			return
		}
	}
}

// dispatch hands each entry to the handler, acks on success, and
// returns how many entries were acked.
func (c *GroupConsumer) dispatch(streams []redis.XStream) int {
	acked := 0
	for _, s := range streams {
		for _, msg := range s.Messages {
			entry, err := entryFromValues(msg.ID, s.Stream, msg.Values)
			if err != nil {
				// Structurally broken entry: retrying cannot help.
				c.logger.Warn("dropping malformed stream entry", "error", err)
				if c.ack(s.Stream, msg.ID) {
					acked++
				}
				continue
			}

			if err := c.handler(c.ctx, entry); err != nil {
				c.logger.Warn("dispatch failed, leaving entry pending",
					"stream", s.Stream,
					"id", msg.ID,
					"error", err,
				)
				continue
			}

			if c.ack(s.Stream, msg.ID) {
				acked++
			}
		}
	}
	return acked
}

func (c *GroupConsumer) ack(stream, id string) bool {
	if err := c.xack(stream, id); err != nil {
		c.logger.Warn("xack failed", "stream", stream, "id", id, "error", err)
		return false
	}
	return true
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}
