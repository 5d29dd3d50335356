package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultHandlerRetries = 3
	defaultHandlerBackoff = 200 * time.Millisecond
)

// Message is a received record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes consumed messages.
type Handler interface {
	// Handle processes a message. An error is retried in place; once retries
	// are exhausted the partition is rewound to the record so it is fetched
	// again, and nothing after it is committed.
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Config holds consumer configuration.
type Config struct {
	Brokers         string
	GroupID         string
	Topics          []string
	AutoOffsetReset string
	HandlerRetries  uint64
	HandlerBackoff  time.Duration
}

// offsetStore is the slice of *kgo.Client the record loop needs.
type offsetStore interface {
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	SetOffsets(offsets map[string]map[int32]kgo.EpochOffset)
}

// Consumer runs a group-consumption loop with manual commits for
// at-least-once delivery.
type Consumer struct {
	client  *kgo.Client
	offsets offsetStore
	handler Handler
	logger  *slog.Logger

	retries        uint64
	initialBackoff time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group ID not configured")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka consumer topics not configured")
	}
	if handler == nil {
		return nil, fmt.Errorf("kafka consumer handler is required")
	}

	reset := kgo.NewOffset().AtStart()
	if cfg.AutoOffsetReset == "latest" {
		reset = kgo.NewOffset().AtEnd()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(reset),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	c := newConsumer(client, handler, logger, cfg)
	c.client = client
	return c, nil
}

func newConsumer(offsets offsetStore, handler Handler, logger *slog.Logger, cfg Config) *Consumer {
	c := &Consumer{
		offsets:        offsets,
		handler:        handler,
		logger:         logger,
		retries:        cfg.HandlerRetries,
		initialBackoff: cfg.HandlerBackoff,
		done:           make(chan struct{}),
	}
	if c.retries == 0 {
		c.retries = defaultHandlerRetries
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = defaultHandlerBackoff
	}
	return c
}

// Run polls until ctx is cancelled or Stop is called. Run after Stop returns
// immediately.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()
	defer close(c.done)

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logError("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			c.processPartition(ctx, p.Records)
		})
	}
}

// processPartition handles one partition's records in offset order. On a
// record that still fails after retries it rewinds the partition to that
// record and drops the rest of the batch, so no later offset is committed.
func (c *Consumer) processPartition(ctx context.Context, records []*kgo.Record) {
	for _, r := range records {
		if err := c.handleRecord(ctx, r); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logError("failed to handle message, rewinding partition",
				"topic", r.Topic,
				"partition", r.Partition,
				"offset", r.Offset,
				"error", err,
			)
			c.offsets.SetOffsets(map[string]map[int32]kgo.EpochOffset{
				r.Topic: {r.Partition: {Epoch: r.LeaderEpoch, Offset: r.Offset}},
			})
			return
		}
		if err := c.offsets.CommitRecords(ctx, r); err != nil {
			c.logError("failed to commit offset",
				"topic", r.Topic,
				"partition", r.Partition,
				"offset", r.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handleRecord(ctx context.Context, r *kgo.Record) error {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	msg := &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialBackoff
	expBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.retries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := c.handler.Handle(ctx, msg); err != nil {
			if c.logger != nil {
				c.logger.Warn("message handling attempt failed",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"attempt", attempt,
					"error", err,
				)
			}
			return err
		}
		return nil
	}, policy)
}

// Stop ends the poll loop and closes the client. It waits for the loop to
// exit or ctx to expire.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		c.closeClient()
		return nil
	}
	cancel()

	select {
	case <-c.done:
		c.closeClient()
		return nil
	case <-ctx.Done():
		c.closeClient()
		return ctx.Err()
	}
}

func (c *Consumer) closeClient() {
	if c.client != nil {
		c.client.Close()
	}
}

// Healthy reports whether the brokers answer a ping.
func (c *Consumer) Healthy(ctx context.Context) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	return c.client.Ping(ctx) == nil
}

func (c *Consumer) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
