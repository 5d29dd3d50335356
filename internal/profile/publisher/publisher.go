// Package publisher delivers profile events to the validators' topic.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"profilehub/internal/platform/kafka/producer"
	"profilehub/internal/profile/models"
)

// Header names carried on every profile event.
const (
	HeaderEventType = "EVENT_TYPE"
	HeaderUserID    = "USER_ID"
)

// ErrPublishFailed wraps every delivery failure returned by Publish.
var ErrPublishFailed = errors.New("event publish failed")

// Producer sends one record and waits for the acknowledgement.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaPublisher publishes profile events to a single topic. The routing key
// becomes the record key so every event for one profile lands on the same
// partition.
type KafkaPublisher struct {
	producer        Producer
	topic           string
	maxRetries      uint64
	initialInterval time.Duration
	logger          *slog.Logger
}

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

// WithRetries bounds the number of redeliveries after the first attempt.
func WithRetries(maxRetries uint64, initialInterval time.Duration) Option {
	return func(p *KafkaPublisher) {
		p.maxRetries = maxRetries
		if initialInterval > 0 {
			p.initialInterval = initialInterval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a publisher for topic. A missing topic is a configuration error.
func New(prod Producer, topic string, opts ...Option) (*KafkaPublisher, error) {
	if prod == nil {
		return nil, fmt.Errorf("publisher: producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("publisher: topic is required")
	}
	p := &KafkaPublisher{
		producer:        prod,
		topic:           topic,
		maxRetries:      2,
		initialInterval: 100 * time.Millisecond,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish delivers message with the event type and routing key attached as
// headers. It retries transient failures a bounded number of times and
// returns an error wrapping ErrPublishFailed if delivery never succeeded.
func (p *KafkaPublisher) Publish(ctx context.Context, message []byte, eventType models.EventType, routingKey string) error {
	msg := &producer.Message{
		Topic: p.topic,
		Key:   []byte(routingKey),
		Value: message,
		Headers: map[string]string{
			HeaderEventType: eventType.String(),
			HeaderUserID:    routingKey,
		},
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = p.initialInterval
	expBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, p.maxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := p.producer.Produce(ctx, msg); err != nil {
			p.logger.WarnContext(ctx, "profile event delivery attempt failed",
				"event_type", eventType,
				"user_id", routingKey,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return fmt.Errorf("%w: %s for %s after %d attempts: %w", ErrPublishFailed, eventType, routingKey, attempt, err)
	}
	return nil
}
