// Package service orchestrates the profile validation workflow.
//
// Every mutating operation persists first and publishes second. Store and
// bus are not transactional, so a publish failure after a persist demotes
// the profile to NOT_COMPLETE before the error is returned. The service
// holds no mutable state between requests; concurrent mutations of one
// profile are resolved only by the store's conditional writes.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"profilehub/internal/platform/metrics"
	"profilehub/internal/profile/models"
	"profilehub/internal/profile/store"
	dErrors "profilehub/pkg/domain-errors"
)

type Store interface {
	FindByID(ctx context.Context, userID string) (*models.Profile, error)
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, userID string, record *models.Profile) error
	FindAttributes(ctx context.Context, userID string, attrs ...models.Attribute) (*models.ProjectedAttributes, error)
	Delete(ctx context.Context, userID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, message []byte, eventType models.EventType, routingKey string) error
}

type Cache interface {
	Get(ctx context.Context, key string) (*models.Profile, error)
	Put(ctx context.Context, key string, profile *models.Profile) error
	Evict(ctx context.Context, key string) error
}

// Service implements the profile operations.
type Service struct {
	store     Store
	publisher EventPublisher
	cache     Cache
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service. The cache is required; pass an in-memory cache
// when no shared cache is configured.
func New(st Store, publisher EventPublisher, c Cache, opts ...Option) *Service {
	s := &Service{store: st, publisher: publisher, cache: c}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("profilehub/profile")
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("profile.user_id", userID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// evict drops the cached read for userID. Failures are logged and ignored;
// the TTL bounds any stale read.
func (s *Service) evict(ctx context.Context, userID string) {
	if err := s.cache.Evict(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to evict cached profile", "user_id", userID, "error", err)
	}
}

// translateStoreErr maps store sentinels to domain errors.
func translateStoreErr(err error, action string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	case errors.Is(err, store.ErrPreconditionFailed):
		return dErrors.New(dErrors.CodeConflict, "profile id does not match the stored record")
	case errors.Is(err, store.ErrConflict):
		return dErrors.New(dErrors.CodeDuplicate, "profile already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}

func (s *Service) incrementProfilesCreated() {
	if s.metrics != nil {
		s.metrics.IncrementProfilesCreated()
	}
}

func (s *Service) incrementDuplicateRequests() {
	if s.metrics != nil {
		s.metrics.IncrementDuplicateRequests()
	}
}

func (s *Service) incrementSubscriptionsAdded() {
	if s.metrics != nil {
		s.metrics.IncrementSubscriptionsAdded()
	}
}

func (s *Service) incrementProfilesDeleted() {
	if s.metrics != nil {
		s.metrics.IncrementProfilesDeleted()
	}
}

func (s *Service) incrementPublishFailures(eventType models.EventType) {
	if s.metrics != nil {
		s.metrics.IncrementPublishFailures(eventType.String())
	}
}

func (s *Service) incrementCompensations(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementCompensations(outcome)
	}
}

func (s *Service) incrementValidationResults(status models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementValidationResults(status.String())
	}
}
