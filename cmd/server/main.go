package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"profilehub/internal/platform/config"
	"profilehub/internal/platform/database"
	"profilehub/internal/platform/health"
	"profilehub/internal/platform/httpserver"
	"profilehub/internal/platform/kafka"
	"profilehub/internal/platform/kafka/consumer"
	"profilehub/internal/platform/kafka/producer"
	"profilehub/internal/platform/logger"
	"profilehub/internal/platform/metrics"
	"profilehub/internal/platform/redis"
	"profilehub/internal/profile/cache"
	"profilehub/internal/profile/fingerprint"
	"profilehub/internal/profile/handler"
	"profilehub/internal/profile/listener"
	"profilehub/internal/profile/publisher"
	"profilehub/internal/profile/service"
	"profilehub/internal/profile/store"
	"profilehub/migrations"
	"profilehub/pkg/platform/circuit"
)

// main wires dependencies and runs the HTTP server and the validation
// result consumer until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("profilehub exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := fingerprint.Check(); err != nil {
		return err
	}

	healthHandler := health.New(cfg.Env)

	profileStore, closeStore, err := buildStore(ctx, cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer closeStore()

	profileCache, closeCache, err := buildCache(ctx, cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer closeCache()

	prod, err := buildProducer(ctx, cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer prod.Close() //nolint:errcheck // flush errors are logged by the producer

	eventPublisher, err := publisher.New(prod, cfg.Kafka.ProfileEventsTopic,
		publisher.WithRetries(cfg.Kafka.PublishRetries, cfg.Kafka.PublishBackoff),
		publisher.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}

	profileService := service.New(profileStore, eventPublisher, profileCache,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	)

	router := chi.NewRouter()
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	handler.New(profileService, cache.NewRegistry(profileCache), log,
		handler.WithRequestTimeout(cfg.Server.RequestTimeout),
	).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)

	var resultConsumer *consumer.Consumer
	if cfg.Kafka.Enabled() {
		resultConsumer, err = consumer.New(consumer.Config{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         cfg.Kafka.GroupID,
			Topics:          []string{cfg.Kafka.ResultsTopic},
			AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
			HandlerRetries:  cfg.Kafka.HandlerRetries,
			HandlerBackoff:  cfg.Kafka.HandlerBackoff,
		}, listener.New(profileService, log), log)
		if err != nil {
			return err
		}
		healthHandler.RegisterCheck("kafka-consumer", func(ctx context.Context) error {
			if !resultConsumer.Healthy(ctx) {
				return errors.New("validation result consumer is not connected")
			}
			return nil
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if resultConsumer != nil {
		g.Go(func() error {
			log.Info("validation result consumer started", "topic", cfg.Kafka.ResultsTopic)
			return resultConsumer.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			return resultConsumer.Stop(shutdownCtx)
		})
	}

	log.Info("starting profilehub", "addr", cfg.Server.Addr, "env", cfg.Env)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("profilehub stopped")
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger, hh *health.Handler) (service.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, profiles are kept in memory")
		return store.NewInMemoryStore(), func() {}, nil
	}
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := database.ApplyMigrations(ctx, pool.DB(), migrations.FS); err != nil {
		pool.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, nil, err
	}
	hh.RegisterCheck("postgres", pool.Health)
	return store.NewPostgresStore(pool.DB()), func() {
		if err := pool.Close(); err != nil {
			log.Warn("failed to close database pool", "error", err)
		}
	}, nil
}

func buildCache(ctx context.Context, cfg *config.Config, log *slog.Logger, hh *health.Handler) (cache.Cache, func(), error) {
	if cfg.Redis.URL == "" {
		return cache.NewInMemoryCache(cfg.Cache.Name, cfg.Cache.TTL), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	hh.RegisterCheck("redis", client.Health)
	redisCache := cache.NewRedisCache(client.Client, cfg.Cache.Name, cfg.Cache.TTL)
	guarded := cache.NewGuardedCache(redisCache, circuit.New("redis-cache"), log)
	return guarded, func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	}, nil
}

type eventProducer interface {
	publisher.Producer
	Close() error
}

func buildProducer(ctx context.Context, cfg *config.Config, log *slog.Logger, hh *health.Handler) (eventProducer, error) {
	if !cfg.Kafka.Enabled() {
		log.Warn("no kafka brokers configured, profile events are discarded")
		return producer.NewNoopProducer(log), nil
	}
	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor,
		cfg.Kafka.ProfileEventsTopic, cfg.Kafka.ResultsTopic); err != nil {
		return nil, err
	}
	prod, err := producer.New(producer.Config{
		Brokers:         cfg.Kafka.Brokers,
		ClientID:        cfg.Kafka.ClientID,
		Acks:            cfg.Kafka.Acks,
		Retries:         cfg.Kafka.Retries,
		DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
	}, log)
	if err != nil {
		return nil, err
	}
	checker, err := kafka.NewHealthChecker(cfg.Kafka.Brokers)
	if err != nil {
		prod.Close() //nolint:errcheck // nothing was produced yet
		return nil, err
	}
	hh.RegisterCheck(checker.Name(), checker.Check)
	return prod, nil
}
