// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration for the profilehub server.
type Config struct {
	Env      string         `env:"ENV" envDefault:"dev"`
	LogLevel string         `env:"LOG_LEVEL" envDefault:"info"`
	Server   Server         `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Cache    CacheConfig    `envPrefix:"CACHE_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// RedisConfig configures the profile cache backend. An empty URL selects
// the in-memory cache.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the event producer and the validation result
// consumer. Empty brokers disable both.
type KafkaConfig struct {
	Brokers            string        `env:"BROKERS"`
	ClientID           string        `env:"CLIENT_ID" envDefault:"profilehub"`
	ProfileEventsTopic string        `env:"PROFILE_EVENTS_TOPIC" envDefault:"profile-events"`
	ResultsTopic       string        `env:"RESULTS_TOPIC" envDefault:"profile-validation-results"`
	GroupID            string        `env:"GROUP_ID" envDefault:"profilehub"`
	AutoOffsetReset    string        `env:"AUTO_OFFSET_RESET" envDefault:"earliest"`
	Acks               string        `env:"ACKS" envDefault:"all"`
	Retries            int           `env:"RETRIES" envDefault:"3"`
	DeliveryTimeout    time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`
	PublishRetries     uint64        `env:"PUBLISH_RETRIES" envDefault:"2"`
	PublishBackoff     time.Duration `env:"PUBLISH_BACKOFF" envDefault:"100ms"`
	HandlerRetries     uint64        `env:"HANDLER_RETRIES" envDefault:"3"`
	HandlerBackoff     time.Duration `env:"HANDLER_BACKOFF" envDefault:"200ms"`
	Partitions         int32         `env:"TOPIC_PARTITIONS" envDefault:"3"`
	ReplicationFactor  int16         `env:"TOPIC_REPLICATION_FACTOR" envDefault:"1"`
}

// Enabled reports whether a broker list is configured.
func (k KafkaConfig) Enabled() bool {
	return strings.TrimSpace(k.Brokers) != ""
}

// CacheConfig configures the read-through profile cache.
type CacheConfig struct {
	Name string        `env:"NAME" envDefault:"userProfileCache"`
	TTL  time.Duration `env:"TTL" envDefault:"10m"`
}

// Load parses the environment with the PROFILEHUB_ prefix and validates
// the result.
func Load() (*Config, error) {
	return LoadWithEnv(nil)
}

// LoadWithEnv parses the given environment instead of the process one when
// environment is non-nil.
func LoadWithEnv(environment map[string]string) (*Config, error) {
	opts := env.Options{Prefix: "PROFILEHUB_"}
	if environment != nil {
		opts.Environment = environment
	}
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Cache.Name == "" {
		errs = append(errs, errors.New("cache name is required"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache ttl must not be negative"))
	}
	if c.Kafka.Enabled() {
		if c.Kafka.ProfileEventsTopic == "" {
			errs = append(errs, errors.New("profile events topic is required when kafka is enabled"))
		}
		if c.Kafka.ResultsTopic == "" {
			errs = append(errs, errors.New("validation results topic is required when kafka is enabled"))
		}
		switch c.Kafka.Acks {
		case "all", "1", "0":
		default:
			errs = append(errs, fmt.Errorf("unsupported kafka acks %q", c.Kafka.Acks))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the server runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}
