package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadWithEnv(map[string]string{})
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, "userProfileCache", cfg.Cache.Name)
		assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, "all", cfg.Kafka.Acks)
		assert.Equal(t, uint64(2), cfg.Kafka.PublishRetries)
		assert.Equal(t, uint64(3), cfg.Kafka.HandlerRetries)
		assert.Equal(t, 200*time.Millisecond, cfg.Kafka.HandlerBackoff)
		assert.False(t, cfg.Kafka.Enabled())
		assert.Empty(t, cfg.Database.URL)
	})

	t.Run("prefixed overrides", func(t *testing.T) {
		cfg, err := LoadWithEnv(map[string]string{
			"PROFILEHUB_ENV":                        "prod",
			"PROFILEHUB_SERVER_ADDR":                ":9090",
			"PROFILEHUB_DATABASE_URL":               "postgres://u:p@db:5432/profiles",
			"PROFILEHUB_REDIS_URL":                  "redis://cache:6379/0",
			"PROFILEHUB_KAFKA_BROKERS":              "k1:9092,k2:9092",
			"PROFILEHUB_KAFKA_PROFILE_EVENTS_TOPIC": "events",
			"PROFILEHUB_KAFKA_ACKS":                 "1",
			"PROFILEHUB_CACHE_TTL":                  "30s",
		})
		require.NoError(t, err)

		assert.True(t, cfg.IsProduction())
		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, "postgres://u:p@db:5432/profiles", cfg.Database.URL)
		assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
		assert.True(t, cfg.Kafka.Enabled())
		assert.Equal(t, "events", cfg.Kafka.ProfileEventsTopic)
		assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	})

	t.Run("missing topic with brokers is rejected", func(t *testing.T) {
		cfg, err := LoadWithEnv(map[string]string{"PROFILEHUB_KAFKA_BROKERS": "k1:9092"})
		require.NoError(t, err)

		cfg.Kafka.ProfileEventsTopic = ""
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "profile events topic")
	})

	t.Run("unsupported acks is rejected", func(t *testing.T) {
		_, err := LoadWithEnv(map[string]string{
			"PROFILEHUB_KAFKA_BROKERS": "k1:9092",
			"PROFILEHUB_KAFKA_ACKS":    "most",
		})
		require.Error(t, err)
	})

	t.Run("malformed duration fails parsing", func(t *testing.T) {
		_, err := LoadWithEnv(map[string]string{"PROFILEHUB_CACHE_TTL": "soon"})
		require.Error(t, err)
	})
}
