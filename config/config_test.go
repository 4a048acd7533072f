package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "DATABASE_PATH", "LOG_LEVEL", "PROGRAMS_FILE",
		"EXPIRY_CHECK_INTERVAL", "SWEEP_CONCURRENCY", "LOCK_BACKEND", "REDIS_ADDR",
		"LOCK_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC"} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "loyalty.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.ExpiryCheckInterval)
	assert.Equal(t, config.LockBackendLocal, cfg.LockBackend)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("EXPIRY_CHECK_INTERVAL", "15m")
	t.Setenv("SWEEP_CONCURRENCY", "32")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCK_TTL", "10s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC", "events")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, ":memory:", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.ExpiryCheckInterval)
	assert.Equal(t, 32, cfg.SweepConcurrency)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_UnparsableValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("EXPIRY_CHECK_INTERVAL", "hourly")
	t.Setenv("LOCK_BACKEND", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, time.Hour, cfg.ExpiryCheckInterval)
}

func TestValidate(t *testing.T) {
	base := config.Config{
		HTTPPort:         8080,
		DatabasePath:     "x.db",
		SweepConcurrency: 1,
		LockBackend:      config.LockBackendLocal,
		KafkaTopic:       "t",
	}
	require.NoError(t, base.Validate())

	redis := base
	redis.LockBackend = config.LockBackendRedis
	assert.ErrorContains(t, redis.Validate(), "REDIS_ADDR")

	unknown := base
	unknown.LockBackend = "etcd"
	assert.Error(t, unknown.Validate())

	port := base
	port.HTTPPort = 70000
	assert.Error(t, port.Validate())
}
