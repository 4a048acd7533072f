/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Defaults
  2. .env file in the working directory (optional)
  3. Process environment
  4. Command-line flags (applied by cmd/server)

VARIABLES:
  HTTP_PORT              HTTP listen port (8080)
  DATABASE_PATH          SQLite file, ":memory:" for in-memory (loyalty.db)
  LOG_LEVEL              debug, info, warn, error (info)
  PROGRAMS_FILE          YAML/JSON program file loaded at startup (none)
  EXPIRY_CHECK_INTERVAL  Points expiry sweep interval (1h, 0 disables)
  SWEEP_CONCURRENCY      Members processed in parallel by sweeps (8)
  LOCK_BACKEND           local or redis (local)
  REDIS_ADDR             Redis address for the redis lock backend
  LOCK_TTL               Redis lock TTL (30s)
  KAFKA_BROKERS          Comma-separated brokers; empty disables Kafka events
  KAFKA_TOPIC            Topic for loyalty events (loyalty-events)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Config holds application configuration.
type Config struct {
	HTTPPort            int
	DatabasePath        string
	LogLevel            string
	ProgramsFile        string
	ExpiryCheckInterval time.Duration
	SweepConcurrency    int

	LockBackend string
	RedisAddr   string
	LockTTL     time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:            getenvInt("HTTP_PORT", 8080),
		DatabasePath:        getenv("DATABASE_PATH", "loyalty.db"),
		LogLevel:            strings.ToLower(getenv("LOG_LEVEL", "info")),
		ProgramsFile:        strings.TrimSpace(getenv("PROGRAMS_FILE", "")),
		ExpiryCheckInterval: getenvDuration("EXPIRY_CHECK_INTERVAL", time.Hour),
		SweepConcurrency:    getenvInt("SWEEP_CONCURRENCY", 8),
		LockBackend:         strings.ToLower(getenv("LOCK_BACKEND", LockBackendLocal)),
		RedisAddr:           strings.TrimSpace(getenv("REDIS_ADDR", "")),
		LockTTL:             getenvDuration("LOCK_TTL", 30*time.Second),
		KafkaBrokers:        splitList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:          getenv("KAFKA_TOPIC", "loyalty-events"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.HTTPPort <= 0 || c.HTTPPort > 65535:
		return fmt.Errorf("config: HTTP_PORT %d out of range", c.HTTPPort)
	case c.DatabasePath == "":
		return fmt.Errorf("config: DATABASE_PATH is required")
	case c.SweepConcurrency <= 0:
		return fmt.Errorf("config: SWEEP_CONCURRENCY must be > 0")
	case c.ExpiryCheckInterval < 0:
		return fmt.Errorf("config: EXPIRY_CHECK_INTERVAL must be >= 0")
	case c.LockBackend != LockBackendLocal && c.LockBackend != LockBackendRedis:
		return fmt.Errorf("config: LOCK_BACKEND %q must be %q or %q", c.LockBackend, LockBackendLocal, LockBackendRedis)
	case c.LockBackend == LockBackendRedis && c.RedisAddr == "":
		return fmt.Errorf("config: REDIS_ADDR is required with LOCK_BACKEND=redis")
	case len(c.KafkaBrokers) > 0 && c.KafkaTopic == "":
		return fmt.Errorf("config: KAFKA_TOPIC is required with KAFKA_BROKERS")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
