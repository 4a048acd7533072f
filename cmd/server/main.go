/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hotel loyalty and booking engine server.
  Handles configuration, dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize logger, metrics and SQLite store
  3. Choose the member lock backend (local or Redis)
  4. Build event sinks (log, plus Kafka when brokers are configured)
  5. Create loyalty, booking and settlement services
  6. Load program files, start the expiry scheduler
  7. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port       HTTP server port
  -db         SQLite database path (":memory:" for in-memory)
  -programs   Program file (YAML or JSON) loaded at startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the expiry scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close event sinks, Redis and the database

EXAMPLES:
  ./server -db="./data/loyalty.db" -programs=./programs.yaml
  LOCK_BACKEND=redis REDIS_ADDR=localhost:6379 ./server
  KAFKA_BROKERS=localhost:9092 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/warp/hotel-loyalty-engine/api"
	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/config"
	"github.com/warp/hotel-loyalty-engine/factory"
	"github.com/warp/hotel-loyalty-engine/keylock"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/notify"
	"github.com/warp/hotel-loyalty-engine/observability"
	"github.com/warp/hotel-loyalty-engine/settlement"
	"github.com/warp/hotel-loyalty-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.HTTPPort, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	programsFile := flag.String("programs", cfg.ProgramsFile, "Program file (YAML or JSON) loaded at startup")
	flag.Parse()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Member locks
	var locker keylock.Locker = keylock.NewLocal()
	if cfg.LockBackend == config.LockBackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		locker = keylock.NewRedis(client, keylock.WithTTL(cfg.LockTTL), keylock.WithLogger(logger))
		logger.Info("using redis member locks", zap.String("addr", cfg.RedisAddr))
	}

	// Event sinks
	sinks := notify.Multi{notify.NewLogSink(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		logger.Info("publishing loyalty events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Services
	loyaltySvc := loyalty.NewService(loyalty.Config{
		Repository:       store,
		Locker:           locker,
		Publisher:        sinks,
		Logger:           logger.Named("loyalty"),
		Metrics:          metrics,
		SweepConcurrency: cfg.SweepConcurrency,
	})
	bookings := booking.NewService(booking.ServiceConfig{
		Repository: store,
		Discounts:  loyaltySvc,
		Locker:     locker,
		Logger:     logger.Named("booking"),
		Metrics:    metrics,
	})
	settle := settlement.NewService(bookings, loyaltySvc, logger.Named("settlement"), metrics)

	// Load program files
	if *programsFile != "" {
		if err := loadPrograms(context.Background(), loyaltySvc, *programsFile, logger); err != nil {
			return err
		}
	}

	// Scheduler
	scheduler := api.NewExpirationScheduler(loyaltySvc, logger)
	scheduler.CheckInterval = cfg.ExpiryCheckInterval
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP
	handler := api.NewHandler(loyaltySvc, bookings, settle, logger.Named("api"))
	handler.Health = store.Ping
	router := api.NewRouter(handler, api.RouterOptions{Gatherer: registry})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", *port), zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadPrograms upserts every program of a file. Programs whose tier table
// changed trigger a member re-tier sweep.
func loadPrograms(ctx context.Context, svc *loyalty.Service, path string, logger *zap.Logger) error {
	programs, err := factory.LoadFile(path)
	if err != nil {
		return err
	}
	for _, p := range programs {
		saved, sweep, err := svc.UpsertProgram(ctx, p)
		if err != nil {
			return fmt.Errorf("program %s: %w", p.Key(), err)
		}
		logger.Info("program loaded",
			zap.Stringer("program", saved.Key()),
			zap.Int64("version", saved.Version),
			zap.Int("members_retiered", sweep.Changed))
	}
	return nil
}
